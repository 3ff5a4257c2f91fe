package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGraph = "graph"
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"

	ProtocolIndices = "indices"
	ProtocolDigits  = "digits"

	NotifyInline = "inline"
	NotifyPubSub = "pubsub"
)

type Config struct {
	// Mail provider
	MailProvider string

	// Microsoft identity
	ClientID  string
	Authority string
	Scopes    []string

	// Gmail
	GoogleCredentialsFile string

	// IMAP
	IMAPAddr     string
	IMAPUsername string
	IMAPPassword string

	// Classifier
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	ModelName          string
	ClassifierProtocol string
	ClassifierCriteria string

	// Persistence
	StoreBackend    string
	StorePath       string
	DynamoDBTable   string
	StorePrefix     string
	AWSRegion       string
	TokenCacheKey   string
	SeenKey         string
	SubscriptionKey string

	// Pipeline
	FetchLimit           int
	ClassifyLimit        int
	WebhookFetchLimit    int
	WebhookClassifyLimit int
	JunkFolderNames      []string
	RetryFailedDeletes   bool

	// Webhook
	HTTPAddr           string
	WebhookClientState string
	NotificationURL    string
	SubscriptionTTL    time.Duration
	NotifyMode         string

	// Google Cloud
	GoogleCloudProject string
	TopicID            string
	SubscriptionID     string

	// Alerts
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioTo         string
	ResendAPIKey     string
	AlertEmailFrom   string
	AlertEmailTo     string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds and validates a Config from the process environment only.
func FromEnv() (*Config, error) {
	var p parser

	cfg := &Config{
		MailProvider: strings.ToLower(getEnv("MAIL_PROVIDER", ProviderGraph)),

		ClientID:  getEnv("CLIENT_ID", ""),
		Authority: getEnv("AUTHORITY", "https://login.microsoftonline.com/consumers"),
		Scopes:    getList("SCOPES", []string{"User.Read", "Mail.ReadWrite"}),

		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),

		IMAPAddr:     getEnv("IMAP_ADDR", ""),
		IMAPUsername: getEnv("IMAP_USERNAME", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),

		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		ModelName:          getEnv("MODEL_NAME", "gpt-5-mini"),
		ClassifierProtocol: strings.ToLower(getEnv("CLASSIFIER_PROTOCOL", ProtocolIndices)),
		ClassifierCriteria: getEnv("CLASSIFIER_CRITERIA", ""),

		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", "file")),
		StorePath:       getEnv("STORE_PATH", ""),
		DynamoDBTable:   getEnv("DYNAMODB_TABLE", "email-filter-tokens"),
		StorePrefix:     getEnv("STORE_PREFIX", "/email-filter"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-2"),
		TokenCacheKey:   getEnv("TOKEN_CACHE_KEY", "token"),
		SeenKey:         getEnv("SEEN_KEY", "seen-emails"),
		SubscriptionKey: getEnv("SUBSCRIPTION_KEY", "webhook-subscription"),

		FetchLimit:           p.integer("FETCH_LIMIT", 20),
		ClassifyLimit:        p.integer("CLASSIFY_LIMIT", 20),
		WebhookFetchLimit:    p.integer("WEBHOOK_FETCH_LIMIT", 5),
		WebhookClassifyLimit: p.integer("WEBHOOK_CLASSIFY_LIMIT", 5),
		JunkFolderNames:      getList("JUNK_FOLDER_NAMES", []string{"junk email", "junk"}),
		RetryFailedDeletes:   p.boolean("RETRY_FAILED_DELETES", false),

		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		WebhookClientState: getEnv("WEBHOOK_CLIENT_STATE", ""),
		NotificationURL:    getEnv("NOTIFICATION_URL", ""),
		SubscriptionTTL:    p.duration("SUBSCRIPTION_TTL", 60*time.Hour),
		NotifyMode:         strings.ToLower(getEnv("NOTIFY_MODE", NotifyInline)),

		GoogleCloudProject: getEnv("GOOGLE_CLOUD_PROJECT", ""),
		TopicID:            getEnv("PUBSUB_TOPIC", "email-filter-notifications"),
		SubscriptionID:     getEnv("PUBSUB_SUBSCRIPTION", "email-filter-worker"),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       getEnv("TWILIO_FROM", ""),
		TwilioTo:         getEnv("TWILIO_TO", ""),
		ResendAPIKey:     getEnv("RESEND_API_KEY", ""),
		AlertEmailFrom:   getEnv("ALERT_EMAIL_FROM", ""),
		AlertEmailTo:     getEnv("ALERT_EMAIL_TO", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", defaultLogFormat()),
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.MailProvider {
	case ProviderGraph:
		if c.ClientID == "" {
			return fmt.Errorf("CLIENT_ID is required")
		}
	case ProviderGmail:
		if c.GoogleCredentialsFile == "" {
			return fmt.Errorf("GOOGLE_CREDENTIALS_FILE is required")
		}
	case ProviderIMAP:
		if c.IMAPAddr == "" || c.IMAPUsername == "" || c.IMAPPassword == "" {
			return fmt.Errorf("IMAP_ADDR, IMAP_USERNAME and IMAP_PASSWORD are required")
		}
	default:
		return fmt.Errorf("unknown MAIL_PROVIDER %q", c.MailProvider)
	}

	if c.ClassifierProtocol != ProtocolIndices && c.ClassifierProtocol != ProtocolDigits {
		return fmt.Errorf("unknown CLASSIFIER_PROTOCOL %q", c.ClassifierProtocol)
	}
	if c.FetchLimit <= 0 || c.ClassifyLimit <= 0 || c.WebhookFetchLimit <= 0 || c.WebhookClassifyLimit <= 0 {
		return fmt.Errorf("fetch and classify limits must be positive")
	}
	if c.NotifyMode != NotifyInline && c.NotifyMode != NotifyPubSub {
		return fmt.Errorf("unknown NOTIFY_MODE %q", c.NotifyMode)
	}
	if c.NotifyMode == NotifyPubSub && c.GoogleCloudProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when NOTIFY_MODE=pubsub")
	}
	return nil
}

// RequireClassifier is checked by the entry points that classify mail.
func (c *Config) RequireClassifier() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

// InLambda reports whether the process runs inside AWS Lambda.
func InLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func defaultLogFormat() string {
	if InLambda() {
		return "json"
	}
	return "console"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) integer(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n
}

func (p *parser) boolean(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d
}

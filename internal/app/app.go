package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"emailfilter/internal/application/triage"
	"emailfilter/internal/infrastructure/auth"
	"emailfilter/internal/infrastructure/config"
	"emailfilter/internal/infrastructure/gmail"
	"emailfilter/internal/infrastructure/graph"
	"emailfilter/internal/infrastructure/imap"
	"emailfilter/internal/infrastructure/kv"
	"emailfilter/internal/infrastructure/llm"
	"emailfilter/internal/infrastructure/notify"
	"emailfilter/internal/infrastructure/pubsub"
	"emailfilter/internal/infrastructure/seen"
)

// App holds every component an entry point may need. Pipeline and
// Dispatcher are nil when no classifier is configured; Subscriptions is nil
// for providers without push notifications.
type App struct {
	Config *config.Config
	Log    *zap.SugaredLogger
	Store  kv.Store

	Creds      triage.CredentialProvider
	Source     triage.MailSource
	Classifier triage.Classifier
	Notifier   triage.Notifier

	// MSAL and Google are set for the matching provider so setup-token can log in.
	MSAL   *auth.MSALProvider
	Google *auth.GoogleProvider

	Pipeline      *triage.Pipeline
	Dispatcher    *triage.Dispatcher
	Subscriptions *triage.SubscriptionManager

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	store, closeStore, err := kv.Open(ctx, kv.Options{
		Backend: cfg.StoreBackend,
		Path:    cfg.StorePath,
		Table:   cfg.DynamoDBTable,
		Prefix:  cfg.StorePrefix,
		Region:  cfg.AWSRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	subsAPI, err := a.initMail(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Notifier, err = newNotifier(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.OpenAIAPIKey != "" {
		classifier, err := llm.NewClient(llm.Options{
			APIKey:   cfg.OpenAIAPIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.ModelName,
			Protocol: cfg.ClassifierProtocol,
			Criteria: cfg.ClassifierCriteria,
		}, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("llm client error: %w", err)
		}
		a.Classifier = classifier

		a.Pipeline = a.NewPipeline(seen.NewStore(store, cfg.SeenKey), a.Source)

		dcfg := triage.DispatcherConfig{
			FetchLimit:    cfg.WebhookFetchLimit,
			ClassifyLimit: cfg.WebhookClassifyLimit,
			ClientState:   cfg.WebhookClientState,
		}
		if cfg.NotifyMode == config.NotifyPubSub {
			pub, err := pubsub.NewPublisher(ctx, cfg.GoogleCloudProject, cfg.TopicID)
			if err != nil {
				a.Close()
				return nil, err
			}
			a.closers = append(a.closers, pub.Close)
			dcfg.Enqueuer = pub
		}
		a.Dispatcher = triage.NewDispatcher(a.Pipeline, log, dcfg)
	}

	if subsAPI != nil {
		a.Subscriptions = triage.NewSubscriptionManager(subsAPI, a.Source, store, log, triage.SubscriptionConfig{
			NotificationURL: cfg.NotificationURL,
			ClientState:     cfg.WebhookClientState,
			TTL:             cfg.SubscriptionTTL,
			JunkFolderNames: cfg.JunkFolderNames,
			Key:             cfg.SubscriptionKey,
		})
	}

	return a, nil
}

// NewPipeline builds a pipeline over the configured provider and classifier
// with the given seen-set store and mail source.
func (a *App) NewPipeline(seenStore triage.SeenSetStore, source triage.MailSource) *triage.Pipeline {
	return triage.NewPipeline(a.Creds, source, a.Classifier, seenStore, a.Log, triage.PipelineConfig{
		JunkFolderNames:    a.Config.JunkFolderNames,
		RetryFailedDeletes: a.Config.RetryFailedDeletes,
		Notifier:           a.Notifier,
	})
}

func (a *App) initMail(ctx context.Context) (triage.SubscriptionAPI, error) {
	cfg := a.Config

	switch cfg.MailProvider {
	case config.ProviderGraph:
		msal, err := auth.NewMSALProvider(cfg.ClientID, cfg.Authority, cfg.Scopes, a.Store, cfg.TokenCacheKey, a.Log)
		if err != nil {
			return nil, err
		}
		client, err := graph.NewClient(msal, cfg.Scopes, a.Log)
		if err != nil {
			return nil, err
		}
		a.MSAL, a.Creds, a.Source = msal, msal, client
		return client, nil

	case config.ProviderGmail:
		google, err := auth.NewGoogleProvider(cfg.GoogleCredentialsFile, a.Store, cfg.TokenCacheKey, a.Log)
		if err != nil {
			return nil, err
		}
		srv, err := gmail.NewService(ctx, google.Lazy())
		if err != nil {
			return nil, err
		}
		var topic string
		if cfg.GoogleCloudProject != "" {
			topic = fmt.Sprintf("projects/%s/topics/%s", cfg.GoogleCloudProject, cfg.TopicID)
		}
		client := gmail.NewClient(srv, topic, a.Log)
		a.Google, a.Creds, a.Source = google, google, client
		return client, nil

	case config.ProviderIMAP:
		client := imap.NewClient(cfg.IMAPAddr, cfg.IMAPUsername, cfg.IMAPPassword, a.Log)
		a.closers = append(a.closers, client.Close)
		a.Creds, a.Source = auth.NewStatic(cfg.IMAPPassword), client
		return nil, nil
	}
	return nil, fmt.Errorf("unknown mail provider %q", cfg.MailProvider)
}

// newNotifier returns nil when no alert channel is configured.
func newNotifier(cfg *config.Config) (triage.Notifier, error) {
	var all notify.Multi

	if cfg.TwilioAccountSID != "" {
		sms, err := notify.NewSMSNotifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, cfg.TwilioTo)
		if err != nil {
			return nil, fmt.Errorf("sms notifier: %w", err)
		}
		all = append(all, sms)
	}

	if cfg.ResendAPIKey != "" {
		var to []string
		for _, addr := range strings.Split(cfg.AlertEmailTo, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				to = append(to, addr)
			}
		}
		email, err := notify.NewEmailNotifier(cfg.ResendAPIKey, cfg.AlertEmailFrom, to)
		if err != nil {
			return nil, fmt.Errorf("email notifier: %w", err)
		}
		all = append(all, email)
	}

	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

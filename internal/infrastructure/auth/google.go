package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"emailfilter/internal/infrastructure/kv"
)

// GoogleProvider issues Gmail tokens from an OAuth2 token persisted in a kv.Store.
type GoogleProvider struct {
	config *oauth2.Config
	store  kv.Store
	key    string
	log    *zap.SugaredLogger

	mu sync.Mutex
	ts oauth2.TokenSource
}

func NewGoogleProvider(credentialsFile string, store kv.Store, key string, log *zap.SugaredLogger) (*GoogleProvider, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", credentialsFile, err)
	}

	// Permanent delete needs the full mail scope; modify only allows trash.
	config, err := google.ConfigFromJSON(b, gmail.MailGoogleComScope)
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", credentialsFile, err)
	}

	return &GoogleProvider{config: config, store: store, key: key, log: log}, nil
}

// TokenSource returns a refreshing source that writes refreshed tokens back to the store.
func (p *GoogleProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ts != nil {
		return p.ts, nil
	}

	raw, found, err := p.store.Get(ctx, p.key)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if !found {
		return nil, ErrNoCachedAccount
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	// The source outlives this call, so it must not inherit its cancellation.
	base := p.config.TokenSource(context.WithoutCancel(ctx), &tok)
	p.ts = &persistingSource{
		base: base,
		last: tok.AccessToken,
		save: func(t *oauth2.Token) error { return p.save(context.WithoutCancel(ctx), t) },
		log:  p.log,
	}
	return p.ts, nil
}

func (p *GoogleProvider) Token(ctx context.Context) (string, error) {
	ts, err := p.TokenSource(ctx)
	if err != nil {
		return "", err
	}
	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	return tok.AccessToken, nil
}

// Lazy returns a TokenSource that loads the stored token on first use, so a
// Gmail service can be built before anyone has logged in.
func (p *GoogleProvider) Lazy() oauth2.TokenSource {
	return lazySource{p: p}
}

type lazySource struct {
	p *GoogleProvider
}

func (l lazySource) Token() (*oauth2.Token, error) {
	ts, err := l.p.TokenSource(context.Background())
	if err != nil {
		return nil, err
	}
	return ts.Token()
}

// LoginWithCode runs the copy-paste authorization code flow.
func (p *GoogleProvider) LoginWithCode(ctx context.Context, in io.Reader, out io.Writer) error {
	authURL := p.config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintln(out, "1) Copy this URL and open it in your browser:")
	fmt.Fprintln(out, authURL)
	fmt.Fprintln(out, "\n2) Sign in and accept the permissions.")
	fmt.Fprint(out, "3) Paste the authorization code here: ")

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && code == "" {
		return fmt.Errorf("cannot read auth code: %w", err)
	}

	tok, err := p.config.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("cannot exchange code for token: %w", err)
	}
	return p.save(ctx, tok)
}

func (p *GoogleProvider) save(ctx context.Context, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := p.store.Put(ctx, p.key, raw); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

type persistingSource struct {
	base oauth2.TokenSource
	save func(*oauth2.Token) error
	log  *zap.SugaredLogger

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.save(tok); err != nil {
			s.log.Warnw("refreshed token not persisted", "error", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

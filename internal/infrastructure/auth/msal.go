package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
	"go.uber.org/zap"

	"emailfilter/internal/infrastructure/kv"
)

// kvCache stores the serialized MSAL cache under one key. Export only writes
// when the serialized bytes changed since the last load or write.
type kvCache struct {
	store kv.Store
	key   string

	mu   sync.Mutex
	last []byte
}

func (c *kvCache) Replace(ctx context.Context, u cache.Unmarshaler, _ cache.ReplaceHints) error {
	data, found, err := c.store.Get(ctx, c.key)
	if err != nil {
		return fmt.Errorf("load token cache: %w", err)
	}
	if !found || len(data) == 0 {
		return nil
	}

	c.mu.Lock()
	c.last = data
	c.mu.Unlock()

	if err := u.Unmarshal(data); err != nil {
		return fmt.Errorf("decode token cache: %w", err)
	}
	return nil
}

func (c *kvCache) Export(ctx context.Context, m cache.Marshaler, _ cache.ExportHints) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("encode token cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if bytes.Equal(data, c.last) {
		return nil
	}
	if err := c.store.Put(ctx, c.key, data); err != nil {
		return fmt.Errorf("save token cache: %w", err)
	}
	c.last = data
	return nil
}

// MSALProvider issues Microsoft Graph tokens from a persisted MSAL cache.
// It also satisfies azcore.TokenCredential for the Graph SDK.
type MSALProvider struct {
	client public.Client
	scopes []string
	log    *zap.SugaredLogger
}

func NewMSALProvider(clientID, authority string, scopes []string, store kv.Store, cacheKey string, log *zap.SugaredLogger) (*MSALProvider, error) {
	client, err := public.New(clientID,
		public.WithAuthority(authority),
		public.WithCache(&kvCache{store: store, key: cacheKey}),
	)
	if err != nil {
		return nil, fmt.Errorf("create msal client: %w", err)
	}
	return &MSALProvider{client: client, scopes: scopes, log: log}, nil
}

func (p *MSALProvider) Token(ctx context.Context) (string, error) {
	res, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}
	return res.AccessToken, nil
}

// GetToken ignores the requested scopes; the configured delegated scopes are
// the only ones the cached refresh token covers.
func (p *MSALProvider) GetToken(ctx context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	res, err := p.acquire(ctx)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{Token: res.AccessToken, ExpiresOn: res.ExpiresOn}, nil
}

func (p *MSALProvider) acquire(ctx context.Context) (public.AuthResult, error) {
	accounts, err := p.client.Accounts(ctx)
	if err != nil {
		return public.AuthResult{}, fmt.Errorf("read cached accounts: %w", err)
	}
	if len(accounts) == 0 {
		return public.AuthResult{}, ErrNoCachedAccount
	}

	res, err := p.client.AcquireTokenSilent(ctx, p.scopes, public.WithSilentAccount(accounts[0]))
	if err != nil {
		return public.AuthResult{}, fmt.Errorf("acquire token silently: %w", err)
	}
	p.log.Debugw("using cached credentials", "account", accounts[0].PreferredUsername, "expires_on", res.ExpiresOn)
	return res, nil
}

// LoginDeviceCode runs the device-code flow, printing instructions to w.
// The resulting cache is persisted through the store.
func (p *MSALProvider) LoginDeviceCode(ctx context.Context, w io.Writer) (string, error) {
	dc, err := p.client.AcquireTokenByDeviceCode(ctx, p.scopes)
	if err != nil {
		return "", fmt.Errorf("start device code flow: %w", err)
	}
	fmt.Fprintln(w, dc.Result.Message)

	res, err := dc.AuthenticationResult(ctx)
	if err != nil {
		return "", fmt.Errorf("complete device code flow: %w", err)
	}
	return res.Account.PreferredUsername, nil
}

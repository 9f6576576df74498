// Package credential provides the lazy, thread-safe credential-provider
// singleton the remote-GQL and KQL backends use to acquire bearer tokens
//. Built on azidentity's chained credential,
// matching the Azure SDK usage pattern already present in the example
// pack's infrastructure-adjacent repos.
package credential

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// Provider is a lazy singleton wrapping azcore.TokenCredential. Token
// acquisition is thread-safe; azidentity caches tokens internally until
// ~expiry, but for long-running operations (>60 min ingestion) callers
// MUST re-acquire between retries rather than holding a token handle —
// see GetToken's doc.
type Provider struct {
	mu    sync.Mutex
	cred  azcore.TokenCredential
	scope string
	err   error
}

// New builds a Provider for the given token scope (e.g.
// "https://graph.example.com/.default"). The underlying credential is NOT
// constructed here — construction happens lazily on first GetToken call,
// inside the request path.
func New(scope string) *Provider {
	return &Provider{scope: scope}
}

// GetToken acquires (or returns a cached, unexpired) bearer token. Call
// this again between retries on a 429/auth failure rather than reusing a
// token string you captured earlier — azidentity's internal cache already
// avoids redundant network round-trips for a still-valid token, so this
// costs nothing on the common path.
func (p *Provider) GetToken(ctx context.Context) (string, error) {
	cred, err := p.credential()
	if err != nil {
		return "", err
	}
	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{p.scope}})
	if err != nil {
		return "", err
	}
	return tok.Token, nil
}

// credential lazily constructs the chained azidentity credential exactly
// once; a construction failure is cached and returned on every subsequent
// call (azidentity errors here are configuration errors, not transient).
func (p *Provider) credential() (azcore.TokenCredential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cred != nil || p.err != nil {
		return p.cred, p.err
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	p.cred, p.err = cred, err
	return p.cred, p.err
}

// ExpiryMargin is a five-minute margin on token expiry. Nothing in this
// package applies it: GetToken always defers to the underlying
// credential's own cache to decide when a token is refreshed.
const ExpiryMargin = 5 * time.Minute

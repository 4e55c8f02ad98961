package signageapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
)

// CredentialSource fournit la clé envoyée dans l'en-tête APIKEY.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// FreshCredentials demande une nouvelle clé avant chaque appel privilégié.
type FreshCredentials struct {
	Fetch func(ctx context.Context) (string, error)
}

func (f FreshCredentials) Credential(ctx context.Context) (string, error) {
	return f.Fetch(ctx)
}

// CachedCredentials réutilise une clé pendant ttl.
type CachedCredentials struct {
	src CredentialSource
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	key     string
	fetched time.Time
}

func NewCachedCredentials(src CredentialSource, ttl time.Duration, now func() time.Time) *CachedCredentials {
	if now == nil {
		now = time.Now
	}
	return &CachedCredentials{src: src, ttl: ttl, now: now}
}

func (c *CachedCredentials) Credential(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != "" && c.now().Sub(c.fetched) < c.ttl {
		return c.key, nil
	}
	key, err := c.src.Credential(ctx)
	if err != nil {
		return "", err
	}
	c.key = key
	c.fetched = c.now()
	return key, nil
}

// Invalidate force un renouvellement au prochain appel.
func (c *CachedCredentials) Invalidate() {
	c.mu.Lock()
	c.key = ""
	c.mu.Unlock()
}

// StaticCredentials renvoie toujours la même clé.
type StaticCredentials string

func (s StaticCredentials) Credential(context.Context) (string, error) { return string(s), nil }

type keyResponse struct {
	Key string `json:"key"`
}

// NewKey demande une clé via /get-new-key/{id} (basic auth si un utilisateur est configuré).
func (c *Client) NewKey(ctx context.Context) (string, error) {
	settings, _, _ := c.current()
	var out keyResponse
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/get-new-key/" + settings.DeviceID,
		endpoint: "/get-new-key/{id}",
		basic:    true,
	}, domain.ErrTransport, domain.ErrProtocol, &out)
	if err != nil {
		return "", err
	}
	if out.Key == "" {
		return "", &domain.Error{Kind: domain.ErrProtocol, Op: "decode", Endpoint: "/get-new-key/{id}", Err: errEmptyKey}
	}
	return out.Key, nil
}

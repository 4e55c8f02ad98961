package signageapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/Guilhem-Bonnet/signage-agent/internal/buildinfo"
	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/metrics"
)

// Settings regroupe ce que le client lit de la config; rechargeable via Configure.
type Settings struct {
	BaseURL       string
	DeviceID      string
	Username      string
	Password      string
	CredentialTTL time.Duration
	Timeout       time.Duration
}

// Client parle au serveur de signage. Il est utilisé par la boucle et par
// la goroutine d'acquittement, d'où le verrou sur les réglages.
type Client struct {
	mu       sync.RWMutex
	settings Settings
	creds    CredentialSource
	http     *http.Client

	logger   zerolog.Logger
	breaker  *gobreaker.CircuitBreaker[domain.ScheduleSnapshot]
	readyMin time.Duration
	readyMax time.Duration
}

func New(settings Settings, logger zerolog.Logger) *Client {
	c := &Client{
		logger:   logger,
		readyMin: time.Second,
		readyMax: 2 * time.Minute,
	}
	c.breaker = newScheduleBreaker(logger)
	c.Configure(settings)
	return c
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Configure applique de nouveaux réglages (SIGHUP). Le cache de clé est
// réinitialisé car l'identité peut avoir changé.
func (c *Client) Configure(settings Settings) {
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = settings
	c.http = &http.Client{Timeout: timeoutOr(settings.Timeout)}
	fresh := FreshCredentials{Fetch: c.NewKey}
	if settings.CredentialTTL > 0 {
		c.creds = NewCachedCredentials(fresh, settings.CredentialTTL, time.Now)
	} else {
		c.creds = fresh
	}
}

// WithReadinessBackoff règle l'attente exponentielle de WaitReady (tests).
func (c *Client) WithReadinessBackoff(initial, max time.Duration) *Client {
	c.readyMin = initial
	c.readyMax = max
	return c
}

// WithCredentials remplace la politique de clé (tests, ou clé statique).
func (c *Client) WithCredentials(src CredentialSource) *Client {
	c.mu.Lock()
	c.creds = src
	c.mu.Unlock()
	return c
}

func (c *Client) current() (Settings, CredentialSource, *http.Client) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings, c.creds, c.http
}

func (c *Client) credential(ctx context.Context) (string, error) {
	_, creds, _ := c.current()
	return creds.Credential(ctx)
}

type request struct {
	method   string
	path     string
	endpoint string // forme générique pour les logs et métriques
	apiKey   string
	basic    bool
	body     any
}

// do exécute la requête et décode la réponse JSON dans out.
// Erreur réseau → netKind; statut non-2xx ou JSON invalide → badKind.
func (c *Client) do(ctx context.Context, req request, netKind, badKind error, out any) error {
	settings, creds, httpClient := c.current()

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return &domain.Error{Kind: badKind, Op: req.method, Endpoint: req.endpoint, Err: err}
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, settings.BaseURL+req.path, body)
	if err != nil {
		return &domain.Error{Kind: badKind, Op: req.method, Endpoint: req.endpoint, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("User-Agent", buildinfo.UserAgent())
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.apiKey != "" {
		httpReq.Header.Set("APIKEY", req.apiKey)
	}
	if req.basic && settings.Username != "" {
		httpReq.SetBasicAuth(settings.Username, settings.Password)
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		metrics.RemoteRequestsTotal.WithLabelValues(req.endpoint, "error").Inc()
		return &domain.Error{Kind: netKind, Op: req.method, Endpoint: req.endpoint, Err: err}
	}
	defer resp.Body.Close()
	metrics.RemoteRequestsTotal.WithLabelValues(req.endpoint, statusClass(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if req.apiKey != "" && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			// clé refusée: la suivante sera redemandée au serveur
			if cached, ok := creds.(*CachedCredentials); ok {
				cached.Invalidate()
			}
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.Error{
			Kind:     badKind,
			Op:       req.method,
			Endpoint: req.endpoint,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(snippet))),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		kind := badKind
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = netKind
		}
		return &domain.Error{Kind: kind, Op: "decode", Endpoint: req.endpoint, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

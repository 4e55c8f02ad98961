package assets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/signage-agent/internal/buildinfo"
	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/infra/fsx"
	"github.com/Guilhem-Bonnet/signage-agent/internal/metrics"
)

var errInvalidName = errors.New("asset has no usable local name")

// Store gère le dossier d'assets: un fichier par nom local, jamais partiel.
type Store struct {
	dir    string
	client *http.Client
	logger zerolog.Logger

	mu      sync.RWMutex
	allowed []string
}

// New construit le store. downloadTimeout plafonne un téléchargement complet
// (0 = aucun plafond); l'établissement de la connexion et l'attente des
// en-têtes restent bornés par le transport.
func New(dir string, downloadTimeout time.Duration, allowedHosts []string, logger zerolog.Logger) *Store {
	if downloadTimeout < 0 {
		downloadTimeout = 0
	}
	s := &Store{
		dir: dir,
		client: &http.Client{
			Timeout:   downloadTimeout,
			Transport: newTransport(),
		},
		logger: logger,
	}
	s.SetAllowedHosts(allowedHosts)
	return s
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          4,
	}
}

// SetAllowedHosts remplace la liste blanche (vide = tout autoriser).
func (s *Store) SetAllowedHosts(hosts []string) {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			out = append(out, strings.TrimPrefix(h, "."))
		}
	}
	s.mu.Lock()
	s.allowed = out
	s.mu.Unlock()
}

// Allowed vérifie l'hôte source: égalité exacte ou sous-domaine d'un hôte autorisé.
func (s *Store) Allowed(v domain.Video) bool {
	s.mu.RLock()
	allowed := s.allowed
	s.mu.RUnlock()
	if len(allowed) == 0 {
		return true
	}
	u, err := url.Parse(v.SourceURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// Path renvoie le chemin absolu de l'asset (sans vérifier son existence).
func (s *Store) Path(v domain.Video) (string, error) {
	name := v.FileName()
	if name == "" {
		return "", &domain.Error{Kind: domain.ErrIO, Op: "asset path", Err: fmt.Errorf("%w (id=%s)", errInvalidName, v.ID)}
	}
	abs, err := filepath.Abs(filepath.Join(s.dir, name))
	if err != nil {
		return "", &domain.Error{Kind: domain.ErrIO, Op: "asset path", Err: err}
	}
	return abs, nil
}

// Ensure télécharge l'asset s'il n'est pas déjà présent et non vide.
func (s *Store) Ensure(ctx context.Context, v domain.Video) (string, error) {
	path, err := s.Path(v)
	if err != nil {
		return "", err
	}
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() && fi.Size() > 0 {
		return path, nil
	}

	logger := s.logger.With().Str("asset", filepath.Base(path)).Str("asset_id", string(v.ID)).Logger()
	logger.Info().Str("source", v.SourceURL).Msg("downloading asset")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.SourceURL, nil)
	if err != nil {
		metrics.AssetDownloadsTotal.WithLabelValues("error").Inc()
		return "", &domain.Error{Kind: domain.ErrFetch, Op: "download", Endpoint: v.SourceURL, Err: err}
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.AssetDownloadsTotal.WithLabelValues("error").Inc()
		return "", &domain.Error{Kind: domain.ErrFetch, Op: "download", Endpoint: v.SourceURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.AssetDownloadsTotal.WithLabelValues("error").Inc()
		return "", &domain.Error{Kind: domain.ErrFetch, Op: "download", Endpoint: v.SourceURL, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	n, err := fsx.WriteStreamAtomic(path, resp.Body, 0o644)
	if err != nil {
		metrics.AssetDownloadsTotal.WithLabelValues("error").Inc()
		kind := domain.ErrIO
		if ctx.Err() != nil || isNetRead(err) {
			kind = domain.ErrFetch
		}
		return "", &domain.Error{Kind: kind, Op: "write asset", Endpoint: v.SourceURL, Err: err}
	}
	metrics.AssetDownloadsTotal.WithLabelValues("ok").Inc()
	metrics.AssetBytesTotal.Add(float64(n))
	logger.Info().Int64("bytes", n).Msg("asset downloaded")
	return path, nil
}

// isNetRead distingue une coupure pendant la lecture du corps d'une erreur disque.
func isNetRead(err error) bool {
	var pe *os.PathError
	var le *os.LinkError
	return !errors.As(err, &pe) && !errors.As(err, &le)
}

// Prune supprime les fichiers du dossier d'assets qui ne figurent pas dans keep
// (chemins absolus), y compris les téléchargements partiels laissés par un
// arrêt brutal. Les sous-dossiers sont ignorés. Ne pas appeler pendant un Ensure.
func (s *Store) Prune(ctx context.Context, keep []string) (int, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		if abs, err := filepath.Abs(k); err == nil {
			keepSet[abs] = struct{}{}
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, &domain.Error{Kind: domain.ErrIO, Op: "prune", Err: err}
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(s.dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := keepSet[abs]; ok {
			continue
		}
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
		if fsx.IsTemp(e.Name()) {
			s.logger.Info().Str("file", e.Name()).Msg("removed leftover partial download")
			continue
		}
		s.logger.Debug().Str("file", e.Name()).Msg("pruned asset")
	}
	metrics.AssetsPrunedTotal.Add(float64(removed))
	if len(errs) > 0 {
		return removed, &domain.Error{Kind: domain.ErrIO, Op: "prune", Err: errors.Join(errs...)}
	}
	return removed, nil
}

package app

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

type fakeContent struct {
	playlists map[uuid.UUID][]domain.Video
	device    []domain.Video
	err       error
	calls     []string
}

func (f *fakeContent) PlaylistVideos(_ context.Context, id uuid.UUID) ([]domain.Video, error) {
	f.calls = append(f.calls, id.String())
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.playlists[id]), nil
}

func (f *fakeContent) DeviceVideos(context.Context) ([]domain.Video, error) {
	f.calls = append(f.calls, "device")
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.device), nil
}

type fakeAssets struct {
	dir      string
	hosts    []string
	failOn   string
	ensured  []string
	kept     []string
	pruneErr error
	onEnsure func(name string)
}

func (f *fakeAssets) Ensure(_ context.Context, v domain.Video) (string, error) {
	if v.LocalName == f.failOn {
		return "", &domain.Error{Kind: domain.ErrFetch, Op: "download", Endpoint: v.SourceURL, Status: 404}
	}
	f.ensured = append(f.ensured, v.LocalName)
	if f.onEnsure != nil {
		f.onEnsure(v.LocalName)
	}
	return filepath.Join(f.dir, v.FileName()), nil
}

func (f *fakeAssets) Allowed(v domain.Video) bool {
	if len(f.hosts) == 0 {
		return true
	}
	u, err := url.Parse(v.SourceURL)
	return err == nil && slices.Contains(f.hosts, u.Hostname())
}

func (f *fakeAssets) Prune(_ context.Context, keep []string) (int, error) {
	f.kept = slices.Clone(keep)
	return 0, f.pruneErr
}

type fakeStore struct {
	state       domain.SyncState
	manifest    []string
	saves       int
	saveErr     error
	manifestErr error
}

func (f *fakeStore) Load(context.Context) (domain.SyncState, error) { return f.state.Clone(), nil }

func (f *fakeStore) Save(_ context.Context, st domain.SyncState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.state = st.Clone()
	return nil
}

func (f *fakeStore) WriteManifest(_ context.Context, paths []string) error {
	if f.manifestErr != nil {
		return f.manifestErr
	}
	f.manifest = slices.Clone(paths)
	return nil
}

func (f *fakeStore) ManifestPath() string { return "/data/playlist.txt" }
func (f *fakeStore) StatePath() string    { return "/data/data.json" }

type fakeSchedule struct {
	snap   domain.ScheduleSnapshot
	err    error
	calls  int
	acks   atomic.Int32
	ackErr error
}

func (f *fakeSchedule) TimelineSchedule(context.Context) (domain.ScheduleSnapshot, error) {
	f.calls++
	return f.snap, f.err
}

func (f *fakeSchedule) AcknowledgeUpdates(context.Context) error {
	f.acks.Add(1)
	return f.ackErr
}

type fakeLegacy struct {
	updated *time.Time
	err     error
}

func (f *fakeLegacy) LastUpdated(context.Context) (*time.Time, error) { return f.updated, f.err }

type fakePlayer struct {
	mu       sync.Mutex
	running  bool
	starts   int
	reloads  int
	stops    int
	ensures  int
	spawnErr error
}

func (p *fakePlayer) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spawnErr != nil {
		return p.spawnErr
	}
	p.running = true
	p.starts++
	return nil
}

func (p *fakePlayer) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.stops++
	return nil
}

func (p *fakePlayer) EnsureRunning(ctx context.Context) (bool, error) {
	p.mu.Lock()
	p.ensures++
	running := p.running
	p.mu.Unlock()
	if running {
		return false, nil
	}
	if err := p.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (p *fakePlayer) Reload(ctx context.Context) error {
	p.mu.Lock()
	p.reloads++
	p.mu.Unlock()
	_ = p.Stop(ctx)
	return p.Start(ctx)
}

func (p *fakePlayer) State() domain.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return domain.PlayerRunning
	}
	return domain.PlayerStopped
}

type memJournal struct {
	records []domain.SyncRecord
}

func (j *memJournal) Record(_ context.Context, rec domain.SyncRecord) (domain.SyncRecord, error) {
	j.records = append(j.records, rec)
	return rec, nil
}

func (j *memJournal) Get(_ context.Context, id string) (domain.SyncRecord, error) {
	for _, r := range j.records {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.SyncRecord{}, ports.ErrNotFound
}

func (j *memJournal) List(context.Context, int) ([]domain.SyncRecord, error) {
	return slices.Clone(j.records), nil
}

var errBoom = errors.New("boom")

func transportErr() error {
	return &domain.Error{Kind: domain.ErrTransport, Op: "GET", Endpoint: "/client-timeline-schedule/{id}", Err: errBoom}
}

func video(id string, order int, name string) domain.Video {
	return domain.Video{ID: domain.AssetID(id), SourceURL: "http://cdn.local/" + name, Order: order, LocalName: name}
}

func tp(t time.Time) *time.Time { return &t }

package httpapi

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/signage-agent/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/signage-agent/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/signage-agent/internal/app"
	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

func newTestServer(t *testing.T) (*Server, *sqlite.JournalRepository, *memorybus.Bus) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	journal := sqlite.NewJournalRepository(db.SQL)
	bus := memorybus.New()
	t.Cleanup(bus.Close)
	status := app.NewStatusTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	status.Update(func(s *app.Status) {
		s.Ticks = 3
		s.PlayerState = string(domain.PlayerRunning)
		s.Videos = 2
	})
	return NewServer(zerolog.Nop(), status, journal, bus), journal, bus
}

func TestRouter_HealthAndStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Router()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("health: unexpected response %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: want %d, got %d", http.StatusOK, rr.Code)
	}
	var st app.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Ticks != 3 || st.PlayerState != "running" || st.Videos != 2 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestRouter_SyncsListAndGet(t *testing.T) {
	srv, journal, _ := newTestServer(t)
	h := srv.Router()

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	rec, err := journal.Record(context.Background(), domain.SyncRecord{
		Source:     domain.SourceSchedule,
		PlaylistID: "5f1d7a4e-8a57-4c9e-9d55-5f6b2b1f0a01",
		Outcome:    domain.SyncSucceeded,
		VideoCount: 4,
		StartedAt:  base,
		FinishedAt: base.Add(1500 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/syncs?limit=5", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list: want %d, got %d", http.StatusOK, rr.Code)
	}
	var list []SyncDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Videos != 4 || list[0].DurationMs != 1500 || list[0].Outcome != "succeeded" {
		t.Fatalf("unexpected list %+v", list)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/syncs/"+rec.ID, nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), rec.ID) {
		t.Fatalf("get: unexpected response %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/syncs/unknown", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get missing: want %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("metrics: unexpected response %d", rr.Code)
	}
}

func TestRouter_EventsStreamsBus(t *testing.T) {
	srv, _, bus := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	if !sc.Scan() || sc.Text() != "event: hello" {
		t.Fatalf("expected hello event, got %q", sc.Text())
	}
	for sc.Scan() && sc.Text() != "" {
	}

	// l'abonnement est pris avant le hello
	bus.Publish(ports.TopicSyncCompleted, []byte(`{"videos":2}`))
	var lines []string
	for sc.Scan() {
		if sc.Text() == "" {
			break
		}
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 || lines[0] != "event: "+ports.TopicSyncCompleted || lines[1] != `data: {"videos":2}` {
		t.Fatalf("unexpected event %q", lines)
	}
}

func TestService_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv, _, _ := newTestServer(t)
	svc := NewService(ln.Addr().String(), srv.Router(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/api/v1/health"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
	if _, err := http.Get(url); err == nil {
		t.Fatalf("server still accepting connections")
	}
}

func TestRouter_EventsTopicFilter(t *testing.T) {
	srv, _, bus := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events?topic="+ports.TopicPlayerExited, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() && sc.Text() != "" {
	}
	bus.Publish(ports.TopicSyncCompleted, []byte(`{}`))
	bus.Publish(ports.TopicPlayerExited, []byte(`{"pid":42}`))
	if !sc.Scan() || sc.Text() != "event: "+ports.TopicPlayerExited {
		t.Fatalf("expected only player.exited, got %q", sc.Text())
	}
}

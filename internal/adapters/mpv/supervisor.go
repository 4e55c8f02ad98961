package mpv

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/metrics"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

const (
	evStart       = "start"
	evSpawned     = "spawned"
	evSpawnFailed = "spawn_failed"
	evExit        = "exit"
	evKill        = "kill"
)

var ErrStopTimeout = errors.New("player did not exit after kill")

// process est un lancement donné; done est fermé par le reaper après Wait.
type process struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	done      chan struct{}
	err       error
}

// Supervisor possède l'unique processus mpv. Toutes les transitions passent
// par la machine à états; seul le reaper tourne en parallèle.
type Supervisor struct {
	opts   Options
	logger zerolog.Logger
	bus    ports.EventBus

	mu    sync.Mutex
	state *fsm.FSM
	proc  *process
	spawn int
}

func New(opts Options, bus ports.EventBus, logger zerolog.Logger) *Supervisor {
	if opts.Binary == "" {
		opts.Binary = "mpv"
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	s := &Supervisor{opts: opts, logger: logger, bus: bus}
	s.state = fsm.NewFSM(
		string(domain.PlayerStopped),
		fsm.Events{
			{Name: evStart, Src: []string{string(domain.PlayerStopped), string(domain.PlayerExited), string(domain.PlayerKilled)}, Dst: string(domain.PlayerStarting)},
			{Name: evSpawned, Src: []string{string(domain.PlayerStarting)}, Dst: string(domain.PlayerRunning)},
			{Name: evSpawnFailed, Src: []string{string(domain.PlayerStarting)}, Dst: string(domain.PlayerStopped)},
			{Name: evExit, Src: []string{string(domain.PlayerRunning)}, Dst: string(domain.PlayerExited)},
			{Name: evKill, Src: []string{string(domain.PlayerRunning)}, Dst: string(domain.PlayerKilled)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.logger.Debug().Str("from", e.Src).Str("to", e.Dst).Str("event", e.Event).Msg("player state")
			},
		},
	)
	return s
}

func (s *Supervisor) fire(event string) error {
	// contexte détaché: Stop est aussi appelé pendant l'arrêt
	return s.state.Event(context.Background(), event)
}

// observe constate une sortie détectée par le reaper. Appelé sous s.mu.
func (s *Supervisor) observe() {
	if s.state.Current() != string(domain.PlayerRunning) || s.proc == nil {
		return
	}
	select {
	case <-s.proc.done:
	default:
		return
	}
	_ = s.fire(evExit)
	metrics.SetPlayerUp(false)
	s.logger.Warn().Int("pid", s.proc.pid).AnErr("exit", s.proc.err).Dur("uptime", time.Since(s.proc.startedAt)).Msg("player exited")
	s.publish(ports.TopicPlayerExited, s.proc, s.proc.err)
}

func (s *Supervisor) State() domain.PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe()
	return domain.PlayerState(s.state.Current())
}

func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe()
	if s.state.Current() != string(domain.PlayerRunning) || s.proc == nil {
		return 0
	}
	return s.proc.pid
}

// Start lance mpv. Sans effet si le lecteur tourne déjà.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe()
	return s.startLocked(ctx)
}

func (s *Supervisor) startLocked(ctx context.Context) error {
	if domain.PlayerState(s.state.Current()) == domain.PlayerRunning {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &domain.Error{Kind: domain.ErrSpawn, Op: "start player", Err: err}
	}
	if err := s.fire(evStart); err != nil {
		return &domain.Error{Kind: domain.ErrSpawn, Op: "start player", Err: err}
	}

	// le lecteur doit survivre au contexte du tick qui l'a lancé
	cmd := exec.Command(s.opts.Binary, s.opts.args()...)
	cmd.Env = s.opts.environ()
	if err := cmd.Start(); err != nil {
		_ = s.fire(evSpawnFailed)
		metrics.PlayerSpawnsTotal.WithLabelValues("error").Inc()
		return &domain.Error{Kind: domain.ErrSpawn, Op: "start player", Endpoint: s.opts.Binary, Err: err}
	}

	p := &process{cmd: cmd, pid: cmd.Process.Pid, startedAt: time.Now(), done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	s.proc = p
	s.spawn++
	_ = s.fire(evSpawned)

	metrics.PlayerSpawnsTotal.WithLabelValues("ok").Inc()
	metrics.SetPlayerUp(true)
	s.logger.Info().Int("pid", p.pid).Int("spawn", s.spawn).Str("playlist", s.opts.Manifest).Msg("player started")
	s.publish(ports.TopicPlayerStarted, p, nil)
	return nil
}

// Stop tue le lecteur et attend sa fin. Idempotent.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe()
	return s.stopLocked(ctx)
}

func (s *Supervisor) stopLocked(ctx context.Context) error {
	if s.state.Current() != string(domain.PlayerRunning) || s.proc == nil {
		return nil
	}
	p := s.proc
	if err := p.cmd.Process.Kill(); err != nil {
		s.logger.Debug().Err(err).Int("pid", p.pid).Msg("kill player")
	}

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		return fmt.Errorf("pid %d: %w", p.pid, ErrStopTimeout)
	case <-ctx.Done():
		// arrêt en cours: on attend quand même le reaper, borné par le timer
		select {
		case <-p.done:
		case <-timer.C:
			return fmt.Errorf("pid %d: %w", p.pid, ErrStopTimeout)
		}
	}

	_ = s.fire(evKill)
	metrics.SetPlayerUp(false)
	s.logger.Info().Int("pid", p.pid).Msg("player stopped")
	return nil
}

// EnsureRunning relance le lecteur s'il n'est pas en cours d'exécution.
func (s *Supervisor) EnsureRunning(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe()
	if s.state.Current() == string(domain.PlayerRunning) {
		return false, nil
	}
	if err := s.startLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Reload relance mpv pour qu'il relise le manifeste.
func (s *Supervisor) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe()
	if err := s.stopLocked(ctx); err != nil {
		return err
	}
	return s.startLocked(ctx)
}

type playerEvent struct {
	PID   int    `json:"pid"`
	Spawn int    `json:"spawn"`
	Error string `json:"error,omitempty"`
}

func (s *Supervisor) publish(topic string, p *process, err error) {
	if s.bus == nil {
		return
	}
	evt := playerEvent{PID: p.pid, Spawn: s.spawn}
	if err != nil {
		evt.Error = err.Error()
	}
	b, _ := json.Marshal(evt)
	s.bus.Publish(topic, b)
}

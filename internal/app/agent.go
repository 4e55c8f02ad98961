package app

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/metrics"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

const DefaultSettleDelay = 10 * time.Second

// ReloadFunc relit la configuration et l'état persistant (SIGHUP).
type ReloadFunc func(ctx context.Context) (domain.SyncState, error)

// Agent est la boucle d'orchestration: un seul goroutine, un tick à la fois.
type Agent struct {
	source UpdateSource
	player ports.Player
	status *StatusTracker
	logger zerolog.Logger

	state  domain.SyncState
	reload <-chan os.Signal
	onHUP  ReloadFunc

	SettleDelay      time.Duration
	FallbackInterval time.Duration

	now func() time.Time
}

func NewAgent(state domain.SyncState, source UpdateSource, player ports.Player, status *StatusTracker, logger zerolog.Logger) *Agent {
	if status == nil {
		status = NewStatusTracker(time.Now().UTC())
	}
	a := &Agent{
		source:           source,
		player:           player,
		status:           status,
		logger:           logger,
		state:            state,
		SettleDelay:      DefaultSettleDelay,
		FallbackInterval: LegacyPollInterval,
		now:              time.Now,
	}
	status.Update(func(s *Status) { s.applyState(state) })
	return a
}

// WithReload branche le rechargement sur un canal de signaux (SIGHUP).
func (a *Agent) WithReload(ch <-chan os.Signal, fn ReloadFunc) *Agent {
	a.reload = ch
	a.onHUP = fn
	return a
}

// State renvoie une copie de l'état courant. Réservé au goroutine de la boucle et aux tests.
func (a *Agent) State() domain.SyncState { return a.state.Clone() }

func (a *Agent) String() string { return "agent" }

// Serve exécute la boucle jusqu'à l'annulation du contexte. Le premier tick
// part immédiatement; le lecteur est tué à la sortie.
func (a *Agent) Serve(ctx context.Context) error {
	defer func() {
		if ctx.Err() == nil {
			return
		}
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.player.Stop(stopCtx); err != nil {
			a.logger.Error().Err(err).Msg("stop player failed")
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("agent loop stopped")
			return ctx.Err()
		case sig := <-a.reload:
			a.handleReload(ctx, sig)
		case <-timer.C:
			started := a.now()
			interval := a.Tick(ctx)
			wait := interval - a.now().Sub(started)
			if wait < 0 {
				wait = 0
			}
			metrics.PollInterval.Set(interval.Seconds())
			a.logger.Debug().Dur("interval", interval).Dur("next_in", wait).Msg("tick done")
			timer.Reset(wait)
		}
	}
}

func (a *Agent) handleReload(ctx context.Context, sig os.Signal) {
	if a.onHUP == nil {
		return
	}
	a.logger.Info().Str("signal", sig.String()).Msg("reloading configuration")
	st, err := a.onHUP(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("reload failed, keeping previous configuration")
		return
	}
	a.state = st
	a.status.Update(func(s *Status) { s.applyState(st) })
	a.logger.Info().Str("playlist_id", domain.PlaylistString(st.CurrentPlaylist)).Int("videos", len(st.Videos)).Msg("configuration reloaded")
}

// Tick exécute une itération complète et renvoie l'intervalle avant la suivante.
// Les appels en cours vont à leur terme; l'arrêt est observé entre les étapes.
func (a *Agent) Tick(ctx context.Context) time.Duration {
	if ctx.Err() != nil {
		return a.FallbackInterval
	}
	// le lecteur est piloté hors annulation; les sources la voient entre deux étapes
	work := context.WithoutCancel(ctx)
	tickStart := a.now().UTC()

	interval := a.FallbackInterval
	source := "none"
	lastErr := ""
	res, err := a.source.Check(ctx, &a.state)
	if err != nil {
		a.logger.Error().Err(err).Dur("interval", interval).Msg("no update source available, skipping tick")
		lastErr = err.Error()
	} else {
		source = string(res.Source)
		if res.PollInterval > 0 {
			interval = res.PollInterval
		}
	}
	metrics.TicksTotal.WithLabelValues(source).Inc()

	if ctx.Err() == nil && err == nil && res.ContentChanged {
		a.logger.Info().Msg("content changed, restarting player")
		if rerr := a.player.Reload(work); rerr != nil {
			a.logger.Error().Err(rerr).Msg("player reload failed")
		}
	}

	respawned := false
	if ctx.Err() == nil {
		var perr error
		respawned, perr = a.player.EnsureRunning(work)
		if perr != nil {
			a.logger.Error().Err(perr).Str("kind", domain.KindName(perr)).Msg("player respawn failed, retrying next tick")
		} else if respawned {
			a.logger.Warn().Msg("player was not running, respawned")
		}
	}

	a.publishStatus(tickStart, source, lastErr, interval, respawned)

	if ctx.Err() == nil && a.SettleDelay > 0 {
		settle := time.NewTimer(a.SettleDelay)
		select {
		case <-ctx.Done():
		case <-settle.C:
		}
		settle.Stop()
	}
	return interval
}

type pidReporter interface {
	PID() int
}

func (a *Agent) publishStatus(at time.Time, source, lastErr string, interval time.Duration, respawned bool) {
	state := a.player.State()
	pid := 0
	if pr, ok := a.player.(pidReporter); ok {
		pid = pr.PID()
	}
	a.status.Update(func(s *Status) {
		s.LastTickAt = &at
		s.Ticks++
		s.UpdateSource = source
		s.LastError = lastErr
		s.PollIntervalSec = interval.Seconds()
		s.PlayerState = string(state)
		s.PlayerPID = pid
		if respawned {
			s.PlayerRespawns++
		}
		s.applyState(a.state)
	})
}

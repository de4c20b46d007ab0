package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Broadcaster delivers engine output to connected endpoints. Implementations
// must not block; the engine calls them from its owner goroutine.
type Broadcaster interface {
	Broadcast(event Event)
	SendTo(connID string, event Event)
}

// Config holds engine settings
type Config struct {
	Durations    Durations
	TickInterval time.Duration
	Clock        clockwork.Clock
}

// DefaultConfig returns the standard 25/5 minute cadence on a real clock
func DefaultConfig() Config {
	return Config{
		Durations:    DefaultDurations(),
		TickInterval: time.Second,
		Clock:        clockwork.NewRealClock(),
	}
}

type command struct {
	name  string
	apply func() error
	reply chan error
}

// Engine is the single owner of the timer and the roster. Every mutation,
// whether a clock tick or a client operation, runs on the goroutine started
// by Run, in the order it was accepted.
type Engine struct {
	timer  *Timer
	roster *Roster
	out    Broadcaster

	clock        clockwork.Clock
	tickInterval time.Duration

	commands chan command
	done     chan struct{}

	mu      sync.Mutex
	running bool
}

// NewEngine creates an engine that reports to out. Run must be called before
// any operation can complete.
func NewEngine(cfg Config, out Broadcaster) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Durations.Work <= 0 || cfg.Durations.Break <= 0 {
		cfg.Durations = DefaultDurations()
	}

	return &Engine{
		timer:        NewTimer(cfg.Durations),
		roster:       NewRoster(cfg.Clock.Now),
		out:          out,
		clock:        cfg.Clock,
		tickInterval: cfg.TickInterval,
		commands:     make(chan command),
		done:         make(chan struct{}),
	}
}

// Run drives the clock and applies operations until ctx is cancelled. It may
// only be called once.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	ticker := e.clock.NewTicker(e.tickInterval)
	defer func() {
		ticker.Stop()
		close(e.done)
	}()

	log.Info().
		Dur("tick_interval", e.tickInterval).
		Int("work_duration_sec", e.timer.durations.Work).
		Int("break_duration_sec", e.timer.durations.Break).
		Msg("session engine started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session engine shutting down")
			return nil
		case <-ticker.Chan():
			e.tick()
		case cmd := <-e.commands:
			err := cmd.apply()
			if err != nil {
				log.Debug().Err(err).Str("command", cmd.name).Msg("operation rejected")
			}
			cmd.reply <- err
		}
	}
}

// Done is closed once Run has returned
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// submit hands fn to the owner goroutine and waits for its result. Once the
// engine has accepted a command it always runs to completion.
func (e *Engine) submit(ctx context.Context, name string, fn func() error) error {
	cmd := command{name: name, apply: fn, reply: make(chan error, 1)}
	select {
	case e.commands <- cmd:
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-cmd.reply
}

func (e *Engine) tick() {
	if !e.timer.Tick() {
		return
	}
	state := e.timer.State()
	log.Debug().
		Str("mode", string(state.Mode)).
		Int("time_remaining", state.TimeRemaining).
		Bool("is_running", state.IsRunning).
		Msg("timer ticked")
	e.out.Broadcast(TimerUpdateEvent(state))
}

func (e *Engine) broadcastTimer(op string) {
	state := e.timer.State()
	log.Info().
		Str("event_type", op).
		Str("mode", string(state.Mode)).
		Int("time_remaining", state.TimeRemaining).
		Bool("is_running", state.IsRunning).
		Msg("timer updated")
	e.out.Broadcast(TimerUpdateEvent(state))
}

func (e *Engine) broadcastRoster(op, connID string) {
	users := e.roster.Snapshot()
	log.Info().
		Str("event_type", op).
		Str("connection_id", connID).
		Int("participants", e.roster.Len()).
		Msg("roster updated")
	e.out.Broadcast(UsersUpdateEvent(users))
}

// Connect sends the current timer and roster to connID only.
func (e *Engine) Connect(ctx context.Context, connID string) error {
	return e.submit(ctx, "connect", func() error {
		e.out.SendTo(connID, TimerUpdateEvent(e.timer.State()))
		e.out.SendTo(connID, UsersUpdateEvent(e.roster.Snapshot()))
		return nil
	})
}

// Join registers connID as a participant. A blank name is a ValidationError
// and leaves the roster unchanged.
func (e *Engine) Join(ctx context.Context, connID, name, task string) error {
	return e.submit(ctx, string(EventTypeJoin), func() error {
		if err := e.roster.Join(connID, name, task); err != nil {
			return err
		}
		e.broadcastRoster(string(EventTypeJoin), connID)
		return nil
	})
}

// UpdateTask changes the task of connID. Updates for connections that have
// not joined are dropped silently.
func (e *Engine) UpdateTask(ctx context.Context, connID, task string) error {
	return e.submit(ctx, string(EventTypeUpdateTask), func() error {
		if !e.roster.UpdateTask(connID, task) {
			log.Debug().Str("connection_id", connID).Msg("task update for unknown participant ignored")
			return nil
		}
		e.broadcastRoster(string(EventTypeUpdateTask), connID)
		return nil
	})
}

// Leave removes connID from the roster, if present.
func (e *Engine) Leave(ctx context.Context, connID string) error {
	return e.submit(ctx, "leave", func() error {
		if !e.roster.Leave(connID) {
			return nil
		}
		e.broadcastRoster("leave", connID)
		return nil
	})
}

func (e *Engine) Start(ctx context.Context) error {
	return e.submit(ctx, string(EventTypeStartTimer), func() error {
		e.timer.Start()
		e.broadcastTimer(string(EventTypeStartTimer))
		return nil
	})
}

func (e *Engine) Pause(ctx context.Context) error {
	return e.submit(ctx, string(EventTypePauseTimer), func() error {
		e.timer.Pause()
		e.broadcastTimer(string(EventTypePauseTimer))
		return nil
	})
}

func (e *Engine) Reset(ctx context.Context) error {
	return e.submit(ctx, string(EventTypeResetTimer), func() error {
		e.timer.Reset()
		e.broadcastTimer(string(EventTypeResetTimer))
		return nil
	})
}

// SwitchMode jumps to the start of the named mode. An unrecognized mode is a
// ValidationError and leaves the timer unchanged.
func (e *Engine) SwitchMode(ctx context.Context, mode string) error {
	m, err := ParseMode(mode)
	if err != nil {
		return err
	}
	return e.submit(ctx, string(EventTypeSwitchMode), func() error {
		if err := e.timer.SwitchMode(m); err != nil {
			return err
		}
		e.broadcastTimer(string(EventTypeSwitchMode))
		return nil
	})
}

// Snapshot reads the timer and roster in one serialized step
func (e *Engine) Snapshot(ctx context.Context) (StateSnapshot, error) {
	var snap StateSnapshot
	err := e.submit(ctx, "snapshot", func() error {
		snap = StateSnapshot{
			Timer: e.timer.State(),
			Users: e.roster.Snapshot(),
		}
		return nil
	})
	return snap, err
}

package session

import "time"

// Mode is one of the two alternating intervals
type Mode string

const (
	ModeWork  Mode = "work"
	ModeBreak Mode = "break"
)

const (
	DefaultWorkDuration  = 25 * time.Minute
	DefaultBreakDuration = 5 * time.Minute
)

// ParseMode maps the wire value onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeWork, ModeBreak:
		return Mode(s), nil
	default:
		return "", &ValidationError{Field: "mode", Value: s, Err: ErrUnknownMode}
	}
}

// Other returns the mode that follows m at an interval boundary
func (m Mode) Other() Mode {
	if m == ModeWork {
		return ModeBreak
	}
	return ModeWork
}

// Durations holds the full length of each mode in whole seconds.
type Durations struct {
	Work  int
	Break int
}

// DefaultDurations returns 1500s of work and 300s of break
func DefaultDurations() Durations {
	return Durations{
		Work:  int(DefaultWorkDuration / time.Second),
		Break: int(DefaultBreakDuration / time.Second),
	}
}

// For returns the full duration of mode m
func (d Durations) For(m Mode) int {
	if m == ModeBreak {
		return d.Break
	}
	return d.Work
}

// TimerState is the value broadcast in every timerUpdate
type TimerState struct {
	Mode          Mode `json:"mode"`
	TimeRemaining int  `json:"timeRemaining"`
	IsRunning     bool `json:"isRunning"`
}

// Timer is the countdown state machine. It is not safe for concurrent use;
// the Engine is its only owner.
type Timer struct {
	state     TimerState
	durations Durations
}

// NewTimer returns an idle timer at the start of a work interval
func NewTimer(d Durations) *Timer {
	return &Timer{
		state: TimerState{
			Mode:          ModeWork,
			TimeRemaining: d.Work,
			IsRunning:     false,
		},
		durations: d,
	}
}

// State returns a copy of the current state
func (t *Timer) State() TimerState {
	return t.state
}

func (t *Timer) Start() {
	t.state.IsRunning = true
}

func (t *Timer) Pause() {
	t.state.IsRunning = false
}

// Reset returns to an idle, full work interval regardless of the current mode.
func (t *Timer) Reset() {
	t.enter(ModeWork)
}

// SwitchMode jumps to the start of mode m and stops the countdown.
func (t *Timer) SwitchMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	t.enter(m)
	return nil
}

// Tick advances the countdown by one second. It reports whether the state
// changed; a paused timer never changes. Reaching zero flips to the other
// mode at full duration and stops, so intervals never chain automatically.
func (t *Timer) Tick() bool {
	if !t.state.IsRunning {
		return false
	}
	if t.state.TimeRemaining > 0 {
		t.state.TimeRemaining--
	}
	if t.state.TimeRemaining == 0 {
		t.enter(t.state.Mode.Other())
	}
	return true
}

func (t *Timer) enter(m Mode) {
	t.state = TimerState{
		Mode:          m,
		TimeRemaining: t.durations.For(m),
		IsRunning:     false,
	}
}

package session

import (
	"encoding/json"
	"fmt"
)

// EventType names a message on the wire, in either direction
type EventType string

// Inbound, client to engine
const (
	EventTypeJoin       EventType = "join"
	EventTypeUpdateTask EventType = "updateTask"
	EventTypeStartTimer EventType = "startTimer"
	EventTypePauseTimer EventType = "pauseTimer"
	EventTypeResetTimer EventType = "resetTimer"
	EventTypeSwitchMode EventType = "switchMode"
)

// Outbound, engine to clients
const (
	EventTypeTimerUpdate EventType = "timerUpdate"
	EventTypeUsersUpdate EventType = "usersUpdate"
	EventTypeError       EventType = "error"
)

// Error codes carried by an error event
const (
	ErrorCodeValidation = "validation_error"
	ErrorCodeBadRequest = "bad_request"
)

// Event is the envelope for every message exchanged with a client
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinPayload is the data of a join event
type JoinPayload struct {
	Name string `json:"name"`
	Task string `json:"task"`
}

// ErrorPayload is the data of an error event
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateSnapshot is the combined timer and roster view served to late readers
type StateSnapshot struct {
	Timer TimerState    `json:"timer"`
	Users []Participant `json:"users"`
}

// NewEvent marshals data into an envelope of the given type
func NewEvent(t EventType, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{Type: t, Data: raw}, nil
}

// The constructors below marshal only plain structs, strings and slices of
// them, which encoding/json cannot fail on, so their error is discarded.

// TimerUpdateEvent wraps a timer state for broadcast
func TimerUpdateEvent(state TimerState) Event {
	ev, _ := NewEvent(EventTypeTimerUpdate, state)
	return ev
}

// UsersUpdateEvent wraps a roster snapshot for broadcast
func UsersUpdateEvent(users []Participant) Event {
	if users == nil {
		users = []Participant{}
	}
	ev, _ := NewEvent(EventTypeUsersUpdate, users)
	return ev
}

// ErrorEvent builds an error indication for a single connection
func ErrorEvent(code string, err error) Event {
	ev, _ := NewEvent(EventTypeError, ErrorPayload{Code: code, Message: err.Error()})
	return ev
}

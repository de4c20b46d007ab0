package session

import (
	"sort"
	"strings"
	"time"
)

// Participant is one joined connection. ID is the connection id and is not
// stable across reconnects.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Task string `json:"task"`

	joinedAt time.Time
}

// Roster maps connection ids to participants. It is not safe for concurrent
// use; the Engine is its only owner.
type Roster struct {
	participants map[string]*Participant
	now          func() time.Time
}

// NewRoster creates an empty roster. now stamps join order for snapshots.
func NewRoster(now func() time.Time) *Roster {
	if now == nil {
		now = time.Now
	}
	return &Roster{
		participants: make(map[string]*Participant),
		now:          now,
	}
}

// Join inserts or replaces the participant for connID. The name is trimmed and
// must not be empty.
func (r *Roster) Join(connID, name, task string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return &ValidationError{Field: "name", Value: name, Err: ErrEmptyName}
	}

	joinedAt := r.now()
	if existing, ok := r.participants[connID]; ok {
		// A re-join keeps its place in the snapshot
		joinedAt = existing.joinedAt
	}

	r.participants[connID] = &Participant{
		ID:       connID,
		Name:     trimmed,
		Task:     task,
		joinedAt: joinedAt,
	}
	return nil
}

// UpdateTask replaces the task for connID and reports whether a participant
// was found. Unknown ids are ignored.
func (r *Roster) UpdateTask(connID, task string) bool {
	p, ok := r.participants[connID]
	if !ok {
		return false
	}
	p.Task = task
	return true
}

// Leave removes connID and reports whether it was present
func (r *Roster) Leave(connID string) bool {
	if _, ok := r.participants[connID]; !ok {
		return false
	}
	delete(r.participants, connID)
	return true
}

// Len returns the number of participants
func (r *Roster) Len() int {
	return len(r.participants)
}

// Snapshot returns a copy of the roster ordered by join time, then id.
func (r *Roster) Snapshot() []Participant {
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].joinedAt.Equal(out[j].joinedAt) {
			return out[i].joinedAt.Before(out[j].joinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

package gateway

import "github.com/mcdev12/pomosync/go/internal/session"

// Fanout hands every engine output to several broadcasters in order
type Fanout []session.Broadcaster

func (f Fanout) Broadcast(event session.Event) {
	for _, b := range f {
		b.Broadcast(event)
	}
}

func (f Fanout) SendTo(connID string, event session.Event) {
	for _, b := range f {
		b.SendTo(connID, event)
	}
}

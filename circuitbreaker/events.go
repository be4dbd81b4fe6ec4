// events.go
package circuitbreaker

import (
	"time"
)

// EventType names what happened on a breaker.
type EventType string

const (
	EventSuccess     EventType = "success"
	EventFailure     EventType = "failure"
	EventTimeout     EventType = "timeout"
	EventRejected    EventType = "rejected"
	EventStateChange EventType = "state_change"
)

// Event is delivered to listeners after the breaker's lock has been released.
// From and To are only meaningful for EventStateChange.
type Event struct {
	Name     string
	Type     EventType
	From     State
	To       State
	Err      error
	Duration time.Duration
	Time     time.Time
}

// Listener receives breaker events on the goroutine that caused them.
type Listener func(Event)

func (b *Breaker) event(t EventType, err error, d time.Duration) Event {
	return Event{
		Name:     b.name,
		Type:     t,
		From:     b.state,
		To:       b.state,
		Err:      err,
		Duration: d,
		Time:     b.now(),
	}
}

func (b *Breaker) emit(listeners []Listener, events []Event) {
	for _, ev := range events {
		if ev.Type == EventStateChange {
			b.log.LogCircuitStateChange("circuit_state_change", ev.Name, ev.From.String(), ev.To.String())
		}
		for _, l := range listeners {
			l(ev)
		}
	}
}

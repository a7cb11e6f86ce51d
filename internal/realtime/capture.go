package realtime

import "sync"

// Captured is one recorded publish.
type Captured struct {
	Event   string
	Payload any
}

// Capture is a Broadcaster that records events in memory, for tests.
type Capture struct {
	mu     sync.Mutex
	events []Captured
}

func NewCapture() *Capture { return &Capture{} }

func (c *Capture) Publish(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Captured{Event: event, Payload: payload})
}

// Events returns a copy of everything published so far.
func (c *Capture) Events() []Captured {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Captured, len(c.events))
	copy(out, c.events)
	return out
}

// ByEvent filters captured publishes by event name.
func (c *Capture) ByEvent(event string) []Captured {
	out := make([]Captured, 0)
	for _, e := range c.Events() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

package session

import (
	"time"

	"backend-pushup/internal/rep"
)

// Update is pushed to observers after every state machine step and on Start.
type Update struct {
	SessionID string    `json:"session_id"`
	Count     uint64    `json:"count"`
	Status    string    `json:"status"`
	State     rep.State `json:"state"`
	StartedAt time.Time `json:"started_at"`
	At        time.Time `json:"at"`
}

// Observer is called on the processing path with the session lock held.
// Implementations must return quickly and must not call back into the
// controller.
type Observer interface {
	OnUpdate(Update)
}

type ObserverFunc func(Update)

func (f ObserverFunc) OnUpdate(u Update) {
	f(u)
}

func (c *Controller) notifyLocked() {
	if len(c.observers) == 0 {
		return
	}
	u := Update{
		SessionID: c.id,
		Count:     c.state.Count,
		Status:    c.state.Status,
		State:     c.state.State,
		StartedAt: c.startedAt,
		At:        c.now(),
	}
	for _, o := range c.observers {
		o.OnUpdate(u)
	}
}

package ws

import (
	"context"
	"sync/atomic"
	"time"
)

// ALIVE -> ping -> AWAITING_PONG -> pong -> ALIVE
type Heartbeat struct {
	alive atomic.Bool
}

func NewHeartbeat() *Heartbeat {
	h := &Heartbeat{}
	h.alive.Store(true)
	return h
}

func (h *Heartbeat) Pong() { h.alive.Store(true) }

func (h *Heartbeat) Beat() bool { return h.alive.Swap(false) }

// ошибки ping не фатальны: неотвеченный ping снимается на следующем тике
func (h *Heartbeat) Run(ctx context.Context, every time.Duration, ping func() error, onDead func()) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !h.Beat() {
				onDead()
				return
			}
			_ = ping()
		}
	}
}

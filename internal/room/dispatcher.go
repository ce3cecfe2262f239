package room

import (
	"github.com/cwrk-planet/collab-service/internal/protocol"
)

func (h *Hub) broadcast(key string, env protocol.Envelope, exclude Conn) int {
	rs := h.lookup(key)
	if rs == nil {
		return 0
	}
	defer rs.mu.Unlock()

	return h.broadcastLocked(rs, env, exclude)
}

// Relay fans a client event out under the identity bound to sender.
func (h *Hub) Relay(key string, sender Conn, userID string, in protocol.Inbound) (int, error) {
	if !in.Type.Relayed() {
		return 0, ErrNotRelayable
	}
	env, err := protocol.NewEnvelope(in.Type, userID, in.Data, h.now())
	if err != nil {
		return 0, err
	}

	rs := h.lookup(key)
	if rs == nil {
		return 0, ErrNotMember
	}
	defer rs.mu.Unlock()

	if h.currentLocked(rs, userID) != sender {
		return 0, ErrNotMember
	}

	var exclude Conn
	if !in.Type.EchoesToSender() {
		exclude = sender
	}
	return h.broadcastLocked(rs, env, exclude), nil
}

func (h *Hub) broadcastLocked(rs *roomState, env protocol.Envelope, exclude Conn) int {
	frame, err := protocol.Encode(env)
	if err != nil {
		h.log.Error("encode envelope", "room", rs.key, "type", env.Type, "err", err)
		return 0
	}

	delivered, dropped := 0, 0
	for userID, m := range rs.members {
		if m.conn == exclude || !m.conn.Open() {
			continue
		}
		if err := m.conn.Send(frame); err != nil {
			dropped++
			h.log.Debug("broadcast delivery failed",
				"room", rs.key, "user", userID, "conn", m.conn.ID(), "type", env.Type, "err", err)
			continue
		}
		delivered++
	}

	h.obs.Broadcast(env.Type, delivered, dropped)
	return delivered
}

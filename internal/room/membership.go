package room

import (
	"github.com/cwrk-planet/collab-service/internal/domain"
	"github.com/cwrk-planet/collab-service/internal/protocol"
)

// Join registers conn and sends presence to the whole room, the joiner included.
func (h *Hub) Join(key string, conn Conn, info domain.UserInfo) (Conn, error) {
	if info.UserID == "" {
		return nil, domain.ErrMissingIdentity
	}
	return h.register(key, conn, info, h.presenceLocked), nil
}

// Leave is a no-op for a superseded conn.
func (h *Hub) Leave(key, userID string, conn Conn) bool {
	return h.unregister(key, userID, conn, func(rs *roomState) {
		if len(rs.members) > 0 {
			h.presenceLocked(rs)
		}
	})
}

func (h *Hub) presenceLocked(rs *roomState) {
	env, err := protocol.Presence(membersLocked(rs), h.now())
	if err != nil {
		h.log.Error("build presence", "room", rs.key, "err", err)
		return
	}
	h.broadcastLocked(rs, env, nil)
}

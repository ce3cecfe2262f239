package room

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/cwrk-planet/collab-service/internal/domain"
	"github.com/cwrk-planet/collab-service/internal/protocol"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string

	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	code    int
	reason  string
	sendErr error
	onClose func()
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed, c.code, c.reason = true, code, reason
	hook := c.onClose
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// drop marks the connection dead without a close frame, like a crashed client.
func (c *fakeConn) drop() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) closeInfo() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code, c.reason
}

func (c *fakeConn) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]protocol.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) ofType(t *testing.T, typ protocol.Type) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, env := range c.envelopes(t) {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

// presence returns the user ids of every presence frame received, in order.
func (c *fakeConn) presence(t *testing.T) [][]string {
	t.Helper()
	var out [][]string
	for _, env := range c.ofType(t, protocol.TypeUserPresence) {
		var p protocol.PresencePayload
		require.NoError(t, json.Unmarshal(env.Data, &p))
		ids := make([]string, 0, len(p.Users))
		for _, u := range p.Users {
			ids = append(ids, u.UserID)
		}
		out = append(out, ids)
	}
	return out
}

func user(id string) domain.UserInfo {
	return domain.UserInfo{UserID: id, UserName: "user " + id}
}

func userIDs(users []domain.UserInfo) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	return ids
}

func (h *Hub) current(key, userID string) Conn {
	rs := h.lookup(key)
	if rs == nil {
		return nil
	}
	defer rs.mu.Unlock()
	return h.currentLocked(rs, userID)
}

package room

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/cwrk-planet/collab-service/internal/protocol"

	"github.com/stretchr/testify/require"
)

func TestRegister_CreatesRoom(t *testing.T) {
	h := NewHub()
	a := newFakeConn("a")

	require.False(t, h.HasRoom("r1"))
	prev := h.register("r1", a, user("u1"), nil)

	require.Nil(t, prev)
	require.True(t, h.HasRoom("r1"))
	require.Equal(t, []string{"u1"}, userIDs(h.ListMembers("r1")))
}

func TestRegister_InstallsBeforeClosingOld(t *testing.T) {
	h := NewHub()
	a, b := newFakeConn("a"), newFakeConn("b")
	h.register("r1", a, user("u1"), nil)

	var seenOnClose Conn
	a.onClose = func() { seenOnClose = h.current("r1", "u1") }

	prev := h.register("r1", b, user("u1"), nil)

	require.Same(t, a, prev)
	require.Same(t, b, seenOnClose, "old connection closed before the new one was visible")

	closed, code, reason := a.closeInfo()
	require.True(t, closed)
	require.Equal(t, protocol.CloseReplaced, code)
	require.Equal(t, "Replaced by new connection", reason)
	require.True(t, b.Open())
}

func TestRegister_SameConnIsNotReplaced(t *testing.T) {
	h := NewHub()
	a := newFakeConn("a")
	h.register("r1", a, user("u1"), nil)

	prev := h.register("r1", a, user("u1"), nil)

	require.Nil(t, prev)
	require.True(t, a.Open())
}

func TestRegister_LockedRunsBeforeOldIsClosed(t *testing.T) {
	h := NewHub()
	a, b := newFakeConn("a"), newFakeConn("b")
	h.register("r1", a, user("u1"), nil)

	var oldOpen bool
	var current Conn
	h.register("r1", b, user("u1"), func(rs *roomState) {
		oldOpen = a.Open()
		current = h.currentLocked(rs, "u1")
	})

	require.True(t, oldOpen)
	require.Same(t, b, current)
	require.False(t, a.Open())
}

func TestUnregister_LockedRunsOnlyOnRemoval(t *testing.T) {
	h := NewHub()
	a, b, c := newFakeConn("a"), newFakeConn("b"), newFakeConn("c")
	h.register("r1", a, user("u1"), nil)
	h.register("r1", b, user("u1"), nil)
	h.register("r1", c, user("u2"), nil)

	var remaining []int
	locked := func(rs *roomState) { remaining = append(remaining, len(rs.members)) }

	require.False(t, h.unregister("r1", "u1", a, locked))
	require.True(t, h.unregister("r1", "u1", b, locked))
	require.Equal(t, []int{1}, remaining)
}

func TestUnregister_IgnoresStaleConnection(t *testing.T) {
	h := NewHub()
	a, b := newFakeConn("a"), newFakeConn("b")
	h.register("r1", a, user("u1"), nil)
	h.register("r1", b, user("u1"), nil)

	require.False(t, h.unregister("r1", "u1", a, nil))
	require.Same(t, b, h.current("r1", "u1"))

	require.True(t, h.unregister("r1", "u1", b, nil))
	require.False(t, h.HasRoom("r1"))
}

func TestUnregister_UnknownRoomOrUser(t *testing.T) {
	h := NewHub()
	a := newFakeConn("a")

	require.False(t, h.unregister("nope", "u1", a, nil))

	h.register("r1", a, user("u1"), nil)
	require.False(t, h.unregister("r1", "u2", a, nil))
	require.True(t, h.HasRoom("r1"))
}

func TestListMembers_FiltersClosedAndKeepsJoinOrder(t *testing.T) {
	h := NewHub()
	a, b, c := newFakeConn("a"), newFakeConn("b"), newFakeConn("c")
	h.register("r1", a, user("u1"), nil)
	h.register("r1", b, user("u2"), nil)
	h.register("r1", c, user("u3"), nil)

	b.drop()
	require.Equal(t, []string{"u1", "u3"}, userIDs(h.ListMembers("r1")))

	// a reconnect keeps the user's original slot
	h.register("r1", newFakeConn("a2"), user("u1"), nil)
	require.Equal(t, []string{"u1", "u3"}, userIDs(h.ListMembers("r1")))

	require.Empty(t, h.ListMembers("missing"))
	require.NotNil(t, h.ListMembers("missing"))
}

func TestListMembers_NeverDuplicatesUnderRandomOps(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	h := NewHub()
	users := []string{"u1", "u2", "u3"}
	var conns []*fakeConn

	for i := 0; i < 2000; i++ {
		uid := users[rnd.Intn(len(users))]
		switch rnd.Intn(3) {
		case 0, 1:
			c := newFakeConn(fmt.Sprintf("c%d", i))
			conns = append(conns, c)
			_, err := h.Join("r1", c, user(uid))
			require.NoError(t, err)
		default:
			if len(conns) == 0 {
				continue
			}
			c := conns[rnd.Intn(len(conns))]
			_ = c.Close(protocol.CloseNormal, "")
			h.Leave("r1", uid, c)
		}

		seen := map[string]bool{}
		for _, u := range h.ListMembers("r1") {
			require.False(t, seen[u.UserID], "duplicate %s at step %d", u.UserID, i)
			seen[u.UserID] = true
		}
	}
}

func TestRooms_AndStats(t *testing.T) {
	h := NewHub()
	h.register("r2", newFakeConn("a"), user("u1"), nil)
	h.register("r1", newFakeConn("b"), user("u1"), nil)
	h.register("r1", newFakeConn("c"), user("u2"), nil)

	require.Equal(t, []RoomSummary{{Key: "r1", Members: 2}, {Key: "r2", Members: 1}}, h.Rooms())
	require.Equal(t, Stats{Rooms: 2, Connections: 3}, h.Stats())
}

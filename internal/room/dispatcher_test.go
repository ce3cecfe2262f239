package room

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/cwrk-planet/collab-service/internal/protocol"

	"github.com/stretchr/testify/require"
)

func relayIn(t protocol.Type, data string) protocol.Inbound {
	return protocol.Inbound{Type: t, UserID: "spoofed", Data: json.RawMessage(data)}
}

func TestRelay_ExcludesSender(t *testing.T) {
	types := []protocol.Type{
		protocol.TypeCodeChange, protocol.TypeCursorMove, protocol.TypeCommentPosition,
		protocol.TypeCommentCreated, protocol.TypeCommentUpdated, protocol.TypeCommentDeleted,
		protocol.TypeCommentResolved,
	}

	for _, typ := range types {
		t.Run(string(typ), func(t *testing.T) {
			h := NewHub()
			a, b := newFakeConn("a"), newFakeConn("b")
			_, _ = h.Join("r1", a, user("u1"))
			_, _ = h.Join("r1", b, user("u2"))

			n, err := h.Relay("r1", a, "u1", relayIn(typ, `{"x":1}`))
			require.NoError(t, err)
			require.Equal(t, 1, n)

			require.Empty(t, a.ofType(t, typ))
			got := b.ofType(t, typ)
			require.Len(t, got, 1)
			require.Equal(t, "u1", got[0].UserID, "bound identity wins over payload claims")
			require.JSONEq(t, `{"x":1}`, string(got[0].Data))
			require.NotZero(t, got[0].Timestamp)
		})
	}
}

func TestRelay_RefusesSupersededSender(t *testing.T) {
	h := NewHub()
	a, b, peer := newFakeConn("a"), newFakeConn("b"), newFakeConn("p")
	_, _ = h.Join("r1", peer, user("u2"))
	_, _ = h.Join("r1", a, user("u1"))
	_, _ = h.Join("r1", b, user("u1"))

	_, err := h.Relay("r1", a, "u1", relayIn(protocol.TypeCodeChange, `{}`))
	require.ErrorIs(t, err, ErrNotMember)
	require.Empty(t, peer.ofType(t, protocol.TypeCodeChange))

	_, err = h.Relay("gone", b, "u1", relayIn(protocol.TypeCodeChange, `{}`))
	require.ErrorIs(t, err, ErrNotMember)
}

func TestRelay_RejectsNonRelayedTypes(t *testing.T) {
	h := NewHub()
	a := newFakeConn("a")
	_, _ = h.Join("r1", a, user("u1"))

	_, err := h.Relay("r1", a, "u1", relayIn(protocol.TypeUserPresence, `{}`))
	require.ErrorIs(t, err, ErrNotRelayable)
	_, err = h.Relay("r1", a, "u1", relayIn(protocol.TypeJoinRoom, `{}`))
	require.ErrorIs(t, err, ErrNotRelayable)
}

func TestRelay_PassesNonObjectData(t *testing.T) {
	h := NewHub()
	a, b := newFakeConn("a"), newFakeConn("b")
	_, _ = h.Join("r1", a, user("u1"))
	_, _ = h.Join("r1", b, user("u2"))

	for _, data := range []string{`"graph TD; A-->B"`, `[1,2]`, `42`} {
		n, err := h.Relay("r1", a, "u1", relayIn(protocol.TypeCodeChange, data))
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	got := b.ofType(t, protocol.TypeCodeChange)
	require.Len(t, got, 3)
	require.JSONEq(t, `"graph TD; A-->B"`, string(got[0].Data))
	require.JSONEq(t, `[1,2]`, string(got[1].Data))
	require.JSONEq(t, `42`, string(got[2].Data))
}

func TestBroadcast_IsolatesFailures(t *testing.T) {
	obs := &countingObserver{}
	h := NewHub(WithObserver(obs))
	ok1, bad, dead, ok2 := newFakeConn("ok1"), newFakeConn("bad"), newFakeConn("dead"), newFakeConn("ok2")
	for i, c := range []*fakeConn{ok1, bad, dead, ok2} {
		_, _ = h.Join("r1", c, user(string(rune('a'+i))))
	}
	bad.sendErr = errors.New("broken pipe")
	dead.drop()

	env, err := protocol.NewEnvelope(protocol.TypeCodeChange, "a", map[string]int{"v": 1}, h.now())
	require.NoError(t, err)

	n := h.broadcast("r1", env, nil)
	require.Equal(t, 2, n)
	require.Len(t, ok1.ofType(t, protocol.TypeCodeChange), 1)
	require.Len(t, ok2.ofType(t, protocol.TypeCodeChange), 1)
	require.Empty(t, bad.ofType(t, protocol.TypeCodeChange))
	require.True(t, bad.Open(), "failed delivery does not close the recipient")

	require.Equal(t, 1, obs.dropped, "closed members are skipped, not counted as drops")
}

func TestBroadcast_UnknownRoom(t *testing.T) {
	h := NewHub()
	env, err := protocol.NewEnvelope(protocol.TypeCursorMove, "u1", nil, h.now())
	require.NoError(t, err)

	require.Zero(t, h.broadcast("nope", env, nil))
	require.False(t, h.HasRoom("nope"))
}

func TestBroadcast_PerConnectionOrder(t *testing.T) {
	h := NewHub()
	a, b := newFakeConn("a"), newFakeConn("b")
	_, _ = h.Join("r1", a, user("u1"))
	_, _ = h.Join("r1", b, user("u2"))

	for i := 0; i < 50; i++ {
		_, err := h.Relay("r1", a, "u1", relayIn(protocol.TypeCursorMove, `{"i":`+itoa(i)+`}`))
		require.NoError(t, err)
	}

	got := b.ofType(t, protocol.TypeCursorMove)
	require.Len(t, got, 50)
	for i, env := range got {
		var d struct{ I int }
		require.NoError(t, json.Unmarshal(env.Data, &d))
		require.Equal(t, i, d.I)
	}
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

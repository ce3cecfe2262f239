package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestDecode_Join(t *testing.T) {
	frame := []byte(`{"type":"join_room","data":{"userId":"u1","userName":"Ada","userEmail":"ada@example.com",
		"userImage":"https://img/ada.png","isAnonymous":false},"userId":"u1","timestamp":1700000000000}`)

	in, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, TypeJoinRoom, in.Type)
	require.NotNil(t, in.Join)
	require.Equal(t, JoinPayload{
		UserID:    "u1",
		UserName:  "Ada",
		UserEmail: "ada@example.com",
		UserImage: "https://img/ada.png",
	}, *in.Join)
}

func TestDecode_AnonymousJoin(t *testing.T) {
	in, err := Decode([]byte(`{"type":"join_room","data":{"isAnonymous":true,"anonymousSessionId":"s-1"}}`))
	require.NoError(t, err)
	require.True(t, in.Join.IsAnonymous)
	require.Equal(t, "s-1", in.Join.AnonymousSessionID)
}

func TestDecode_Relayed(t *testing.T) {
	in, err := Decode([]byte(`{"type":"cursor_move","data":{"x":10,"y":20},"userId":"u1","timestamp":1}`))
	require.NoError(t, err)
	require.Equal(t, TypeCursorMove, in.Type)
	require.Nil(t, in.Join)
	require.JSONEq(t, `{"x":10,"y":20}`, string(in.Data))

	in, err = Decode([]byte(`{"type":"comment_deleted","userId":"u1"}`))
	require.NoError(t, err)
	require.Empty(t, in.Data)
}

func TestDecode_RelayedDataIsOpaque(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		data  string
	}{
		{"string", `{"type":"code_change","userId":"u1","data":"graph TD; A-->B"}`, `"graph TD; A-->B"`},
		{"array", `{"type":"cursor_move","userId":"u1","data":[1,2]}`, `[1,2]`},
		{"number", `{"type":"comment_deleted","userId":"u1","data":42}`, `42`},
		{"null", `{"type":"comment_resolved","userId":"u1","data":null}`, `null`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := Decode([]byte(tc.frame))
			require.NoError(t, err)
			require.JSONEq(t, tc.data, string(in.Data))

			env, err := NewEnvelope(in.Type, "u1", in.Data, time.UnixMilli(1))
			require.NoError(t, err)
			out, err := Encode(env)
			require.NoError(t, err)

			var back map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(out, &back))
			require.JSONEq(t, tc.data, string(back["data"]))
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `{"type":`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"missing type", `{"data":{}}`, ErrMalformed},
		{"unknown type", `{"type":"dance","userId":"u1"}`, ErrUnknownType},
		{"client presence", `{"type":"user_presence","data":{"users":[]},"userId":"u1"}`, ErrInvalid},
		{"missing userId", `{"type":"code_change","data":{}}`, ErrInvalid},
		{"join with null data", `{"type":"join_room","data":null}`, ErrInvalid},
		{"join with string data", `{"type":"join_room","data":"u1"}`, ErrInvalid},
		{"join without data", `{"type":"join_room"}`, ErrInvalid},
		{"join without userId", `{"type":"join_room","data":{"userName":"Ada"}}`, ErrInvalid},
		{"anonymous join without session", `{"type":"join_room","data":{"isAnonymous":true}}`, ErrInvalid},
		{"join with wrong field type", `{"type":"join_room","data":{"userId":5}}`, ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.frame))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestTypePolicies(t *testing.T) {
	for _, typ := range []Type{
		TypeCodeChange, TypeCursorMove, TypeCommentPosition, TypeCommentCreated,
		TypeCommentUpdated, TypeCommentDeleted, TypeCommentResolved,
	} {
		require.True(t, typ.Relayed(), typ)
		require.False(t, typ.EchoesToSender(), typ)
	}

	require.True(t, TypeUserPresence.EchoesToSender())
	require.False(t, TypeUserPresence.Relayed())
	require.False(t, TypeJoinRoom.Relayed())
	require.False(t, Type("nope").Known())
}

func TestPresence_Envelope(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	env, err := Presence([]domain.UserInfo{{UserID: "u1", UserName: "Ada"}}, now)
	require.NoError(t, err)

	b, err := Encode(env)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"user_presence","timestamp":1700000000123,
		"data":{"users":[{"userId":"u1","userName":"Ada","isAnonymous":false}]}}`, string(b))

	env, err = Presence(nil, now)
	require.NoError(t, err)
	var p PresencePayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.NotNil(t, p.Users)
	require.Empty(t, p.Users)
}

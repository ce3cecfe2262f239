package protocol

import (
	"encoding/json"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"
)

type Type string

const (
	TypeJoinRoom        Type = "join_room"
	TypeCodeChange      Type = "code_change"
	TypeCursorMove      Type = "cursor_move"
	TypeCommentPosition Type = "comment_position"
	TypeCommentCreated  Type = "comment_created"
	TypeCommentUpdated  Type = "comment_updated"
	TypeCommentDeleted  Type = "comment_deleted"
	TypeCommentResolved Type = "comment_resolved"
	TypeUserPresence    Type = "user_presence"
)

var relayed = map[Type]struct{}{
	TypeCodeChange:      {},
	TypeCursorMove:      {},
	TypeCommentPosition: {},
	TypeCommentCreated:  {},
	TypeCommentUpdated:  {},
	TypeCommentDeleted:  {},
	TypeCommentResolved: {},
}

func (t Type) Known() bool {
	_, ok := relayed[t]
	return ok || t == TypeJoinRoom || t == TypeUserPresence
}

func (t Type) Relayed() bool {
	_, ok := relayed[t]
	return ok
}

// presence goes to everyone
func (t Type) EchoesToSender() bool { return t == TypeUserPresence }

type Envelope struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type PresencePayload struct {
	Users []domain.UserInfo `json:"users"`
}

func NewEnvelope(t Type, userID string, data any, now time.Time) (Envelope, error) {
	env := Envelope{Type: t, UserID: userID, Timestamp: now.UnixMilli()}
	if data == nil {
		return env, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		env.Data = raw
		return env, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = b
	return env, nil
}

func Presence(users []domain.UserInfo, now time.Time) (Envelope, error) {
	if users == nil {
		users = []domain.UserInfo{}
	}
	return NewEnvelope(TypeUserPresence, "", PresencePayload{Users: users}, now)
}

func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

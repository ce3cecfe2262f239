package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown message type")
	ErrInvalid     = errors.New("invalid message")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type JoinPayload struct {
	UserID             string `json:"userId" validate:"required_unless=IsAnonymous true,max=128"`
	UserName           string `json:"userName" validate:"max=256"`
	UserEmail          string `json:"userEmail" validate:"max=320"`
	UserImage          string `json:"userImage" validate:"max=2048"`
	IsAnonymous        bool   `json:"isAnonymous"`
	AnonymousSessionID string `json:"anonymousSessionId" validate:"required_if=IsAnonymous true,max=128"`
}

// Join is set only for join_room.
type Inbound struct {
	Type   Type
	UserID string
	Data   json.RawMessage
	Join   *JoinPayload
}

// relayed data is passed through as is
func Decode(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if !env.Type.Known() {
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	in := Inbound{Type: env.Type, UserID: env.UserID, Data: env.Data}

	switch {
	case env.Type == TypeJoinRoom:
		p, err := decodeJoin(env.Data)
		if err != nil {
			return Inbound{}, err
		}
		in.Join = &p
	case env.Type == TypeUserPresence:
		return Inbound{}, fmt.Errorf("%w: %s is server-only", ErrInvalid, env.Type)
	default:
		if env.UserID == "" {
			return Inbound{}, fmt.Errorf("%w: missing userId", ErrInvalid)
		}
	}
	return in, nil
}

func decodeJoin(data json.RawMessage) (JoinPayload, error) {
	var p JoinPayload
	if !isObject(data) {
		return JoinPayload{}, fmt.Errorf("%w: join data must be an object", ErrInvalid)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return JoinPayload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(p); err != nil {
		return JoinPayload{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return p, nil
}

func isObject(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) > 0 && d[0] == '{'
}

package room

import (
	"errors"

	"github.com/cwrk-planet/collab-service/internal/protocol"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrBackpressure = errors.New("send buffer full")
	ErrNotMember    = errors.New("connection is not the current member")
	ErrNotRelayable = errors.New("message type is not relayed")
)

// Send must not block; Close is idempotent.
type Conn interface {
	ID() string
	Send(frame []byte) error
	Close(code int, reason string) error
	Open() bool
}

type Observer interface {
	RoomOpened()
	RoomClosed()
	Joined(replaced bool)
	Left()
	Broadcast(t protocol.Type, delivered, dropped int)
}

type nopObserver struct{}

func (nopObserver) RoomOpened()                       {}
func (nopObserver) RoomClosed()                       {}
func (nopObserver) Joined(bool)                       {}
func (nopObserver) Left()                             {}
func (nopObserver) Broadcast(protocol.Type, int, int) {}

package room

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"
	"github.com/cwrk-planet/collab-service/internal/protocol"

	"github.com/samber/lo"
)

type Option func(*Hub)

func WithObserver(o Observer) Option {
	return func(h *Hub) {
		if o != nil {
			h.obs = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// lock order: Hub.mu, then roomState.mu; Conn.Close is called with neither held
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*roomState

	obs Observer
	now func() time.Time
	log *slog.Logger
}

type roomState struct {
	key     string
	mu      sync.Mutex
	members map[string]*member // userID -> member
	seq     uint64
	closed  bool // emptied and dropped from Hub.rooms
}

type member struct {
	conn Conn
	info domain.UserInfo
	seq  uint64 // first registration order, kept across replace
}

type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

type RoomSummary struct {
	Key     string `json:"key"`
	Members int    `json:"members"`
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms: make(map[string]*roomState),
		obs:   nopObserver{},
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// register: locked runs under the room lock, before the replaced conn is closed
func (h *Hub) register(key string, conn Conn, info domain.UserInfo, locked func(*roomState)) Conn {
	rs := h.acquire(key)
	prev := h.putLocked(rs, conn, info)
	if locked != nil {
		locked(rs)
	}
	h.release(rs)

	h.retire(key, info.UserID, prev)
	return prev
}

// unregister: locked runs only after a removal
func (h *Hub) unregister(key, userID string, conn Conn, locked func(*roomState)) bool {
	rs := h.lookup(key)
	if rs == nil {
		return false
	}
	removed := h.removeLocked(rs, userID, conn)
	if removed && locked != nil {
		locked(rs)
	}
	h.release(rs)

	if removed {
		h.obs.Left()
	}
	return removed
}

func (h *Hub) ListMembers(key string) []domain.UserInfo {
	rs := h.lookup(key)
	if rs == nil {
		return []domain.UserInfo{}
	}
	defer rs.mu.Unlock()

	return membersLocked(rs)
}

func (h *Hub) HasRoom(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.rooms[key]
	return ok
}

func (h *Hub) Rooms() []RoomSummary {
	h.mu.Lock()
	states := lo.Values(h.rooms)
	h.mu.Unlock()

	out := make([]RoomSummary, 0, len(states))
	for _, rs := range states {
		rs.mu.Lock()
		if !rs.closed {
			out = append(out, RoomSummary{Key: rs.key, Members: len(rs.members)})
		}
		rs.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b RoomSummary) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

func (h *Hub) Stats() Stats {
	rooms := h.Rooms()
	return Stats{
		Rooms:       len(rooms),
		Connections: lo.SumBy(rooms, func(r RoomSummary) int { return r.Members }),
	}
}

// acquire: live room for key, created if needed, locked
func (h *Hub) acquire(key string) *roomState {
	for {
		h.mu.Lock()
		rs, ok := h.rooms[key]
		if !ok {
			rs = &roomState{key: key, members: make(map[string]*member)}
			h.rooms[key] = rs
			h.obs.RoomOpened()
		}
		h.mu.Unlock()

		rs.mu.Lock()
		if !rs.closed {
			return rs
		}
		// raced with the last leave
		rs.mu.Unlock()
		h.forget(rs)
	}
}

// lookup: live room for key, locked, or nil
func (h *Hub) lookup(key string) *roomState {
	h.mu.Lock()
	rs := h.rooms[key]
	h.mu.Unlock()
	if rs == nil {
		return nil
	}

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return nil
	}
	return rs
}

func (h *Hub) release(rs *roomState) {
	empty := len(rs.members) == 0
	if empty {
		rs.closed = true
	}
	rs.mu.Unlock()

	if empty {
		h.forget(rs)
	}
}

func (h *Hub) forget(rs *roomState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[rs.key] == rs {
		delete(h.rooms, rs.key)
		h.obs.RoomClosed()
	}
}

func (h *Hub) putLocked(rs *roomState, conn Conn, info domain.UserInfo) Conn {
	m, ok := rs.members[info.UserID]
	if !ok {
		rs.seq++
		rs.members[info.UserID] = &member{conn: conn, info: info, seq: rs.seq}
		h.obs.Joined(false)
		return nil
	}

	prev := m.conn
	m.conn = conn
	m.info = info
	if prev == conn {
		return nil
	}
	h.obs.Joined(true)
	return prev
}

func (h *Hub) removeLocked(rs *roomState, userID string, conn Conn) bool {
	m, ok := rs.members[userID]
	if !ok || m.conn != conn {
		return false
	}
	delete(rs.members, userID)
	return true
}

func (h *Hub) currentLocked(rs *roomState, userID string) Conn {
	if m, ok := rs.members[userID]; ok {
		return m.conn
	}
	return nil
}

func (h *Hub) retire(key, userID string, prev Conn) {
	if prev == nil {
		return
	}
	if err := prev.Close(protocol.CloseReplaced, protocol.ReasonReplaced); err != nil {
		h.log.Debug("close replaced connection", "room", key, "user", userID, "conn", prev.ID(), "err", err)
	}
	h.log.Info("connection replaced", "room", key, "user", userID, "conn", prev.ID())
}

func membersLocked(rs *roomState) []domain.UserInfo {
	open := lo.Filter(lo.Values(rs.members), func(m *member, _ int) bool { return m.conn.Open() })
	slices.SortFunc(open, func(a, b *member) int { return cmp.Compare(a.seq, b.seq) })

	users := lo.Map(open, func(m *member, _ int) domain.UserInfo { return m.info })
	return lo.UniqBy(users, func(u domain.UserInfo) string { return u.UserID })
}

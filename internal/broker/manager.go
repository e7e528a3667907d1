package broker

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"room-broker/internal/protocol"
)

// DefaultRoomName is used when a room identity omits the name.
const DefaultRoomName = "default"

// DefaultCleanupGrace is how long an emptied room is kept around for a
// rejoin before it is deleted.
const DefaultCleanupGrace = 10 * time.Second

// EventSink receives room lifecycle events for out-of-band consumers
// (e.g. the Redis bridge). Implementations must not block.
type EventSink interface {
	RoomEvent(event string, room protocol.RoomDescriptor, clients int)
}

// Room lifecycle event names passed to the EventSink.
const (
	EventRoomCreated = "room_created"
	EventRoomDeleted = "room_deleted"
	EventClientJoin  = "client_join"
	EventClientLeave = "client_leave"
)

// Config carries the process-level knobs of a Manager.
type Config struct {
	// CleanupGrace is how long an emptied room survives before deletion.
	// Zero deletes as soon as the scheduler runs the task.
	CleanupGrace time.Duration
	// Interceptors, when set, builds one host-app hook per room.
	Interceptors InterceptorFactory
	// Events, when set, receives room lifecycle notifications.
	Events EventSink
	// Now defaults to time.Now; tests inject a fixed clock.
	Now func() time.Time
}

type clientState struct {
	sender Sender
	room   *RoomKey
}

// Manager is the registry of live rooms and connected clients. It is the
// single owner of all room state: one mutex serializes every mutation,
// whether it comes from a connection's dispatcher or from a timer.
type Manager struct {
	mu      sync.Mutex
	rooms   map[RoomKey]*Room
	order   []RoomKey
	clients map[string]*clientState

	cleanupGrace    time.Duration
	makeInterceptor InterceptorFactory
	events          EventSink
	now             func() time.Time
	started         time.Time
}

func NewManager(cfg Config) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		rooms:           make(map[RoomKey]*Room),
		clients:         make(map[string]*clientState),
		cleanupGrace:    cfg.CleanupGrace,
		makeInterceptor: cfg.Interceptors,
		events:          cfg.Events,
		now:             now,
		started:         now(),
	}
}

// locked runs fn while holding the manager mutex. Room timers re-enter
// through it.
func (m *Manager) locked(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// Connect registers a freshly opened connection under its client id.
// Reconnecting with the same id replaces the previous sender.
func (m *Manager) Connect(clientID string, s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.clients[clientID]; !exists {
		incConnections()
	}
	m.clients[clientID] = &clientState{sender: s}
}

// Disconnect tears down a connection: the client leaves its room (if
// any) and is forgotten.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return
	}
	m.removeClientFromRoomLocked(clientID, c)
	delete(m.clients, clientID)
	decConnections()
}

// Deliver implements Deliverer. Clients that are gone or whose write
// queue rejects the message are skipped; delivery is at-most-once per
// connection epoch.
func (m *Manager) Deliver(clientID string, msg protocol.Message) {
	c, ok := m.clients[clientID]
	if !ok {
		return
	}
	if err := c.sender.Send(msg); err != nil {
		log.Printf("deliver to %s failed: %v", clientID, err)
		return
	}
	addDelivered()
}

func normalizeKey(info protocol.RoomInfo) (RoomKey, error) {
	if info.App == "" || info.Version == "" {
		return RoomKey{}, fmt.Errorf(
			"%w: getRoom(app:%q, name:%q, version:%q) requires app and version",
			ErrInvalidArgs, info.App, info.Name, info.Version)
	}
	name := info.Name
	if name == "" {
		name = DefaultRoomName
	}
	return RoomKey{App: info.App, Name: name, Version: info.Version}, nil
}

// GetRoom looks up a room by exact identity.
func (m *Manager) GetRoom(info protocol.RoomInfo) (protocol.RoomDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := normalizeKey(info)
	if err != nil {
		return protocol.RoomDescriptor{}, err
	}
	r, ok := m.rooms[key]
	if !ok {
		return protocol.RoomDescriptor{}, ErrNotFound
	}
	return r.Descriptor(), nil
}

// MakeRoom creates a room if its identity is not taken. Creating a room
// that already exists is not an error, so clients can optimistically
// "make" before joining. A new room starts empty and already carries a
// cleanup timer; the creator's join cancels it.
func (m *Manager) MakeRoom(info protocol.RoomInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := normalizeKey(info)
	if err != nil {
		return err
	}
	if _, exists := m.rooms[key]; exists {
		return nil
	}
	r, err := newRoom(info, key, m, m.locked, m.now)
	if err != nil {
		return err
	}
	if m.makeInterceptor != nil {
		r.interceptor = m.makeInterceptor(&roomHandle{m: m, key: key})
	}
	m.rooms[key] = r
	m.order = append(m.order, key)
	setRooms(len(m.rooms))
	m.scheduleCleanupLocked(r)
	m.emitEventLocked(EventRoomCreated, r)
	return nil
}

// AddClientToRoom joins a connected client to an existing room and
// returns the room's descriptor. A client that is still associated with
// another room is rejected; it must leave first.
func (m *Manager) AddClientToRoom(clientID string, info protocol.RoomInfo) (protocol.RoomDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return protocol.RoomDescriptor{}, fmt.Errorf("client %s is not connected", clientID)
	}
	key, err := normalizeKey(info)
	if err != nil {
		return protocol.RoomDescriptor{}, err
	}
	if c.room != nil && *c.room != key {
		return protocol.RoomDescriptor{}, ErrAlreadyInRoom
	}
	r, ok := m.rooms[key]
	if !ok {
		return protocol.RoomDescriptor{}, ErrNotFound
	}
	if err := r.authorize(info.Password); err != nil {
		return protocol.RoomDescriptor{}, err
	}
	if err := r.addClient(clientID); err != nil {
		return protocol.RoomDescriptor{}, err
	}
	if r.cleanup != nil {
		r.cleanup.Stop()
		r.cleanup = nil
	}
	roomKey := key
	c.room = &roomKey
	m.emitEventLocked(EventClientJoin, r)
	return r.Descriptor(), nil
}

// RemoveClientFromRoom detaches a client from its current room, if any.
func (m *Manager) RemoveClientFromRoom(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return
	}
	m.removeClientFromRoomLocked(clientID, c)
}

func (m *Manager) removeClientFromRoomLocked(clientID string, c *clientState) {
	if c.room == nil {
		return
	}
	r, ok := m.rooms[*c.room]
	c.room = nil
	if !ok {
		return
	}
	r.removeClient(clientID)
	m.emitEventLocked(EventClientLeave, r)
	if r.MemberCount() == 0 {
		m.scheduleCleanupLocked(r)
	}
}

// scheduleCleanupLocked arms (or re-arms) the grace-period deletion of an
// empty room. The deferred task re-validates under the lock so a rejoin
// that cancelled the timer in a race still wins.
func (m *Manager) scheduleCleanupLocked(r *Room) {
	if r.cleanup != nil {
		r.cleanup.Stop()
	}
	key := r.key
	var timer *time.Timer
	timer = time.AfterFunc(m.cleanupGrace, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		current, ok := m.rooms[key]
		if !ok || current != r || current.cleanup != timer || current.MemberCount() > 0 {
			return
		}
		m.deleteRoomLocked(current)
	})
	r.cleanup = timer
}

func (m *Manager) deleteRoomLocked(r *Room) {
	delete(m.rooms, r.key)
	for i, k := range m.order {
		if k == r.key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	setRooms(len(m.rooms))
	m.emitEventLocked(EventRoomDeleted, r)
	r.destroy()
}

// GetRooms returns descriptors of rooms matching the filter: app and
// name match exactly when present, version matches by prefix ("1.0"
// matches "1.0.4"). Hidden rooms never appear.
func (m *Manager) GetRooms(filter protocol.RoomInfo) []protocol.RoomDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.RoomDescriptor, 0)
	for _, key := range m.order {
		r := m.rooms[key]
		if r.hidden {
			continue
		}
		if filter.App != "" && key.App != filter.App {
			continue
		}
		if filter.Name != "" && key.Name != filter.Name {
			continue
		}
		if filter.Version != "" && !hasVersionPrefix(key.Version, filter.Version) {
			continue
		}
		out = append(out, r.Descriptor())
	}
	return out
}

func hasVersionPrefix(version, prefix string) bool {
	return len(version) >= len(prefix) && version[:len(prefix)] == prefix
}

// OnData routes a Data message from a client to its room, stamping the
// sender id and the broker's clock.
func (m *Manager) OnData(clientID string, msg protocol.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok || c.room == nil {
		return fmt.Errorf("cannot route data from %s: %w", clientID, ErrNotInRoom)
	}
	r, ok := m.rooms[*c.room]
	if !ok {
		return fmt.Errorf("cannot route data from %s: %w", clientID, ErrNotInRoom)
	}

	msg.FromClient = clientID
	msg.Time = m.now().UnixMilli()

	switch msg.SubType {
	case protocol.SubTypeTogether:
		r.queueTogetherMessage(clientID, msg)
	case protocol.SubTypeWhisper:
		r.whisper(msg, msg.WhisperClientIDs)
	case "":
		r.emit(msg)
	default:
		return fmt.Errorf("data subType %q not understood", msg.SubType)
	}
	return nil
}

func (m *Manager) emitEventLocked(event string, r *Room) {
	if m.events == nil {
		return
	}
	m.events.RoomEvent(event, r.Descriptor(), r.MemberCount())
}

// roomHandle lets a host-app interceptor push Data messages into its
// room through the manager lock.
type roomHandle struct {
	m   *Manager
	key RoomKey
}

func (h *roomHandle) Descriptor() protocol.RoomDescriptor {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if r, ok := h.m.rooms[h.key]; ok {
		return r.Descriptor()
	}
	return protocol.RoomDescriptor{App: h.key.App, Name: h.key.Name, Version: h.key.Version}
}

// SendData is asynchronous so interceptors may call it from inside
// Intercept, which runs under the manager lock.
func (h *roomHandle) SendData(payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("host app payload for room %v not serializable: %v", h.key, err)
		return
	}
	go func() {
		h.m.mu.Lock()
		defer h.m.mu.Unlock()
		r, ok := h.m.rooms[h.key]
		if !ok {
			return
		}
		r.emit(protocol.Message{
			Type:       protocol.TypeData,
			Payload:    raw,
			FromClient: HostClientID,
			Time:       h.m.now().UnixMilli(),
		})
	}()
}

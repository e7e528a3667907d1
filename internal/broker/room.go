package broker

import (
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"room-broker/internal/protocol"
)

// Sender delivers one wire message to one connected client. The transport
// layer implements it with a buffered, non-blocking write queue.
type Sender interface {
	Send(msg protocol.Message) error
}

// Deliverer resolves a client id to its connection and sends. The Manager
// is the only implementation; rooms never hold connection references,
// only member ids.
type Deliverer interface {
	Deliver(clientID string, msg protocol.Message)
}

// RoomKey is the identity of a room. The Manager holds at most one Room
// per key.
type RoomKey struct {
	App     string
	Name    string
	Version string
}

type togetherEntry struct {
	clientID string
	msg      protocol.Message
}

// Room owns one isolated group of clients. All methods must be called
// while holding the owning Manager's lock; the exec field re-enters that
// lock from timer callbacks.
type Room struct {
	key             RoomKey
	maxClients      int
	passwordHash    []byte
	hidden          bool
	togetherTimeout time.Duration

	// Member ids in join order, no duplicates.
	members []string

	// Pending barrier contributions by togetherId. Each contributor holds
	// at most one entry; resubmission replaces in place.
	together       map[string][]togetherEntry
	togetherTimers map[string]*time.Timer

	// Armed while the room is empty; cancelled by a rejoin.
	cleanup *time.Timer

	deliver     Deliverer
	interceptor Interceptor
	exec        func(fn func())
	now         func() time.Time
}

func newRoom(info protocol.RoomInfo, key RoomKey, deliver Deliverer, exec func(func()), now func() time.Time) (*Room, error) {
	r := &Room{
		key:             key,
		maxClients:      info.MaxClients,
		hidden:          info.Hidden,
		togetherTimeout: time.Duration(info.TogetherTimeoutMs) * time.Millisecond,
		together:        make(map[string][]togetherEntry),
		togetherTimers:  make(map[string]*time.Timer),
		deliver:         deliver,
		exec:            exec,
		now:             now,
	}
	if info.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(info.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		r.passwordHash = hash
	}
	return r, nil
}

func (r *Room) Key() RoomKey { return r.key }

// Descriptor is the public shape of the room. The raw password never
// leaves the broker.
func (r *Room) Descriptor() protocol.RoomDescriptor {
	return protocol.RoomDescriptor{
		App:                 r.key.App,
		Name:                r.key.Name,
		Version:             r.key.Version,
		MaxClients:          r.maxClients,
		TogetherTimeoutMs:   r.togetherTimeout.Milliseconds(),
		Hidden:              r.hidden,
		IsPasswordProtected: len(r.passwordHash) > 0,
	}
}

func (r *Room) MemberCount() int { return len(r.members) }

func (r *Room) HasMember(id string) bool {
	return r.memberIndex(id) != -1
}

func (r *Room) memberIndex(id string) int {
	for i, m := range r.members {
		if m == id {
			return i
		}
	}
	return -1
}

// authorize checks a join-time password against the room's. Both sides
// treat an empty string as "no password".
func (r *Room) authorize(password string) error {
	if len(r.passwordHash) == 0 {
		if password == "" {
			return nil
		}
		return ErrUnauthorized
	}
	if password == "" {
		return ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword(r.passwordHash, []byte(password)) != nil {
		return ErrUnauthorized
	}
	return nil
}

func (r *Room) addClient(id string) error {
	if r.HasMember(id) {
		return ErrAlreadyMember
	}
	if r.maxClients > 0 && len(r.members) >= r.maxClients {
		return ErrAtCapacity
	}
	r.members = append(r.members, id)
	r.presenceChanged(id, true)
	return nil
}

// removeClient is a no-op for unknown ids. Pending together contributions
// of the leaver are retracted; a barrier that becomes complete through
// the shrunken member count flushes immediately.
func (r *Room) removeClient(id string) {
	idx := r.memberIndex(id)
	if idx == -1 {
		return
	}
	r.members = append(r.members[:idx], r.members[idx+1:]...)
	r.presenceChanged(id, false)
	r.retractTogether(id)
}

func (r *Room) presenceChanged(changed string, present bool) {
	p := present
	r.emit(protocol.Message{
		Type:              protocol.TypeClientPresenceChanged,
		Clients:           append([]string(nil), r.members...),
		ClientThatChanged: changed,
		Present:           &p,
		Time:              r.now().UnixMilli(),
	})
}

// emit sends to every current member, routing through the host-app
// interceptor first if one is attached.
func (r *Room) emit(msg protocol.Message) {
	if r.interceptor != nil {
		out, err := r.interceptor.Intercept(msg)
		if err != nil {
			log.Printf("room %v: interceptor failed: %v", r.key, err)
			r.broadcast(protocol.Message{
				Type:    protocol.TypeErr,
				Message: "host app error: " + err.Error(),
			})
			return
		}
		msg = out
	}
	r.broadcast(msg)
}

func (r *Room) broadcast(msg protocol.Message) {
	for _, id := range r.members {
		r.deliver.Deliver(id, msg)
	}
}

// whisper sends only to the listed member ids. Ids that are not members
// are silently ignored.
func (r *Room) whisper(msg protocol.Message, targetIDs []string) {
	for _, id := range targetIDs {
		if r.HasMember(id) {
			r.deliver.Deliver(id, msg)
		}
	}
}

// queueTogetherMessage stores one barrier contribution. The first
// contribution for a togetherId arms the flush timer (if the room has a
// together timeout); reaching one contribution per current member
// flushes immediately.
func (r *Room) queueTogetherMessage(senderID string, msg protocol.Message) {
	tid := string(msg.TogetherID)
	entries, exists := r.together[tid]
	if !exists && r.togetherTimeout > 0 {
		r.togetherTimers[tid] = time.AfterFunc(r.togetherTimeout, func() {
			r.exec(func() { r.flushTogether(tid, "timeout") })
		})
	}
	replaced := false
	for i := range entries {
		if entries[i].clientID == senderID {
			entries[i].msg = msg
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, togetherEntry{clientID: senderID, msg: msg})
	}
	r.together[tid] = entries
	if len(entries) >= len(r.members) {
		r.flushTogether(tid, "barrier")
	}
}

// flushTogether emits every accumulated contribution with one shared
// timestamp, then drops the accumulator. A timer-triggered flush releases
// whatever subset has contributed.
func (r *Room) flushTogether(tid, cause string) {
	entries, ok := r.together[tid]
	if !ok {
		return
	}
	addTogetherFlush(cause)
	if t := r.togetherTimers[tid]; t != nil {
		t.Stop()
		delete(r.togetherTimers, tid)
	}
	delete(r.together, tid)

	now := r.now().UnixMilli()
	for _, e := range entries {
		e.msg.Time = now
		r.emit(e.msg)
	}
}

// retractTogether drops the leaver's pending contributions, then re-checks
// every pending barrier against the shrunken member count. A barrier can
// complete through a leave even when the leaver never contributed to it.
func (r *Room) retractTogether(id string) {
	for tid, entries := range r.together {
		for i := range entries {
			if entries[i].clientID == id {
				entries = append(entries[:i], entries[i+1:]...)
				break
			}
		}
		if len(entries) == 0 {
			delete(r.together, tid)
			if t := r.togetherTimers[tid]; t != nil {
				t.Stop()
				delete(r.togetherTimers, tid)
			}
			continue
		}
		r.together[tid] = entries
	}

	if len(r.members) == 0 {
		return
	}
	var due []string
	for tid, entries := range r.together {
		if len(entries) >= len(r.members) {
			due = append(due, tid)
		}
	}
	for _, tid := range due {
		r.flushTogether(tid, "barrier")
	}
}

// destroy cancels every timer the room owns and releases the interceptor.
// Called exactly once, when the Manager deletes the room.
func (r *Room) destroy() {
	if r.cleanup != nil {
		r.cleanup.Stop()
		r.cleanup = nil
	}
	for tid, t := range r.togetherTimers {
		t.Stop()
		delete(r.togetherTimers, tid)
	}
	if rel, ok := r.interceptor.(InterceptorReleaser); ok {
		rel.Release()
	}
}

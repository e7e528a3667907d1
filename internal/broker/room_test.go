package broker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-broker/internal/protocol"
)

// recorderDeliverer keeps messages per client id so room-level routing can
// be checked without a Manager.
type recorderDeliverer struct {
	mu   sync.Mutex
	sent map[string][]protocol.Message
}

func newRecorderDeliverer() *recorderDeliverer {
	return &recorderDeliverer{sent: make(map[string][]protocol.Message)}
}

func (d *recorderDeliverer) Deliver(clientID string, msg protocol.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent[clientID] = append(d.sent[clientID], msg)
}

func (d *recorderDeliverer) forClient(id string) []protocol.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.Message(nil), d.sent[id]...)
}

func newTestRoom(t *testing.T, info protocol.RoomInfo) (*Room, *recorderDeliverer) {
	t.Helper()
	d := newRecorderDeliverer()
	key := RoomKey{App: info.App, Name: info.Name, Version: info.Version}
	r, err := newRoom(info, key, d, func(fn func()) { fn() }, func() time.Time { return fixedTime })
	require.NoError(t, err)
	return r, d
}

func TestMembersKeepJoinOrder(t *testing.T) {
	r, _ := newTestRoom(t, testRoom())

	require.NoError(t, r.addClient("goku"))
	require.NoError(t, r.addClient("vegeta"))
	require.NoError(t, r.addClient("krillin"))
	r.removeClient("vegeta")
	require.NoError(t, r.addClient("piccolo"))

	assert.Equal(t, []string{"goku", "krillin", "piccolo"}, r.members)
}

func TestDuplicateJoin(t *testing.T) {
	r, _ := newTestRoom(t, testRoom())
	require.NoError(t, r.addClient("goku"))
	require.ErrorIs(t, r.addClient("goku"), ErrAlreadyMember)
	assert.Equal(t, 1, r.MemberCount())
}

func TestRemoveUnknownClientIsNoop(t *testing.T) {
	r, d := newTestRoom(t, testRoom())
	require.NoError(t, r.addClient("goku"))
	before := len(d.forClient("goku"))
	r.removeClient("piccolo")
	assert.Equal(t, 1, r.MemberCount())
	assert.Len(t, d.forClient("goku"), before)
}

func TestPresenceMessages(t *testing.T) {
	r, d := newTestRoom(t, testRoom())
	require.NoError(t, r.addClient("goku"))
	require.NoError(t, r.addClient("vegeta"))

	msgs := d.forClient("goku")
	require.Len(t, msgs, 2)

	join := msgs[1]
	assert.Equal(t, protocol.TypeClientPresenceChanged, join.Type)
	assert.Equal(t, "vegeta", join.ClientThatChanged)
	require.NotNil(t, join.Present)
	assert.True(t, *join.Present)
	assert.Equal(t, []string{"goku", "vegeta"}, join.Clients)
	assert.Equal(t, fixedTime.UnixMilli(), join.Time)

	r.removeClient("vegeta")
	msgs = d.forClient("goku")
	leave := msgs[len(msgs)-1]
	assert.Equal(t, "vegeta", leave.ClientThatChanged)
	require.NotNil(t, leave.Present)
	assert.False(t, *leave.Present)
	assert.Equal(t, []string{"goku"}, leave.Clients)
}

func TestDescriptorNeverCarriesPassword(t *testing.T) {
	info := testRoom()
	info.Password = "kamehameha"
	r, _ := newTestRoom(t, info)

	desc := r.Descriptor()
	assert.True(t, desc.IsPasswordProtected)
	assert.NoError(t, r.authorize("kamehameha"))
	assert.ErrorIs(t, r.authorize("wrong"), ErrUnauthorized)
}

// stampInterceptor rewrites payloads so interception is observable.
type stampInterceptor struct {
	err      error
	released bool
}

func (i *stampInterceptor) Intercept(msg protocol.Message) (protocol.Message, error) {
	if i.err != nil {
		return protocol.Message{}, i.err
	}
	msg.Payload = []byte(`"stamped"`)
	return msg, nil
}

func (i *stampInterceptor) Release() { i.released = true }

func TestInterceptorRewritesBroadcasts(t *testing.T) {
	r, d := newTestRoom(t, testRoom())
	r.interceptor = &stampInterceptor{}
	require.NoError(t, r.addClient("goku"))

	r.emit(protocol.Message{Type: protocol.TypeData, Payload: []byte(`"original"`)})

	msgs := d.forClient("goku")
	last := msgs[len(msgs)-1]
	assert.Equal(t, `"stamped"`, string(last.Payload))
}

func TestInterceptorFailureBecomesErrBroadcast(t *testing.T) {
	r, d := newTestRoom(t, testRoom())
	r.interceptor = &stampInterceptor{err: errors.New("rule violation")}
	r.members = append(r.members, "goku")

	r.emit(protocol.Message{Type: protocol.TypeData})

	msgs := d.forClient("goku")
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeErr, msgs[0].Type)
	assert.Contains(t, msgs[0].Message, "rule violation")
}

func TestDestroyReleasesInterceptor(t *testing.T) {
	r, _ := newTestRoom(t, testRoom())
	ic := &stampInterceptor{}
	r.interceptor = ic
	r.destroy()
	assert.True(t, ic.released)
}

package client

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-broker/internal/protocol"
)

func TestPendingResolve(t *testing.T) {
	p := newPendingTable()
	ch := p.add(protocol.TypeJoinRoom)

	p.settle(protocol.TypeJoinRoom, pendingResult{desc: protocol.RoomDescriptor{Name: "Planet Namek"}})

	res := <-ch
	require.NoError(t, res.err)
	assert.Equal(t, "Planet Namek", res.desc.Name)
}

func TestPendingSettleWithoutWaiterIsNoop(t *testing.T) {
	p := newPendingTable()
	p.settle(protocol.TypeJoinRoom, pendingResult{err: errors.New("nobody asked")})
}

func TestNewerRequestSupersedesPending(t *testing.T) {
	p := newPendingTable()
	first := p.add(protocol.TypeJoinRoom)
	second := p.add(protocol.TypeJoinRoom)

	res := <-first
	require.ErrorIs(t, res.err, ErrSuperseded)

	p.settle(protocol.TypeJoinRoom, pendingResult{desc: protocol.RoomDescriptor{Name: "b"}})
	res = <-second
	require.NoError(t, res.err)
	assert.Equal(t, "b", res.desc.Name)
}

func TestFailAllRejectsEveryWaiter(t *testing.T) {
	p := newPendingTable()
	ch := p.add(protocol.TypeJoinRoom)

	closed := errors.New("connection closed")
	p.failAll(closed)

	res := <-ch
	require.ErrorIs(t, res.err, closed)

	// The table is empty afterwards; a new waiter works normally.
	ch = p.add(protocol.TypeJoinRoom)
	p.settle(protocol.TypeJoinRoom, pendingResult{})
	res = <-ch
	assert.NoError(t, res.err)
}

package broker

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"room-broker/internal/protocol"
)

// DispatcherConfig carries the per-server settings a dispatcher stamps
// into its responses.
type DispatcherConfig struct {
	ServerVersion  string
	HostAppVersion string
	StatsEnabled   bool
}

// Dispatcher is the per-connection message pump. The transport calls
// HandleOpen once, HandleRaw for every inbound frame (serially), and
// HandleClose when the connection dies for any reason. Decode failures
// and unknown message types answer with a non-fatal Err; the connection
// stays open.
type Dispatcher struct {
	manager *Manager
	sender  Sender
	cfg     DispatcherConfig

	clientID string
}

// NewDispatcher resolves the connection's client id: a non-empty
// requestedID resumes a previous identity, otherwise a fresh one is
// assigned.
func NewDispatcher(m *Manager, s Sender, requestedID string, cfg DispatcherConfig) *Dispatcher {
	id := requestedID
	if id == "" {
		id = uuid.NewString()
	}
	return &Dispatcher{manager: m, sender: s, cfg: cfg, clientID: id}
}

func (d *Dispatcher) ClientID() string { return d.clientID }

// HandleOpen registers the connection and announces the assigned id and
// version strings.
func (d *Dispatcher) HandleOpen() {
	d.manager.Connect(d.clientID, d.sender)
	log.Printf("client %s connected", d.clientID)
	d.send(protocol.Message{
		Type:           protocol.TypeServerAssignedData,
		ClientID:       d.clientID,
		ServerVersion:  d.cfg.ServerVersion,
		HostAppVersion: d.cfg.HostAppVersion,
	})
}

// HandleClose runs the same leave path as an explicit LeaveRoom followed
// by forgetting the connection.
func (d *Dispatcher) HandleClose() {
	log.Printf("client %s disconnected", d.clientID)
	d.manager.Disconnect(d.clientID)
}

// HandleRaw decodes one frame and dispatches it.
func (d *Dispatcher) HandleRaw(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Printf("client %s sent an undecodable frame: %v", d.clientID, err)
		d.sendErr(fmt.Sprintf("message is not valid JSON: %v", err))
		return
	}
	d.HandleMessage(msg)
}

// HandleMessage routes a decoded message. The switch is exhaustive over
// the client-to-server tag set; anything else is answered with Err.
func (d *Dispatcher) HandleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeJoinRoom:
		d.handleJoinRoom(msg)
	case protocol.TypeData:
		if err := d.manager.OnData(d.clientID, msg); err != nil {
			d.sendErr(err.Error())
		}
	case protocol.TypeLeaveRoom:
		d.manager.RemoveClientFromRoom(d.clientID)
	case protocol.TypeGetRooms:
		filter := protocol.RoomInfo{}
		if msg.RoomInfo != nil {
			filter = *msg.RoomInfo
		}
		d.send(protocol.Message{
			Type:  protocol.TypeRooms,
			Rooms: d.manager.GetRooms(filter),
		})
	case protocol.TypeGetStats:
		d.handleGetStats()
	default:
		d.sendErr(fmt.Sprintf("message type %q not understood", msg.Type))
	}
}

func (d *Dispatcher) handleJoinRoom(msg protocol.Message) {
	if msg.RoomInfo == nil {
		d.reject(protocol.TypeJoinRoom, "joinRoom requires roomInfo")
		return
	}
	if msg.MakeRoomIfNonExistant {
		if err := d.manager.MakeRoom(*msg.RoomInfo); err != nil {
			d.reject(protocol.TypeJoinRoom, err.Error())
			return
		}
	}
	desc, err := d.manager.AddClientToRoom(d.clientID, *msg.RoomInfo)
	if err != nil {
		d.reject(protocol.TypeJoinRoom, joinErrText(err))
		return
	}
	d.resolve(protocol.TypeJoinRoom, desc)
}

// joinErrText keeps wire-visible reasons stable regardless of wrapping.
func joinErrText(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "room does not exist and makeRoomIfNonExistant was not set"
	case errors.Is(err, ErrAtCapacity):
		return "Room is at capacity and cannot accept more clients due to the room's chosen settings"
	case errors.Is(err, ErrUnauthorized):
		return "wrong password for room"
	case errors.Is(err, ErrAlreadyInRoom):
		return "already in a room; leave it before joining another"
	case errors.Is(err, ErrAlreadyMember):
		return "already a member of this room"
	default:
		return err.Error()
	}
}

func (d *Dispatcher) handleGetStats() {
	if !d.cfg.StatsEnabled {
		d.sendErr("stats are disabled on this server")
		return
	}
	stats := d.manager.StatsSnapshot()
	d.send(protocol.Message{
		Type:  protocol.TypeGetStats,
		Stats: &stats,
	})
}

func (d *Dispatcher) resolve(fn protocol.MessageType, desc protocol.RoomDescriptor) {
	d.send(protocol.Message{
		Type: protocol.TypeResolvePromise,
		Func: fn,
		Data: &desc,
	})
}

func (d *Dispatcher) reject(fn protocol.MessageType, reason string) {
	d.send(protocol.Message{
		Type: protocol.TypeRejectPromise,
		Func: fn,
		Err:  reason,
	})
}

func (d *Dispatcher) sendErr(reason string) {
	d.send(protocol.Message{
		Type:    protocol.TypeErr,
		Message: reason,
	})
}

func (d *Dispatcher) send(msg protocol.Message) {
	if err := d.sender.Send(msg); err != nil {
		log.Printf("send to %s failed: %v", d.clientID, err)
	}
}

// Package client is the Go SDK for the broker. It mirrors the websocket
// protocol one-to-one: join and leave rooms, exchange Data messages, and
// receive server pushes through callback fields set before Connect.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"room-broker/internal/protocol"
)

const (
	soloModeClientID = "solomode_client_id"

	// heartbeatWait should equal the broker's ping interval plus a
	// conservative assumption of the latency.
	heartbeatWait = 5 * time.Second

	maxReconnectWait = 10 * time.Second
)

var ErrNotConnected = errors.New("not connected to a broker")

// DataExtras selects a delivery mode for SendData. A nil extras or empty
// SubType means plain broadcast.
type DataExtras struct {
	SubType          protocol.DataSubType
	TogetherID       json.RawMessage
	WhisperClientIDs []string
}

// Client is a broker connection. Set the On* callbacks before calling
// Connect; they are invoked from the read loop goroutine.
//
// A Client reconnects on its own after an unintentional disconnect, with
// a quadratic falloff capped at maxReconnectWait, and rejoins the room it
// was in once the connection is back.
type Client struct {
	OnData                  func(protocol.Message)
	OnError                 func(error)
	OnServerAssignedData    func(protocol.Message)
	OnClientPresenceChanged func(protocol.Message)
	OnRooms                 func(protocol.Message)
	OnConnectInfo           func(protocol.Message)
	OnLatency               func(Latency)

	mu       sync.Mutex
	ws       *websocket.Conn
	writeMu  sync.Mutex
	wsURL    string
	clientID string

	soloMode         bool
	useStats         bool
	connected        bool
	intentionalClose bool

	currentRoom *protocol.RoomInfo

	reconnectAttempts int
	reconnectTimer    *time.Timer
	heartbeatTimer    *time.Timer

	latency *Latency
	pending *pendingTable
}

func New() *Client {
	return &Client{
		latency: newLatency(),
		pending: newPendingTable(),
	}
}

// IsConnected reports whether SendData and JoinRoom can be used. Solo mode
// counts as connected.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.soloMode || c.connected
}

func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Connect dials the broker. A clientId query parameter in wsURL requests
// that identity from the broker, which is how a client resumes after a
// process restart. When useStats is set, server timestamps feed the
// OnLatency callback.
func (c *Client) Connect(wsURL string, useStats bool) error {
	if c.IsConnected() {
		if err := c.Disconnect(); err != nil {
			return err
		}
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("client: parse url: %w", err)
	}

	c.mu.Lock()
	if id := u.Query().Get("clientId"); id != "" {
		c.clientID = id
	}
	u.RawQuery = ""
	c.wsURL = u.String()
	c.useStats = useStats

	dialURL := c.wsURL
	if c.clientID != "" {
		dialURL += "?clientId=" + url.QueryEscape(c.clientID)
	}
	c.mu.Unlock()

	ws, _, err := websocket.DefaultDialer.Dial(dialURL, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", dialURL, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.soloMode = false
	c.connected = true
	c.intentionalClose = false
	c.reconnectAttempts = 0
	rejoin := c.currentRoom
	c.mu.Unlock()

	go c.readLoop(ws)

	c.emitConnectInfo(true, fmt.Sprintf("Opened connection to %s", c.wsURL))

	if rejoin != nil {
		go func() {
			if _, err := c.JoinRoom(*rejoin, true); err != nil {
				c.emitError(fmt.Errorf("client: rejoin room: %w", err))
			}
		}()
	}
	return nil
}

// ConnectSolo fakes a connection so the API can be used in offline or
// single-player contexts. Messages echo locally and never leave the
// process.
func (c *Client) ConnectSolo() error {
	if err := c.Disconnect(); err != nil {
		return err
	}
	c.mu.Lock()
	c.soloMode = true
	c.ws = nil
	c.mu.Unlock()

	c.emitConnectInfo(true, `"Connected" in solo mode`)

	c.handleMessage(protocol.Message{
		Type:          protocol.TypeServerAssignedData,
		ClientID:      soloModeClientID,
		ServerVersion: "no server - client is in solo mode",
	}, false)
	present := true
	c.handleMessage(protocol.Message{
		Type:    protocol.TypeClientPresenceChanged,
		Clients: []string{soloModeClientID},
		Time:    time.Now().UnixMilli(),
		Present: &present,
	}, false)
	return nil
}

// Disconnect leaves the current room and closes the socket without
// triggering a reconnect. Calling it mid-reconnect cancels the pending
// attempt; the intentional-close mark runs before any connected-state
// check so a client in the reconnecting state cannot dial again.
func (c *Client) Disconnect() error {
	c.LeaveRoom()

	c.mu.Lock()
	c.intentionalClose = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
	}
	if c.soloMode {
		c.soloMode = false
		c.mu.Unlock()
		return nil
	}
	if !c.connected || c.ws == nil {
		c.mu.Unlock()
		return nil
	}
	ws := c.ws
	c.mu.Unlock()

	return ws.Close()
}

// MakeRoom joins roomInfo, creating the room first if it does not exist.
func (c *Client) MakeRoom(roomInfo protocol.RoomInfo) (protocol.RoomDescriptor, error) {
	return c.JoinRoom(roomInfo, true)
}

// JoinRoom blocks until the broker resolves or rejects the request. A
// second JoinRoom issued while one is in flight supersedes the first,
// which fails with ErrSuperseded.
func (c *Client) JoinRoom(roomInfo protocol.RoomInfo, makeRoomIfNonExistant bool) (protocol.RoomDescriptor, error) {
	if !c.IsConnected() {
		return protocol.RoomDescriptor{}, fmt.Errorf("%w: cannot join room", ErrNotConnected)
	}

	c.mu.Lock()
	solo := c.soloMode
	c.mu.Unlock()
	if solo {
		c.mu.Lock()
		c.currentRoom = &roomInfo
		c.mu.Unlock()
		return protocol.RoomDescriptor{
			App:                 roomInfo.App,
			Name:                roomInfo.Name,
			Version:             roomInfo.Version,
			MaxClients:          roomInfo.MaxClients,
			TogetherTimeoutMs:   roomInfo.TogetherTimeoutMs,
			Hidden:              roomInfo.Hidden,
			IsPasswordProtected: roomInfo.Password != "",
		}, nil
	}

	ch := c.pending.add(protocol.TypeJoinRoom)
	if err := c.write(protocol.Message{
		Type:                  protocol.TypeJoinRoom,
		RoomInfo:              &roomInfo,
		MakeRoomIfNonExistant: makeRoomIfNonExistant,
	}); err != nil {
		c.pending.settle(protocol.TypeJoinRoom, pendingResult{err: err})
		res := <-ch
		return protocol.RoomDescriptor{}, res.err
	}

	res := <-ch
	if res.err != nil {
		return protocol.RoomDescriptor{}, res.err
	}

	// Keep the full RoomInfo, password included, so an automatic rejoin
	// can re-authenticate.
	c.mu.Lock()
	c.currentRoom = &roomInfo
	c.mu.Unlock()
	return res.desc, nil
}

// LeaveRoom clears the saved room so a later reconnect will not rejoin
// it, then notifies the broker if connected.
func (c *Client) LeaveRoom() {
	c.mu.Lock()
	c.currentRoom = nil
	solo := c.soloMode
	connected := c.connected
	if solo {
		// Solo identity does not outlive the room. On a real broker the
		// clientID is retained so the client can resume.
		c.clientID = ""
	}
	c.mu.Unlock()

	if !solo && connected {
		if err := c.write(protocol.Message{Type: protocol.TypeLeaveRoom}); err != nil {
			c.emitError(err)
		}
	}
}

// GetRooms asks for the joinable rooms matching roomInfo. The answer
// arrives through OnRooms.
func (c *Client) GetRooms(roomInfo protocol.RoomInfo) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		c.emitError(fmt.Errorf("%w: cannot get rooms", ErrNotConnected))
		return
	}
	if err := c.write(protocol.Message{
		Type:     protocol.TypeGetRooms,
		RoomInfo: &roomInfo,
	}); err != nil {
		c.emitError(err)
	}
}

// GetStats asks the broker for its stats snapshot. The answer arrives as
// a GetStats message through OnData's sibling path; brokers with stats
// disabled answer with Err.
func (c *Client) GetStats() {
	if err := c.write(protocol.Message{Type: protocol.TypeGetStats}); err != nil {
		c.emitError(err)
	}
}

// SendData sends payload to the current room. Plain broadcasts are echoed
// to this client's own callbacks immediately, before the broker confirms,
// to hide round-trip latency; the broker's echo is then used only to
// cancel the heartbeat. Whisper and Together sends skip the local echo
// since their delivery is conditional.
func (c *Client) SendData(payload any, extras *DataExtras) error {
	if !c.IsConnected() {
		return fmt.Errorf("%w: cannot send data to room", ErrNotConnected)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("client: marshal payload: %w", err)
	}

	msg := protocol.Message{
		Type:    protocol.TypeData,
		Payload: raw,
	}
	if extras != nil {
		msg.SubType = extras.SubType
		msg.TogetherID = extras.TogetherID
		msg.WhisperClientIDs = extras.WhisperClientIDs
	}

	c.mu.Lock()
	solo := c.soloMode
	id := c.clientID
	c.mu.Unlock()

	if !solo {
		if err := c.write(msg); err != nil {
			return err
		}
	}

	if extras == nil || extras.SubType == "" {
		c.heartbeat()
		// The local echo has no server-assigned fields such as time.
		echo := msg
		echo.FromClient = id
		c.handleMessage(echo, false)
	}
	return nil
}

// heartbeat arms a timer that fires if the broker does not echo this
// client's own message back within heartbeatWait.
func (c *Client) heartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.soloMode {
		return
	}
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
	}
	c.heartbeatTimer = time.AfterFunc(heartbeatWait, func() {
		c.emitError(fmt.Errorf("client: latency for own message echoed back from server exceeded threshold of %v", heartbeatWait))
	})
}

func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.onSocketClosed(err)
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.emitError(fmt.Errorf("client: decode frame: %w", err))
			continue
		}

		c.mu.Lock()
		self := msg.FromClient != "" && msg.FromClient == c.clientID
		useStats := c.useStats
		if self && c.heartbeatTimer != nil {
			// Own message came back; the connection is alive.
			c.heartbeatTimer.Stop()
		}
		c.mu.Unlock()

		// Own broadcasts were already handled locally on send.
		if self && msg.Type == protocol.TypeData && msg.SubType == "" {
			continue
		}
		c.handleMessage(msg, useStats)
	}
}

func (c *Client) onSocketClosed(err error) {
	c.mu.Lock()
	c.connected = false
	c.ws = nil
	if c.heartbeatTimer != nil {
		// A torn-down connection is not a latency problem.
		c.heartbeatTimer.Stop()
	}
	intentional := c.intentionalClose
	c.mu.Unlock()

	c.pending.failAll(fmt.Errorf("client: connection closed: %w", err))
	c.emitConnectInfo(false, fmt.Sprintf("Connection to %s closed.", c.wsURL))

	if !intentional {
		c.tryReconnect()
	}
}

func (c *Client) tryReconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	wait := reconnectDelay(c.reconnectAttempts)
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	wsURL := c.wsURL
	useStats := c.useStats
	c.mu.Unlock()

	log.Printf("client: reconnect attempt %d in %v", attempt, wait)
	c.mu.Lock()
	c.reconnectTimer = time.AfterFunc(wait, func() {
		// A Disconnect issued after this timer was armed wins, even if
		// Stop lost the race with the timer firing.
		c.mu.Lock()
		abort := c.intentionalClose
		c.mu.Unlock()
		if abort {
			return
		}
		if err := c.Connect(wsURL, useStats); err != nil {
			log.Printf("client: failed to reconnect: %v", err)
			c.tryReconnect()
		}
	})
	c.mu.Unlock()
}

// reconnectDelay implements a quadratic falloff capped at
// maxReconnectWait.
func reconnectDelay(attempts int) time.Duration {
	d := 100*time.Millisecond + time.Duration(attempts*attempts)*50*time.Millisecond
	if d > maxReconnectWait {
		return maxReconnectWait
	}
	return d
}

func (c *Client) handleMessage(msg protocol.Message, useStats bool) {
	if useStats && msg.Time != 0 {
		ms := float64(time.Now().UnixMilli() - msg.Time)
		c.mu.Lock()
		full := c.latency.observe(ms)
		snapshot := *c.latency
		cb := c.OnLatency
		c.mu.Unlock()
		if full && cb != nil {
			cb(snapshot)
		}
	}

	switch msg.Type {
	case protocol.TypeData:
		if c.OnData != nil {
			c.OnData(msg)
		}
	case protocol.TypeResolvePromise:
		var desc protocol.RoomDescriptor
		if msg.Data != nil {
			desc = *msg.Data
		}
		c.pending.settle(msg.Func, pendingResult{desc: desc})
	case protocol.TypeRejectPromise:
		c.pending.settle(msg.Func, pendingResult{err: errors.New(msg.Err)})
	case protocol.TypeServerAssignedData:
		c.mu.Lock()
		c.clientID = msg.ClientID
		c.mu.Unlock()
		if c.OnServerAssignedData != nil {
			c.OnServerAssignedData(msg)
		}
	case protocol.TypeClientPresenceChanged:
		if c.OnClientPresenceChanged != nil {
			c.OnClientPresenceChanged(msg)
		}
	case protocol.TypeRooms:
		if c.OnRooms != nil {
			c.OnRooms(msg)
		}
	case protocol.TypeErr:
		c.emitError(errors.New(msg.Message))
	case protocol.TypeGetStats:
		if c.OnData != nil {
			c.OnData(msg)
		}
	default:
		log.Printf("client: message of type %q not recognized", msg.Type)
	}
}

func (c *Client) write(msg protocol.Message) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

func (c *Client) emitConnectInfo(connected bool, text string) {
	if c.OnConnectInfo == nil {
		return
	}
	c.OnConnectInfo(protocol.Message{
		Type:      protocol.TypeConnectInfo,
		Connected: connected,
		Msg:       text,
	})
}

func (c *Client) emitError(err error) {
	log.Printf("client: %v", err)
	if c.OnError != nil {
		c.OnError(err)
	}
}

package protocol

import "encoding/json"

// MessageType tags every wire message. The set is closed: the dispatcher
// answers unknown tags with an Err message instead of closing the connection.
type MessageType string

const (
	// Both directions.
	TypeData     MessageType = "Data"
	TypeGetStats MessageType = "GetStats"

	// Server to client.
	TypeRooms                 MessageType = "Rooms"
	TypeClientPresenceChanged MessageType = "ClientPresenceChanged"
	TypeServerAssignedData    MessageType = "ServerAssignedData"
	TypeResolvePromise        MessageType = "ResolvePromise"
	TypeRejectPromise         MessageType = "RejectPromise"
	TypeErr                   MessageType = "Err"

	// Client to server.
	TypeJoinRoom  MessageType = "JoinRoom"
	TypeLeaveRoom MessageType = "LeaveRoom"
	TypeGetRooms  MessageType = "GetRooms"

	// Synthesized by the client SDK only, never sent by the broker.
	TypeConnectInfo MessageType = "ConnectInfo"
)

// DataSubType selects a delivery mode for Data messages. Absent means
// plain broadcast to the whole room.
type DataSubType string

const (
	SubTypeTogether DataSubType = "Together"
	SubTypeWhisper  DataSubType = "Whisper"
)

// RoomInfo identifies a room and carries the creation-time settings.
// It is what clients send in JoinRoom and GetRooms messages.
type RoomInfo struct {
	App               string `json:"app,omitempty"`
	Name              string `json:"name,omitempty"`
	Version           string `json:"version,omitempty"`
	MaxClients        int    `json:"maxClients,omitempty"`
	TogetherTimeoutMs int64  `json:"togetherTimeoutMs,omitempty"`
	Hidden            bool   `json:"hidden,omitempty"`
	Password          string `json:"password,omitempty"`
}

// RoomDescriptor is the public shape of a room. It deliberately has no
// password field; only IsPasswordProtected leaves the broker.
type RoomDescriptor struct {
	App                 string `json:"app"`
	Name                string `json:"name"`
	Version             string `json:"version"`
	MaxClients          int    `json:"maxClients,omitempty"`
	TogetherTimeoutMs   int64  `json:"togetherTimeoutMs,omitempty"`
	Hidden              bool   `json:"hidden,omitempty"`
	IsPasswordProtected bool   `json:"isPasswordProtected"`
}

// Stats is the payload of a GetStats reply.
type Stats struct {
	Rooms       []RoomDescriptor `json:"rooms"`
	RoomsHidden int              `json:"roomsHidden"`
	Clients     int              `json:"clients"`
	UptimeMs    int64            `json:"uptime"`
	CPUUsage    float64          `json:"cpuUsage"`
}

// Message is the wire envelope. Only the fields relevant to a given Type
// are populated; everything else is omitted from the JSON.
//
// TogetherID is kept as raw JSON so that clients sending numeric ids get
// the same bytes echoed back.
type Message struct {
	Type MessageType `json:"type"`

	// JoinRoom / GetRooms
	RoomInfo              *RoomInfo `json:"roomInfo,omitempty"`
	MakeRoomIfNonExistant bool      `json:"makeRoomIfNonExistant,omitempty"`

	// Data
	Payload          json.RawMessage `json:"payload,omitempty"`
	SubType          DataSubType     `json:"subType,omitempty"`
	TogetherID       json.RawMessage `json:"togetherId,omitempty"`
	WhisperClientIDs []string        `json:"whisperClientIds,omitempty"`
	FromClient       string          `json:"fromClient,omitempty"`
	Time             int64           `json:"time,omitempty"`

	// ServerAssignedData
	ClientID       string `json:"clientId,omitempty"`
	ServerVersion  string `json:"serverVersion,omitempty"`
	HostAppVersion string `json:"hostAppVersion,omitempty"`

	// ClientPresenceChanged
	Clients           []string `json:"clients,omitempty"`
	ClientThatChanged string   `json:"clientThatChanged,omitempty"`
	Present           *bool    `json:"present,omitempty"`

	// Rooms
	Rooms []RoomDescriptor `json:"rooms,omitempty"`

	// ResolvePromise / RejectPromise
	Func MessageType     `json:"func,omitempty"`
	Data *RoomDescriptor `json:"data,omitempty"`
	Err  string          `json:"err,omitempty"`

	// Err
	Message string `json:"message,omitempty"`

	// GetStats reply
	Stats *Stats `json:"stats,omitempty"`

	// ConnectInfo (client SDK only)
	Connected bool   `json:"connected,omitempty"`
	Msg       string `json:"msg,omitempty"`
}

// Decode parses a raw frame into a Message.
func Decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

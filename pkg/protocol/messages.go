// Package protocol implements the datagram wire format exchanged between the
// client and the server. Every payload starts with a one byte Tag followed by
// the fields of that message in a fixed order with fixed widths.
package protocol

type Tag uint8

const (
	TagConnectRequest Tag = 0x01
	TagConnectAccept  Tag = 0x02
	TagInput          Tag = 0x03
	TagSnapshot       Tag = 0x04
	TagDisconnect     Tag = 0x05
	TagHeartbeat      Tag = 0x06
)

func (t Tag) String() string {
	switch t {
	case TagConnectRequest:
		return "connect_request"
	case TagConnectAccept:
		return "connect_accept"
	case TagInput:
		return "input"
	case TagSnapshot:
		return "snapshot"
	case TagDisconnect:
		return "disconnect"
	case TagHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

const (
	// MaxNameLen bounds the length-prefixed player name.
	MaxNameLen = 32

	// MaxSnapshotEntities bounds the entity count of one snapshot so that it
	// fits in a single datagram.
	MaxSnapshotEntities = 2048

	// MaxDatagramSize is the size of every receive buffer.
	MaxDatagramSize = 64 * 1024

	// DescriptorSize is the encoded size of one EntityDescriptor.
	DescriptorSize = 4 + 1 + 4*4 + 2 + 1
)

// Fixed encoded sizes, tag byte included.
const (
	connectRequestMinSize = 1 + 1
	connectAcceptSize     = 1 + 4 + 4
	inputSize             = 1 + 4 + 4 + 1
	snapshotHeaderSize    = 1 + 4 + 2
	disconnectSize        = 1 + 1
	heartbeatSize         = 1 + 4
)

// Message is implemented by every wire message.
type Message interface {
	Tag() Tag
}

type ConnectRequest struct {
	Name string
}

type ConnectAccept struct {
	ClientID uint32
	EntityID uint32
}

// InputFlags is the bit set of control intents of one tick.
type InputFlags uint8

const (
	InputUp InputFlags = 1 << iota
	InputDown
	InputLeft
	InputRight
	InputFire
)

func (f InputFlags) Has(flag InputFlags) bool {
	return f&flag != 0
}

type Input struct {
	ClientID uint32
	Sequence uint32
	Flags    InputFlags
}

// EntityKind tags the kind of entity a descriptor describes.
type EntityKind uint8

const (
	KindNone EntityKind = iota
	KindPlayer
	KindEnemy
	KindProjectile
)

func (k EntityKind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindEnemy:
		return "enemy"
	case KindProjectile:
		return "projectile"
	default:
		return "none"
	}
}

// StateFlags carries per-entity state relevant to rendering and collision.
type StateFlags uint8

const (
	StateFiring StateFlags = 1 << iota
	StateRespawning
	StateHostile
	StateLocal
)

type EntityDescriptor struct {
	ID     uint32
	Kind   EntityKind
	X, Y   float32
	VX, VY float32
	Health int16
	Flags  StateFlags
}

type Snapshot struct {
	Tick     uint32
	Entities []EntityDescriptor
}

type DisconnectReason uint8

const (
	ReasonQuit DisconnectReason = iota
	ReasonTimeout
	ReasonServerFull
	ReasonShutdown
	ReasonKicked
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonQuit:
		return "quit"
	case ReasonTimeout:
		return "timeout"
	case ReasonServerFull:
		return "server_full"
	case ReasonShutdown:
		return "shutdown"
	case ReasonKicked:
		return "kicked"
	default:
		return "unknown"
	}
}

type Disconnect struct {
	Reason DisconnectReason
}

type Heartbeat struct {
	ClientID uint32
}

func (ConnectRequest) Tag() Tag { return TagConnectRequest }
func (ConnectAccept) Tag() Tag  { return TagConnectAccept }
func (Input) Tag() Tag          { return TagInput }
func (Snapshot) Tag() Tag       { return TagSnapshot }
func (Disconnect) Tag() Tag     { return TagDisconnect }
func (Heartbeat) Tag() Tag      { return TagHeartbeat }

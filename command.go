package kinetic

import "errors"

// MessageType identifies the kind of operation a Command carries, and
// distinguishes a response from its request (Kinetic's proto schema uses
// a distinct enum value per direction; we do the same).
type MessageType int32

const (
	NOOP MessageType = iota
	NOOP_RESPONSE
	GET
	GET_RESPONSE
	PUT
	PUT_RESPONSE
	DELETE
	DELETE_RESPONSE
	GETKEYRANGE
	GETKEYRANGE_RESPONSE
	SETUP
	SETUP_RESPONSE
	SECURITY
	SECURITY_RESPONSE
	GETLOG
	GETLOG_RESPONSE
	PINOP
	PINOP_RESPONSE
	// STATUS is the unsolicited first message a drive sends after
	// accept, carrying the assigned connection ID. It has no
	// AckSequence.
	STATUS
)

// PinOpType selects the admin pin operation a Setup body requests.
type PinOpType int32

const (
	PinOpLock PinOpType = iota
	PinOpUnlock
	PinOpSecureErase
	PinOpInstantErase
)

// Synchronization selects how durably a PUT/DELETE must land before the
// drive acknowledges it.
type Synchronization int32

const (
	SyncWriteThrough Synchronization = iota
	SyncWriteBack
	SyncFlush
)

// KeyValue is the body of GET/PUT/DELETE commands.
type KeyValue struct {
	Key             []byte
	DbVersion       []byte
	NewVersion      []byte
	Tag             []byte
	Algorithm       int32
	Synchronization Synchronization
	Force           bool
	MetadataOnly    bool
}

// KeyRange is the body of a GETKEYRANGE command.
type KeyRange struct {
	StartKey          []byte
	EndKey            []byte
	StartKeyInclusive bool
	EndKeyInclusive   bool
	MaxReturned       int32
	Reverse           bool
	Keys              [][]byte // populated on the response
}

// PinOp is the admin sub-body selecting lock/unlock/erase behavior.
type PinOp struct {
	Type PinOpType
	Pin  []byte
}

// Setup is the body of SETUP commands (cluster version changes, firmware
// download, pin operations).
type Setup struct {
	NewClusterVersion int64
	FirmwareDownload  bool
	Firmware          []byte
	PinOp             *PinOp
}

// ACLScope restricts an ACL entry to a permission and, optionally, a key
// prefix/TLS requirement.
type ACLScope struct {
	Permission  int32
	TlsRequired bool
	KeyPrefix   []byte
}

// ACLEntry grants an identity a set of scopes, authenticated with its own
// HMAC key.
type ACLEntry struct {
	Identity      int64
	Key           []byte
	HmacAlgorithm int32
	Scopes        []ACLScope
}

// Security is the body of SECURITY commands (ACL and pin management).
type Security struct {
	ACL         []ACLEntry
	OldLockPin  []byte
	NewLockPin  []byte
	OldErasePin []byte
	NewErasePin []byte
}

// GetLog is the body of GETLOG commands.
type GetLog struct {
	Types   []int32
	Device  string
	Content []byte // populated on the response
}

// Body is the discriminated-union payload of a Command. Exactly one
// field is populated, matching which MessageType the command carries.
type Body struct {
	KeyValue *KeyValue
	Range    *KeyRange
	Setup    *Setup
	Security *Security
	GetLog   *GetLog
}

// CommandHeader carries the fields named in spec.md's wire header:
// fencing (cluster version), routing (connection ID), ordering
// (sequence/ackSequence) and the message type/timeout/priority.
type CommandHeader struct {
	ClusterVersion int64
	ConnectionID   int64
	Sequence       int64
	AckSequence    int64
	MessageType    MessageType
	Timeout        int64
	EarlyExit      bool
	Priority       int32
}

// CommandStatus carries the drive's reported outcome on a response
// command. It is empty on requests.
type CommandStatus struct {
	Code            int32
	Message         string
	DetailedMessage string
}

// Command is the inner, schema-defined message: the core treats its
// fields opaquely except those named in spec.md (header routing fields
// and status). The body's concrete schema belongs to the generated
// protobuf definitions in production; this package defines an
// equivalent Go-native shape so the engine is self-contained and
// testable without that external collaborator.
type Command struct {
	Header CommandHeader
	Body   Body
	Status CommandStatus
}

// Auth is the authentication envelope attached to every outbound
// message: either an HMAC computed over the serialized command, or a
// raw PIN for pin-authenticated admin operations.
type Auth struct {
	Identity int64
	Hmac     []byte
	Pin      []byte
}

func (a Auth) usesPin() bool { return a.Pin != nil }

// Message is the top-level frame payload: the serialized inner command
// plus its authentication envelope, exactly as described in spec.md §6
// ("command envelope").
type Message struct {
	CommandBytes []byte
	Auth         Auth
}

var errTruncated = errors.New("kinetic: truncated command")

// Codec marshals and unmarshals the command envelope and the inner
// command. Production deployments plug in a codec backed by the
// generated Kinetic protobuf schema (an external collaborator per
// spec.md §1); DefaultCodec (codec.go) is a self-contained binary encoding
// used when no protobuf codec is supplied, and by this package's own
// tests.
type Codec interface {
	EncodeCommand(cmd *Command) ([]byte, error)
	DecodeCommand(data []byte) (*Command, error)
	EncodeMessage(msg *Message) ([]byte, error)
	DecodeMessage(data []byte) (*Message, error)
}

package kinetic

import "fmt"

// Code is the closed set of outcomes an operation can resolve to.
//
// Every operation resolves to a Status, and Connect, Execute and
// ExecuteAsync report their failures as one; the core never resolves an
// operation silently.
type Code int

const (
	Success Code = iota
	SessionEmpty
	ConnectionError
	DeviceBusy
	HmacFailure
	DataError
	VersionMismatch
	NotFound
	NotAuthorized
	InvalidRequest
	MissingPin
	SslRequired
	InvalidLogType
	AclError
	MemoryError
	OperationTimedOut
	OperationFailed
	Invalid
)

var codeNames = [...]string{
	Success:           "SUCCESS",
	SessionEmpty:      "SESSION_EMPTY",
	ConnectionError:   "CONNECTION_ERROR",
	DeviceBusy:        "DEVICE_BUSY",
	HmacFailure:       "HMAC_FAILURE",
	DataError:         "DATA_ERROR",
	VersionMismatch:   "VERSION_MISMATCH",
	NotFound:          "NOT_FOUND",
	NotAuthorized:     "NOT_AUTHORIZED",
	InvalidRequest:    "INVALID_REQUEST",
	MissingPin:        "MISSING_PIN",
	SslRequired:       "SSL_REQUIRED",
	InvalidLogType:    "INVALID_LOG_TYPE",
	AclError:          "ACL_ERROR",
	MemoryError:       "MEMORY_ERROR",
	OperationTimedOut: "OPERATION_TIMED_OUT",
	OperationFailed:   "OPERATION_FAILED",
	Invalid:           "INVALID",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) || codeNames[c] == "" {
		return fmt.Sprintf("Code(%d)", int(c))
	}
	return codeNames[c]
}

// Status is the error type returned from every operation. A nil *Status
// (or Code == Success) means the operation completed without error.
type Status struct {
	Code    Code
	Message string
	// Err, if set, is the underlying cause (socket error, HMAC mismatch
	// detail, etc). It is not part of the wire protocol.
	Err error
}

func (s *Status) Error() string {
	if s == nil {
		return Success.String()
	}
	if s.Message != "" {
		return fmt.Sprintf("%s: %s", s.Code, s.Message)
	}
	if s.Err != nil {
		return fmt.Sprintf("%s: %v", s.Code, s.Err)
	}
	return s.Code.String()
}

func (s *Status) Unwrap() error {
	if s == nil {
		return nil
	}
	return s.Err
}

// Ok reports whether s represents a successful outcome.
func (s *Status) Ok() bool {
	return s == nil || s.Code == Success
}

func newStatus(code Code, msg string) *Status {
	if code == Success {
		return nil
	}
	return &Status{Code: code, Message: msg}
}

func wrapStatus(code Code, err error) *Status {
	if code == Success {
		return nil
	}
	return &Status{Code: code, Err: err}
}

// statusFromProtoCode maps the wire protocol's status code (as carried in
// the command envelope's status.code field) onto the local taxonomy.
// Unrecognized codes map to OperationFailed so callers always see a
// value from the closed set rather than a raw integer.
func statusFromProtoCode(code int32, message string) *Status {
	c, ok := wireStatusCodes[code]
	if !ok {
		c = OperationFailed
	}
	return newStatus(c, message)
}

// wireStatusCodes mirrors the subset of KineticProto_Status_StatusCode
// values this core distinguishes. The full enum is owned by the
// generated protobuf schema (an external collaborator); the core only
// needs to translate the handful of codes that change its behavior or
// are part of the documented taxonomy.
var wireStatusCodes = map[int32]Code{
	0:  Invalid,
	1:  Success,
	2:  SessionEmpty,
	3:  HmacFailure,
	4:  NotAuthorized,
	5:  VersionMismatch,
	6:  InvalidRequest,
	7:  OperationFailed,
	8:  OperationFailed,
	9:  NotFound,
	10: VersionMismatch,
	11: InvalidLogType,
	12: DataError,
	13: MemoryError,
	14: DeviceBusy,
	15: AclError,
	16: SslRequired,
	17: MissingPin,
}

package kinetic

import (
	"fmt"
	"os"
)

// Request is the builder's output: a populated Command ready for
// Session.submit, plus the metadata the controller needs that doesn't
// belong on the wire (whether this is an admin operation requiring
// TLS, whether a value segment should be sent or expected back, and an
// optional PIN auth override for pin-authenticated admin operations).
type Request struct {
	Command   *Command
	OutValue  []byte
	WantValue bool
	Admin     bool
	Pin       []byte // non-nil selects PIN auth instead of HMAC auth
}

// Builder populates Requests for each Kinetic operation kind. It holds
// no state of its own; the zero value is ready to use. A non-nil
// ACLLoader is required for SetACL.
type Builder struct {
	ACLLoader ACLLoader
}

func cmd(mt MessageType) *Command {
	return &Command{Header: CommandHeader{MessageType: mt}}
}

// Noop builds a NOOP, used to check connectivity without touching data.
func (Builder) Noop() *Request {
	return &Request{Command: cmd(NOOP)}
}

// Put builds a PUT. If force is true the drive overwrites regardless of
// dbVersion; otherwise a dbVersion mismatch resolves VersionMismatch.
func (Builder) Put(key, value, dbVersion, newVersion, tag []byte, force bool, sync Synchronization) *Request {
	kv := &KeyValue{
		Key:             key,
		NewVersion:      newVersion,
		Tag:             tag,
		Synchronization: sync,
		Force:           force,
	}
	if !force {
		kv.DbVersion = dbVersion
	}
	c := cmd(PUT)
	c.Body.KeyValue = kv
	return &Request{Command: c, OutValue: value}
}

// Get builds a GET. When metadataOnly is true the drive must return an
// empty value segment and the caller must not allocate a receive
// buffer, so WantValue is false in that case.
func (Builder) Get(key []byte, metadataOnly bool) *Request {
	c := cmd(GET)
	c.Body.KeyValue = &KeyValue{Key: key, MetadataOnly: metadataOnly}
	return &Request{Command: c, WantValue: !metadataOnly}
}

// Delete builds a DELETE.
func (Builder) Delete(key, dbVersion []byte, force bool, sync Synchronization) *Request {
	kv := &KeyValue{Key: key, Force: force, Synchronization: sync}
	if !force {
		kv.DbVersion = dbVersion
	}
	c := cmd(DELETE)
	c.Body.KeyValue = kv
	return &Request{Command: c}
}

// GetKeyRange builds a GETKEYRANGE, listing up to maxReturned keys
// between startKey and endKey.
func (Builder) GetKeyRange(startKey, endKey []byte, startInclusive, endInclusive bool, maxReturned int32, reverse bool) *Request {
	c := cmd(GETKEYRANGE)
	c.Body.Range = &KeyRange{
		StartKey:          startKey,
		EndKey:            endKey,
		StartKeyInclusive: startInclusive,
		EndKeyInclusive:   endInclusive,
		MaxReturned:       maxReturned,
		Reverse:           reverse,
	}
	return &Request{Command: c}
}

// GetLog requests one or more log types from the drive.
func (Builder) GetLog(types []int32, device string) *Request {
	c := cmd(GETLOG)
	c.Body.GetLog = &GetLog{Types: types, Device: device}
	return &Request{Command: c, Admin: true}
}

// Erase builds an admin erase request. secure selects SECURE_ERASE over
// INSTANT_ERASE.
func (Builder) Erase(secure bool, pin []byte) *Request {
	t := PinOpInstantErase
	if secure {
		t = PinOpSecureErase
	}
	c := cmd(SETUP)
	c.Body.Setup = &Setup{PinOp: &PinOp{Type: t, Pin: pin}}
	return &Request{Command: c, Admin: true, Pin: pin}
}

// Lock or unlock the drive for data access.
func (Builder) LockUnlock(lock bool, pin []byte) *Request {
	t := PinOpUnlock
	if lock {
		t = PinOpLock
	}
	c := cmd(PINOP)
	c.Body.Setup = &Setup{PinOp: &PinOp{Type: t, Pin: pin}}
	return &Request{Command: c, Admin: true, Pin: pin}
}

// SetClusterVersion requests the drive adopt a new cluster version
// fencing token.
func (Builder) SetClusterVersion(newVersion int64) *Request {
	c := cmd(SETUP)
	c.Body.Setup = &Setup{NewClusterVersion: newVersion}
	return &Request{Command: c, Admin: true}
}

// SetPin changes the drive's lock or erase PIN. oldPin/newPin may each
// be nil, but a non-nil zero-length pin is treated as inconsistent and
// rejected locally with MissingPin before anything is sent.
func (Builder) SetPin(lockPin bool, oldPin, newPin []byte) (*Request, *Status) {
	if pinInconsistent(oldPin) || pinInconsistent(newPin) {
		return nil, newStatus(MissingPin, "inconsistent pin pointer/length")
	}
	sec := &Security{}
	if lockPin {
		sec.OldLockPin, sec.NewLockPin = oldPin, newPin
	} else {
		sec.OldErasePin, sec.NewErasePin = oldPin, newPin
	}
	c := cmd(SECURITY)
	c.Body.Security = sec
	return &Request{Command: c, Admin: true}, nil
}

// pinInconsistent reports whether pin's presence is ambiguous: the spec
// requires empty <-> nil, so a non-nil zero-length slice is rejected
// defensively even though Go can't distinguish it from nil at the call
// site in most cases.
func pinInconsistent(pin []byte) bool {
	return pin != nil && len(pin) == 0
}

// SetACL loads ACL entries from path via b.ACLLoader and builds a
// SECURITY command installing them. Loader failure is reported as
// AclError; the core owns the loaded entries and releases them once
// the operation resolves (no reference is retained beyond the
// Request).
func (b Builder) SetACL(path string) (*Request, *Status) {
	if b.ACLLoader == nil {
		return nil, newStatus(AclError, "no ACL loader configured")
	}
	entries, err := b.ACLLoader.LoadACLs(path)
	if err != nil {
		return nil, wrapStatus(AclError, err)
	}
	c := cmd(SECURITY)
	c.Body.Security = &Security{ACL: entries}
	return &Request{Command: c, Admin: true}, nil
}

// FirmwareDownload reads path into memory and builds a SETUP command
// carrying it. File I/O failure is InvalidRequest.
func (Builder) FirmwareDownload(path string) (*Request, *Status) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newStatus(InvalidRequest, fmt.Sprintf("reading firmware file: %v", err))
	}
	c := cmd(SETUP)
	c.Body.Setup = &Setup{FirmwareDownload: true, Firmware: data}
	return &Request{Command: c, Admin: true}, nil
}

package kinetic

import (
	"net"
	"sync"
)

// fakeDrive is a minimal Kinetic drive stand-in used by the session
// tests: it accepts a TCP connection, emits the unsolicited first
// message, then answers NOOP/PUT/GET/DELETE requests against an
// in-memory key store. It is grounded on the same accept-loop /
// framed-read-loop shape the teacher's conn.go and server.go use for
// their own test fixtures, adapted to Kinetic's header+HMAC framing
// instead of TACACS+'s obfuscated body.
type fakeDrive struct {
	ln             net.Listener
	key            []byte
	connID         int64
	clusterVersion int64
	codec          Codec

	mu    sync.Mutex
	store map[string]storedValue

	// stall, when true, makes the drive read and discard every
	// request without ever responding — used to exercise back-pressure
	// (S6) and operation timeouts (S7).
	stall bool
	// tamperHmac flips every bit of the first byte of each response's HMAC tag before
	// sending, simulating on-the-wire corruption (S5).
	tamperHmac bool
}

func (d *fakeDrive) setStall(v bool) {
	d.mu.Lock()
	d.stall = v
	d.mu.Unlock()
}

func (d *fakeDrive) setTamperHmac(v bool) {
	d.mu.Lock()
	d.tamperHmac = v
	d.mu.Unlock()
}

func (d *fakeDrive) isStalling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stall
}

func (d *fakeDrive) shouldTamper() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tamperHmac
}

type storedValue struct {
	value     []byte
	dbVersion []byte
	tag       []byte
}

func newFakeDrive(key []byte) (*fakeDrive, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	d := &fakeDrive{
		ln:             ln,
		key:            key,
		connID:         100,
		clusterVersion: 1,
		codec:          DefaultCodec{},
		store:          make(map[string]storedValue),
	}
	go d.serve()
	return d, nil
}

func (d *fakeDrive) close() { d.ln.Close() }

func (d *fakeDrive) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handleConn(conn)
	}
}

func (d *fakeDrive) handleConn(conn net.Conn) {
	defer conn.Close()

	first := &Command{Header: CommandHeader{
		MessageType:    STATUS,
		ConnectionID:   d.connID,
		ClusterVersion: d.clusterVersion,
	}}
	if err := d.send(conn, first, nil); err != nil {
		return
	}

	for {
		msg, value, err := d.readFrame(conn)
		if err != nil {
			return
		}
		cmd, err := d.codec.DecodeCommand(msg.CommandBytes)
		if err != nil {
			return
		}
		if d.isStalling() {
			continue
		}
		respCmd, respVal := d.handleCommand(cmd, value)
		respCmd.Header.AckSequence = cmd.Header.Sequence
		respCmd.Header.ConnectionID = d.connID
		respCmd.Header.ClusterVersion = d.clusterVersion
		if err := d.send(conn, respCmd, respVal); err != nil {
			return
		}
	}
}

func (d *fakeDrive) readFrame(conn net.Conn) (*Message, []byte, error) {
	var hdr [headerLen]byte
	if err := readExact(conn, hdr[:]); err != nil {
		return nil, nil, err
	}
	h, st := DecodeHeader(hdr[:], FrameLimits{})
	if st != nil {
		return nil, nil, st
	}
	cmdBuf := make([]byte, h.CommandLength)
	if len(cmdBuf) > 0 {
		if err := readExact(conn, cmdBuf); err != nil {
			return nil, nil, err
		}
	}
	msg, err := d.codec.DecodeMessage(cmdBuf)
	if err != nil {
		return nil, nil, err
	}
	var value []byte
	if h.ValueLength > 0 {
		value = make([]byte, h.ValueLength)
		if err := readExact(conn, value); err != nil {
			return nil, nil, err
		}
	}
	return msg, value, nil
}

func (d *fakeDrive) send(conn net.Conn, cmd *Command, value []byte) error {
	cmdBytes, err := d.codec.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	auth := Auth{Hmac: hmacCompute(d.key, cmdBytes)}
	if d.shouldTamper() {
		auth.Hmac[0] ^= 0xff
	}
	msg := &Message{CommandBytes: cmdBytes, Auth: auth}
	msgBytes, err := d.codec.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return writeAll(conn, EncodeFrame(nil, msgBytes, value))
}

// statusCode values mirror the wireStatusCodes table in status.go.
const (
	wireSuccess         int32 = 1
	wireVersionMismatch int32 = 5
	wireNotFound        int32 = 9
)

func (d *fakeDrive) handleCommand(cmd *Command, value []byte) (*Command, []byte) {
	switch cmd.Header.MessageType {
	case NOOP:
		return &Command{Header: CommandHeader{MessageType: NOOP_RESPONSE}, Status: CommandStatus{Code: wireSuccess}}, nil

	case PUT:
		kv := cmd.Body.KeyValue
		d.mu.Lock()
		existing, exists := d.store[string(kv.Key)]
		d.mu.Unlock()
		if !kv.Force {
			if exists && string(existing.dbVersion) != string(kv.DbVersion) {
				return &Command{Header: CommandHeader{MessageType: PUT_RESPONSE}, Status: CommandStatus{Code: wireVersionMismatch}}, nil
			}
			if !exists && len(kv.DbVersion) != 0 {
				return &Command{Header: CommandHeader{MessageType: PUT_RESPONSE}, Status: CommandStatus{Code: wireVersionMismatch}}, nil
			}
		}
		d.mu.Lock()
		d.store[string(kv.Key)] = storedValue{value: value, dbVersion: kv.NewVersion, tag: kv.Tag}
		d.mu.Unlock()
		return &Command{Header: CommandHeader{MessageType: PUT_RESPONSE}, Status: CommandStatus{Code: wireSuccess}}, nil

	case GET:
		kv := cmd.Body.KeyValue
		d.mu.Lock()
		sv, exists := d.store[string(kv.Key)]
		d.mu.Unlock()
		if !exists {
			return &Command{Header: CommandHeader{MessageType: GET_RESPONSE}, Status: CommandStatus{Code: wireNotFound}}, nil
		}
		resp := &Command{
			Header: CommandHeader{MessageType: GET_RESPONSE},
			Status: CommandStatus{Code: wireSuccess},
			Body:   Body{KeyValue: &KeyValue{Key: kv.Key, DbVersion: sv.dbVersion, Tag: sv.tag}},
		}
		if kv.MetadataOnly {
			return resp, nil
		}
		return resp, sv.value

	case DELETE:
		kv := cmd.Body.KeyValue
		d.mu.Lock()
		delete(d.store, string(kv.Key))
		d.mu.Unlock()
		return &Command{Header: CommandHeader{MessageType: DELETE_RESPONSE}, Status: CommandStatus{Code: wireSuccess}}, nil

	default:
		return &Command{Header: CommandHeader{MessageType: cmd.Header.MessageType + 1}, Status: CommandStatus{Code: wireSuccess}}, nil
	}
}

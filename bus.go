package kinetic

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// bus owns the single TCP (or TLS) socket for a session after connect
// succeeds. Each frame's three segments go out in a single write, and
// writes are serialized by the session's send lock, which every caller
// of writeFrame holds; it runs one dedicated receive task that reads
// frames and dispatches them to the registry by ackSequence.
//
// Per the design note on cyclic references, bus holds only a
// non-owning back-reference to its Session; the Session owns the bus,
// not the other way round.
type bus struct {
	session *Session
	conn    net.Conn
	codec   Codec
	log     *logrus.Entry

	closeOnce sync.Once
	doneCh    chan struct{}
}

func newBus(s *Session, conn net.Conn) *bus {
	return &bus{
		session: s,
		conn:    conn,
		codec:   s.codec,
		log:     s.log,
		doneCh:  make(chan struct{}),
	}
}

// start launches the receive task. Must be called once, after the bus
// is registered on the session.
func (b *bus) start() {
	go b.receiveLoop()
}

// writeFrame serializes cmd, computes its HMAC (or attaches a PIN auth),
// and writes header||commandBytes||value as one contiguous write.
//
// The caller (Session.submit) must already hold the session's send
// lock: spec.md §5 requires the three frame segments, the sequence
// assignment, and the registry insert to all happen inside the same
// critical section so wire order matches sequence-assignment order.
// bus itself holds no write lock of its own.
func (b *bus) writeFrame(cmd *Command, auth Auth, value []byte) *Status {
	commandBytes, err := b.codec.EncodeCommand(cmd)
	if err != nil {
		return wrapStatus(InvalidRequest, err)
	}
	if !auth.usesPin() {
		auth.Hmac = hmacCompute(b.session.config.HmacKey, commandBytes)
	}
	msg := &Message{CommandBytes: commandBytes, Auth: auth}
	msgBytes, err := b.codec.EncodeMessage(msg)
	if err != nil {
		return wrapStatus(InvalidRequest, err)
	}

	frame := EncodeFrame(make([]byte, 0, headerLen+len(msgBytes)+len(value)), msgBytes, value)

	if err := writeAll(b.conn, frame); err != nil {
		st := wrapStatus(ConnectionError, err)
		b.fail(st)
		return st
	}
	b.session.metrics.framesSent.Inc()
	return nil
}

// readFrame reads one complete frame: header, message bytes, then the
// value segment (allocated exactly to the header's value length).
func (b *bus) readFrame() (*Message, []byte, *Status) {
	var hdrBuf [headerLen]byte
	if err := readExact(b.conn, hdrBuf[:]); err != nil {
		return nil, nil, wrapStatus(ConnectionError, err)
	}
	h, st := DecodeHeader(hdrBuf[:], b.session.config.FrameLimits)
	if st != nil {
		return nil, nil, st
	}
	cmdBuf := make([]byte, h.CommandLength)
	if h.CommandLength > 0 {
		if err := readExact(b.conn, cmdBuf); err != nil {
			return nil, nil, wrapStatus(ConnectionError, err)
		}
	}
	msg, err := b.codec.DecodeMessage(cmdBuf)
	if err != nil {
		return nil, nil, newStatus(DataError, err.Error())
	}
	var value []byte
	if h.ValueLength > 0 {
		value = make([]byte, h.ValueLength)
		if err := readExact(b.conn, value); err != nil {
			return nil, nil, wrapStatus(ConnectionError, err)
		}
	}
	b.session.metrics.framesReceived.Inc()
	return msg, value, nil
}

// receiveLoop reads one frame at a time for the lifetime of the
// connection. On any I/O or framing error it fails the session and
// every registered operation, then exits.
func (b *bus) receiveLoop() {
	for {
		msg, value, st := b.readFrame()
		if st != nil {
			b.fail(st)
			return
		}
		b.dispatch(msg, value)

		select {
		case <-b.doneCh:
			return
		default:
		}
	}
}

// dispatch validates HMAC, decodes the inner command, and either
// resolves the matching pending operation or (for the drive's
// unsolicited first message) signals the connection-ready waiter.
func (b *bus) dispatch(msg *Message, value []byte) {
	if !msg.Auth.usesPin() {
		if !hmacValidate(b.session.config.HmacKey, msg.CommandBytes, msg.Auth.Hmac) {
			b.session.metrics.hmacFailures.Inc()
			// HMAC failure fails the one operation it belongs to, not
			// the session: we still need the (unauthenticated) header
			// to find which operation that is.
			cmd, err := b.codec.DecodeCommand(msg.CommandBytes)
			if err != nil {
				b.log.WithError(err).Warn("kinetic: undecodable command with bad hmac, dropping")
				return
			}
			b.resolveBySequence(cmd.Header.AckSequence, &Result{Status: newStatus(HmacFailure, "hmac validation failed")})
			return
		}
	}

	cmd, err := b.codec.DecodeCommand(msg.CommandBytes)
	if err != nil {
		b.log.WithError(err).Warn("kinetic: failed to decode command")
		return
	}

	if cmd.Header.MessageType == STATUS {
		b.handleFirstMessage(cmd)
		return
	}

	status := statusFromProtoCode(cmd.Status.Code, cmd.Status.Message)
	b.resolveBySequence(cmd.Header.AckSequence, &Result{Status: status, Command: cmd, Value: value})
}

// handleFirstMessage records the drive-assigned connection ID and
// cluster version and signals readiness (§4.4).
func (b *bus) handleFirstMessage(cmd *Command) {
	b.session.setConnectionID(cmd.Header.ConnectionID)
	if cmd.Header.ClusterVersion != 0 {
		b.session.setClusterVersion(cmd.Header.ClusterVersion)
	}
	b.session.ready.signal()
	b.log.WithField("connectionID", cmd.Header.ConnectionID).Debug("kinetic: connection ready")
}

func (b *bus) resolveBySequence(seq int64, res *Result) {
	op, ok := b.session.registry.lookupAndRemove(seq)
	if !ok {
		b.log.WithField("sequence", seq).Debug("kinetic: response for unknown or expired sequence, dropping")
		return
	}
	if !op.wantValue {
		// A metadata-only GET (or any other operation that never asked
		// for a value segment) must not hand one back to the caller,
		// even if the drive sent bytes anyway (spec.md §4.6).
		res.Value = nil
	}
	op.resolve(res)
}

// fail tears the connection down: every outstanding operation resolves
// with status, and no further submissions are accepted.
func (b *bus) fail(status *Status) {
	b.closeOnce.Do(func() {
		close(b.doneCh)
		b.conn.Close()
		b.session.onBusFailure(status)
	})
}

// close is the graceful counterpart to fail, used by session teardown.
func (b *bus) close() {
	b.closeOnce.Do(func() {
		close(b.doneCh)
		b.conn.Close()
	})
}

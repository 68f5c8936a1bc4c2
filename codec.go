package kinetic

// DefaultCodec is a self-contained, dependency-free binary encoding for
// Command and Message, used when no protobuf-backed Codec (the
// schema-driven encoder named as an external collaborator in spec.md
// §1) is supplied. It follows the manual length-prefixed packing style
// tacplus uses for its own wire types, generalized to Kinetic's nested,
// optional-field command shape.
type DefaultCodec struct{}

// wbuf is an append-only byte writer with length-prefixed primitives,
// mirroring the teacher's appendUint16 helper but for the wider field
// set Kinetic commands need.
type wbuf []byte

func (w *wbuf) byte(b byte) { *w = append(*w, b) }

func (w *wbuf) bool(b bool) {
	if b {
		w.byte(1)
	} else {
		w.byte(0)
	}
}

func (w *wbuf) int32(v int32) { w.uint32(uint32(v)) }

func (w *wbuf) uint32(v uint32) {
	*w = append(*w, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (w *wbuf) int64(v int64) { w.uint64(uint64(v)) }

func (w *wbuf) uint64(v uint64) {
	*w = append(*w, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (w *wbuf) bytes(b []byte) {
	w.uint32(uint32(len(b)))
	*w = append(*w, b...)
}

func (w *wbuf) str(s string) { w.bytes([]byte(s)) }

// rbuf is the corresponding reader, returning errTruncated instead of
// panicking on a short buffer.
type rbuf struct {
	b   []byte
	err error
}

func (r *rbuf) need(n int) bool {
	if r.err != nil || len(r.b) < n {
		if r.err == nil {
			r.err = errTruncated
		}
		return false
	}
	return true
}

func (r *rbuf) byteVal() byte {
	if !r.need(1) {
		return 0
	}
	c := r.b[0]
	r.b = r.b[1:]
	return c
}

func (r *rbuf) boolVal() bool { return r.byteVal() != 0 }

func (r *rbuf) uint32Val() uint32 {
	if !r.need(4) {
		return 0
	}
	v := uint32From(r.b[:4])
	r.b = r.b[4:]
	return v
}

func (r *rbuf) int32Val() int32 { return int32(r.uint32Val()) }

func (r *rbuf) uint64Val() uint64 {
	if !r.need(8) {
		return 0
	}
	v := uint64From(r.b[:8])
	r.b = r.b[8:]
	return v
}

func (r *rbuf) int64Val() int64 { return int64(r.uint64Val()) }

func (r *rbuf) bytesVal() []byte {
	n := int(r.uint32Val())
	if n == 0 {
		return nil
	}
	if !r.need(n) {
		return nil
	}
	b := append([]byte(nil), r.b[:n]...)
	r.b = r.b[n:]
	return b
}

func (r *rbuf) strVal() string { return string(r.bytesVal()) }

// bodyKind tags which Body variant follows, since only one is ever set.
type bodyKind byte

const (
	bodyNone bodyKind = iota
	bodyKeyValue
	bodyRange
	bodySetup
	bodySecurity
	bodyGetLog
)

func (c DefaultCodec) EncodeCommand(cmd *Command) ([]byte, error) {
	var w wbuf
	h := cmd.Header
	w.int64(h.ClusterVersion)
	w.int64(h.ConnectionID)
	w.int64(h.Sequence)
	w.int64(h.AckSequence)
	w.int32(int32(h.MessageType))
	w.int64(h.Timeout)
	w.bool(h.EarlyExit)
	w.int32(h.Priority)

	w.int32(cmd.Status.Code)
	w.str(cmd.Status.Message)
	w.str(cmd.Status.DetailedMessage)

	switch {
	case cmd.Body.KeyValue != nil:
		w.byte(byte(bodyKeyValue))
		kv := cmd.Body.KeyValue
		w.bytes(kv.Key)
		w.bytes(kv.DbVersion)
		w.bytes(kv.NewVersion)
		w.bytes(kv.Tag)
		w.int32(kv.Algorithm)
		w.int32(int32(kv.Synchronization))
		w.bool(kv.Force)
		w.bool(kv.MetadataOnly)
	case cmd.Body.Range != nil:
		w.byte(byte(bodyRange))
		rg := cmd.Body.Range
		w.bytes(rg.StartKey)
		w.bytes(rg.EndKey)
		w.bool(rg.StartKeyInclusive)
		w.bool(rg.EndKeyInclusive)
		w.int32(rg.MaxReturned)
		w.bool(rg.Reverse)
		w.uint32(uint32(len(rg.Keys)))
		for _, k := range rg.Keys {
			w.bytes(k)
		}
	case cmd.Body.Setup != nil:
		w.byte(byte(bodySetup))
		s := cmd.Body.Setup
		w.int64(s.NewClusterVersion)
		w.bool(s.FirmwareDownload)
		w.bytes(s.Firmware)
		w.bool(s.PinOp != nil)
		if s.PinOp != nil {
			w.int32(int32(s.PinOp.Type))
			w.bytes(s.PinOp.Pin)
		}
	case cmd.Body.Security != nil:
		w.byte(byte(bodySecurity))
		sec := cmd.Body.Security
		w.uint32(uint32(len(sec.ACL)))
		for _, e := range sec.ACL {
			w.int64(e.Identity)
			w.bytes(e.Key)
			w.int32(e.HmacAlgorithm)
			w.uint32(uint32(len(e.Scopes)))
			for _, sc := range e.Scopes {
				w.int32(sc.Permission)
				w.bool(sc.TlsRequired)
				w.bytes(sc.KeyPrefix)
			}
		}
		w.bytes(sec.OldLockPin)
		w.bytes(sec.NewLockPin)
		w.bytes(sec.OldErasePin)
		w.bytes(sec.NewErasePin)
	case cmd.Body.GetLog != nil:
		w.byte(byte(bodyGetLog))
		gl := cmd.Body.GetLog
		w.uint32(uint32(len(gl.Types)))
		for _, t := range gl.Types {
			w.int32(t)
		}
		w.str(gl.Device)
		w.bytes(gl.Content)
	default:
		w.byte(byte(bodyNone))
	}
	return []byte(w), nil
}

func (c DefaultCodec) DecodeCommand(data []byte) (*Command, error) {
	r := rbuf{b: data}
	cmd := &Command{}
	h := &cmd.Header
	h.ClusterVersion = r.int64Val()
	h.ConnectionID = r.int64Val()
	h.Sequence = r.int64Val()
	h.AckSequence = r.int64Val()
	h.MessageType = MessageType(r.int32Val())
	h.Timeout = r.int64Val()
	h.EarlyExit = r.boolVal()
	h.Priority = r.int32Val()

	cmd.Status.Code = r.int32Val()
	cmd.Status.Message = r.strVal()
	cmd.Status.DetailedMessage = r.strVal()

	switch bodyKind(r.byteVal()) {
	case bodyKeyValue:
		kv := &KeyValue{}
		kv.Key = r.bytesVal()
		kv.DbVersion = r.bytesVal()
		kv.NewVersion = r.bytesVal()
		kv.Tag = r.bytesVal()
		kv.Algorithm = r.int32Val()
		kv.Synchronization = Synchronization(r.int32Val())
		kv.Force = r.boolVal()
		kv.MetadataOnly = r.boolVal()
		cmd.Body.KeyValue = kv
	case bodyRange:
		rg := &KeyRange{}
		rg.StartKey = r.bytesVal()
		rg.EndKey = r.bytesVal()
		rg.StartKeyInclusive = r.boolVal()
		rg.EndKeyInclusive = r.boolVal()
		rg.MaxReturned = r.int32Val()
		rg.Reverse = r.boolVal()
		n := int(r.uint32Val())
		rg.Keys = make([][]byte, n)
		for i := range rg.Keys {
			rg.Keys[i] = r.bytesVal()
		}
		cmd.Body.Range = rg
	case bodySetup:
		s := &Setup{}
		s.NewClusterVersion = r.int64Val()
		s.FirmwareDownload = r.boolVal()
		s.Firmware = r.bytesVal()
		if r.boolVal() {
			s.PinOp = &PinOp{Type: PinOpType(r.int32Val()), Pin: r.bytesVal()}
		}
		cmd.Body.Setup = s
	case bodySecurity:
		sec := &Security{}
		n := int(r.uint32Val())
		sec.ACL = make([]ACLEntry, n)
		for i := range sec.ACL {
			e := &sec.ACL[i]
			e.Identity = r.int64Val()
			e.Key = r.bytesVal()
			e.HmacAlgorithm = r.int32Val()
			ns := int(r.uint32Val())
			e.Scopes = make([]ACLScope, ns)
			for j := range e.Scopes {
				e.Scopes[j].Permission = r.int32Val()
				e.Scopes[j].TlsRequired = r.boolVal()
				e.Scopes[j].KeyPrefix = r.bytesVal()
			}
		}
		sec.OldLockPin = r.bytesVal()
		sec.NewLockPin = r.bytesVal()
		sec.OldErasePin = r.bytesVal()
		sec.NewErasePin = r.bytesVal()
		cmd.Body.Security = sec
	case bodyGetLog:
		gl := &GetLog{}
		n := int(r.uint32Val())
		gl.Types = make([]int32, n)
		for i := range gl.Types {
			gl.Types[i] = r.int32Val()
		}
		gl.Device = r.strVal()
		gl.Content = r.bytesVal()
		cmd.Body.GetLog = gl
	}
	if r.err != nil {
		return nil, r.err
	}
	return cmd, nil
}

func (c DefaultCodec) EncodeMessage(msg *Message) ([]byte, error) {
	var w wbuf
	w.int64(msg.Auth.Identity)
	w.bytes(msg.Auth.Hmac)
	w.bytes(msg.Auth.Pin)
	w.bytes(msg.CommandBytes)
	return []byte(w), nil
}

func (c DefaultCodec) DecodeMessage(data []byte) (*Message, error) {
	r := rbuf{b: data}
	msg := &Message{}
	msg.Auth.Identity = r.int64Val()
	msg.Auth.Hmac = r.bytesVal()
	msg.Auth.Pin = r.bytesVal()
	msg.CommandBytes = r.bytesVal()
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

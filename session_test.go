package kinetic

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testKey = []byte("integration-test-shared-secret")

func newTestSession(t *testing.T, d *fakeDrive, mutate func(*Config)) *Session {
	t.Helper()
	host, portStr, err := net.SplitHostPort(d.ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := Config{
		Host:     host,
		Port:     port,
		Identity: 1,
		HmacKey:  append([]byte(nil), testKey...),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSession(cfg)
	require.NoError(t, err)
	return s
}

func mustConnect(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st := s.Connect(ctx)
	require.True(t, st.Ok(), "Connect failed: %v", st)
}

// S1: a Noop against a healthy drive resolves Success, and the registry
// is empty afterward.
func TestSessionNoop(t *testing.T) {
	d, err := newFakeDrive(testKey)
	require.NoError(t, err)
	defer d.close()

	s := newTestSession(t, d, nil)
	mustConnect(t, s)
	defer s.Destroy(context.Background())

	b := Builder{}
	res := s.Execute(context.Background(), b.Noop(), time.Second)
	require.True(t, res.Status.Ok(), "status: %v", res.Status)
	require.Equal(t, 0, s.registry.size())
}

// S2: a PUT followed by a GET round-trips the value, including a
// metadata-only GET that must not surface a value even though the fake
// drive never sends one for it either.
func TestSessionPutGetRoundTrip(t *testing.T) {
	d, err := newFakeDrive(testKey)
	require.NoError(t, err)
	defer d.close()

	s := newTestSession(t, d, nil)
	mustConnect(t, s)
	defer s.Destroy(context.Background())

	b := Builder{}
	key := []byte("object-1")
	value := []byte("object-1-payload")

	putRes := s.Execute(context.Background(), b.Put(key, value, nil, []byte("v1"), []byte("tag1"), true, SyncWriteThrough), time.Second)
	require.True(t, putRes.Status.Ok(), "put status: %v", putRes.Status)

	getRes := s.Execute(context.Background(), b.Get(key, false), time.Second)
	require.True(t, getRes.Status.Ok(), "get status: %v", getRes.Status)
	require.Equal(t, value, getRes.Value)
	require.Equal(t, []byte("v1"), getRes.Command.Body.KeyValue.DbVersion)

	metaRes := s.Execute(context.Background(), b.Get(key, true), time.Second)
	require.True(t, metaRes.Status.Ok(), "metadata get status: %v", metaRes.Status)
	require.Nil(t, metaRes.Value)
}

// S3: a non-force PUT against an existing, different dbVersion resolves
// VersionMismatch and leaves no trace in the registry.
func TestSessionPutVersionMismatch(t *testing.T) {
	d, err := newFakeDrive(testKey)
	require.NoError(t, err)
	defer d.close()

	s := newTestSession(t, d, nil)
	mustConnect(t, s)
	defer s.Destroy(context.Background())

	b := Builder{}
	key := []byte("object-2")

	first := s.Execute(context.Background(), b.Put(key, []byte("v0-data"), nil, []byte("v0"), nil, true, SyncWriteThrough), time.Second)
	require.True(t, first.Status.Ok())

	second := s.Execute(context.Background(), b.Put(key, []byte("v1-data"), []byte("wrong-version"), []byte("v1"), nil, false, SyncWriteThrough), time.Second)
	require.Equal(t, VersionMismatch, second.Status.Code)
	require.Equal(t, 0, s.registry.size())
}

// S4: a metadata-only GET of a missing key resolves NotFound.
func TestSessionGetNotFound(t *testing.T) {
	d, err := newFakeDrive(testKey)
	require.NoError(t, err)
	defer d.close()

	s := newTestSession(t, d, nil)
	mustConnect(t, s)
	defer s.Destroy(context.Background())

	b := Builder{}
	res := s.Execute(context.Background(), b.Get([]byte("does-not-exist"), true), time.Second)
	require.Equal(t, NotFound, res.Status.Code)
}

// S5: a tampered response HMAC resolves that operation with HmacFailure
// without taking down the session — a subsequent operation on the same
// session still succeeds.
func TestSessionHmacTamper(t *testing.T) {
	d, err := newFakeDrive(testKey)
	require.NoError(t, err)
	defer d.close()

	s := newTestSession(t, d, nil)
	mustConnect(t, s)
	defer s.Destroy(context.Background())

	d.setTamperHmac(true)
	b := Builder{}
	res := s.Execute(context.Background(), b.Noop(), time.Second)
	require.Equal(t, HmacFailure, res.Status.Code)

	d.setTamperHmac(false)
	res2 := s.Execute(context.Background(), b.Noop(), time.Second)
	require.True(t, res2.Status.Ok(), "session should still be usable: %v", res2.Status)
}

// S6/S7: against a drive that never answers, a single-slot registry
// back-pressures a second submission until the first operation's own
// timeout frees its permit, and the timed-out operation itself resolves
// OperationTimedOut with its permit released.
func TestSessionBackpressureAndTimeout(t *testing.T) {
	d, err := newFakeDrive(testKey)
	require.NoError(t, err)
	defer d.close()
	d.setStall(true)

	s := newTestSession(t, d, func(c *Config) {
		c.MaxOutstanding = 1
		c.OperationTimeout = 150 * time.Millisecond
	})
	mustConnect(t, s)
	defer s.Destroy(context.Background())

	b := Builder{}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res := s.Execute(context.Background(), b.Noop(), 0)
		require.Equal(t, OperationTimedOut, res.Status.Code)
	}()

	// give the first op time to claim the registry's single permit.
	time.Sleep(30 * time.Millisecond)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res := s.Execute(ctx, b.Noop(), 0)
	elapsed := time.Since(start)

	require.Equal(t, OperationTimedOut, res.Status.Code)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "second submission should have blocked on the first op's permit")

	wg.Wait()
	require.Eventually(t, func() bool { return s.registry.size() == 0 }, time.Second, 10*time.Millisecond)
}

// An admin operation against a non-SSL session is rejected locally with
// SslRequired and never touches the socket — it does not even require a
// connected session.
func TestSessionAdminRequiresSSL(t *testing.T) {
	s, err := NewSession(Config{
		Host:     "127.0.0.1",
		Port:     1,
		Identity: 1,
		HmacKey:  []byte("k"),
		UseSSL:   false,
	})
	require.NoError(t, err)

	b := Builder{}
	res := s.Execute(context.Background(), b.Erase(true, nil), time.Second)
	require.Equal(t, SslRequired, res.Status.Code)
}

// SetPin rejects an inconsistent pin locally, before building a Request.
func TestBuilderSetPinInconsistent(t *testing.T) {
	b := Builder{}
	_, st := b.SetPin(true, []byte{}, nil)
	require.Equal(t, MissingPin, st.Code)
}

package store

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/walletauth/core"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, ContextTimeoutEnabled: true})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func fastOptions() Options {
	return Options{
		TTL:             time.Minute,
		ConnectAttempts: 3,
		BackoffStep:     time.Millisecond,
		BackoffMax:      5 * time.Millisecond,
	}
}

func TestRedisStore(t *testing.T) {
	mr, rs := newMiniRedis(t)
	ctx := context.Background()

	session := core.Session{ID: "abc", Nonce: "0x01"}
	require.NoError(t, rs.Set(ctx, session, time.Minute))

	assert.True(t, mr.Exists("session:abc"))
	assert.Equal(t, time.Minute, mr.TTL("session:abc"))

	got, found, err := rs.Get(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, session, got)

	_, found, err = rs.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	exists, err := rs.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, rs.Set(ctx, core.Session{ID: "def", Nonce: "0x02"}, time.Minute))
	keys, err := rs.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"abc", "def"}, keys)

	require.NoError(t, rs.Delete(ctx, "abc"))
	exists, err = rs.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, exists)

	mr.FastForward(2 * time.Minute)
	_, found, err = rs.Get(ctx, "def")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore(t *testing.T) {
	ms := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, ms.Set(ctx, core.Session{ID: "a", Nonce: "1"}, 0))
	require.NoError(t, ms.Set(ctx, core.Session{ID: "b", Nonce: "2"}, 20*time.Millisecond))

	got, found, err := ms.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", got.Nonce)

	keys, err := ms.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	time.Sleep(40 * time.Millisecond)
	exists, err := ms.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, exists, "expired session must look absent")
	keys, err = ms.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)

	require.NoError(t, ms.Delete(ctx, "a"))
	_, found, err = ms.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, ms.Set(ctx, core.Session{ID: "c"}, 0))
	ms.Clear()
	keys, _ = ms.Keys(ctx)
	assert.Empty(t, keys)
}

func TestFailoverStoreUsesPrimary(t *testing.T) {
	mr, rs := newMiniRedis(t)
	ctx := context.Background()
	secondary := NewMemoryStore(0)

	fs := NewFailoverStore(ctx, rs, secondary, fastOptions(), nil)
	require.True(t, fs.UsingPrimary())
	assert.Equal(t, BackendPrimary, fs.Backend())

	require.NoError(t, fs.Set(ctx, core.Session{ID: "s1", Nonce: "n1"}))
	assert.True(t, mr.Exists("session:s1"))
	_, found, _ := secondary.Get(ctx, "s1")
	assert.False(t, found)

	got, err := fs.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "n1", got.Nonce)

	_, err = fs.Get(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.True(t, fs.UsingPrimary(), "a missing key is not a backend failure")

	size, err := fs.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	has, err := fs.Has(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, fs.Delete(ctx, "s1"))
	has, err = fs.Has(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFailoverStoreFallsBackWhenPrimaryUnreachable(t *testing.T) {
	mr, rs := newMiniRedis(t)
	mr.Close()

	fs := NewFailoverStore(context.Background(), rs, NewMemoryStore(0), fastOptions(), nil)
	assert.False(t, fs.UsingPrimary())

	ctx := context.Background()
	require.NoError(t, fs.Set(ctx, core.Session{ID: "s1", Nonce: "n1"}))
	got, err := fs.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "n1", got.Nonce)

	assert.NoError(t, fs.Close())
}

func TestFailoverStoreWithoutPrimary(t *testing.T) {
	fs := NewFailoverStore(context.Background(), nil, NewMemoryStore(0), fastOptions(), nil)
	assert.False(t, fs.UsingPrimary())
	assert.NoError(t, fs.Close())
}

func TestFailoverStoreLatchIsOneWay(t *testing.T) {
	mr, rs := newMiniRedis(t)
	ctx := context.Background()
	fs := NewFailoverStore(ctx, rs, NewMemoryStore(0), fastOptions(), nil)
	require.True(t, fs.UsingPrimary())

	require.NoError(t, fs.Set(ctx, core.Session{ID: "before", Nonce: "n0"}))

	mr.SetError("LOADING server is loading")
	require.NoError(t, fs.Set(ctx, core.Session{ID: "during", Nonce: "n1"}), "failing write is retried on the secondary")
	assert.False(t, fs.UsingPrimary())

	mr.SetError("")
	require.NoError(t, fs.Set(ctx, core.Session{ID: "after", Nonce: "n2"}))
	assert.False(t, fs.UsingPrimary(), "a recovered primary is never promoted back")
	assert.False(t, mr.Exists("session:after"))

	got, err := fs.Get(ctx, "during")
	require.NoError(t, err)
	assert.Equal(t, "n1", got.Nonce)

	// Sessions written before the trip stay in redis but are no longer served
	assert.True(t, mr.Exists("session:before"))
	_, err = fs.Get(ctx, "before")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	has, err := fs.Has(ctx, "after")
	require.NoError(t, err)
	assert.True(t, has)

	keys, err := fs.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"after", "during"}, keys)

	require.NoError(t, fs.Delete(ctx, "during"))
	_, err = fs.Get(ctx, "during")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestFailoverStoreTripsOnReadError(t *testing.T) {
	mr, rs := newMiniRedis(t)
	ctx := context.Background()
	fs := NewFailoverStore(ctx, rs, NewMemoryStore(0), fastOptions(), nil)

	mr.SetError("ERR boom")
	has, err := fs.Has(ctx, "x")
	require.NoError(t, err)
	assert.False(t, has)
	assert.False(t, fs.UsingPrimary())
}

func TestFailoverStoreCallerTimeout(t *testing.T) {
	_, rs := newMiniRedis(t)
	fs := NewFailoverStore(context.Background(), rs, NewMemoryStore(0), fastOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fs.Get(ctx, "x")
	assert.ErrorIs(t, err, core.ErrStoreTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, fs.UsingPrimary(), "a caller timeout does not condemn the primary")
}

// stallingProxy forwards to a redis server until stalled, then swallows requests
type stallingProxy struct {
	ln      net.Listener
	target  string
	stalled atomic.Bool
}

func newStallingProxy(t *testing.T, target string) *stallingProxy {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &stallingProxy{ln: ln, target: target}
	t.Cleanup(func() { _ = ln.Close() })
	go p.serve()
	return p
}

func (p *stallingProxy) Addr() string { return p.ln.Addr().String() }

func (p *stallingProxy) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		go p.handle(conn)
	}
}

func (p *stallingProxy) handle(conn net.Conn) {
	defer conn.Close()
	upstream, err := net.Dial("tcp", p.target)
	if err != nil {
		return
	}
	defer upstream.Close()

	go func() { _, _ = io.Copy(conn, upstream) }()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if p.stalled.Load() {
			continue
		}
		if _, err := upstream.Write(buf[:n]); err != nil {
			return
		}
	}
}

func TestFailoverStoreHungPrimaryTripsWithinCallerDeadline(t *testing.T) {
	mr := miniredis.RunT(t)
	proxy := newStallingProxy(t, mr.Addr())

	opts, err := redis.ParseURL("redis://" + proxy.Addr())
	require.NoError(t, err)
	opts.ContextTimeoutEnabled = true
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	fs := NewFailoverStore(context.Background(), NewRedisStore(client), NewMemoryStore(0), fastOptions(), nil)
	require.True(t, fs.UsingPrimary())

	proxy.stalled.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = fs.Get(ctx, "x")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 200*time.Millisecond, "the call must finish inside the caller's deadline")
	assert.ErrorIs(t, err, core.ErrSessionNotFound, "the call is answered by the secondary")
	assert.False(t, fs.UsingPrimary())

	// Later calls go straight to the secondary
	ctx2, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel2()
	require.NoError(t, fs.Set(ctx2, core.Session{ID: "y", Nonce: "n"}))
	got, err := fs.Get(ctx2, "y")
	require.NoError(t, err)
	assert.Equal(t, "n", got.Nonce)
}

func TestFailoverStorePrimaryContextBudget(t *testing.T) {
	fs := NewFailoverStore(context.Background(), nil, NewMemoryStore(0), Options{PrimaryTimeout: time.Second}, nil)

	pctx, cancel := fs.primaryContext(context.Background())
	defer cancel()
	deadline, ok := pctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 100*time.Millisecond)

	caller, cancelCaller := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancelCaller()
	pctx, cancel = fs.primaryContext(caller)
	defer cancel()
	deadline, ok = pctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(200*time.Millisecond), deadline, 100*time.Millisecond)
}

type failingBackend struct{ Backend }

func (failingBackend) Set(context.Context, core.Session, time.Duration) error {
	return assert.AnError
}

func TestFailoverStoreBothBackendsFail(t *testing.T) {
	mr, rs := newMiniRedis(t)
	ctx := context.Background()
	fs := NewFailoverStore(ctx, rs, failingBackend{NewMemoryStore(0)}, fastOptions(), nil)

	mr.SetError("ERR boom")
	err := fs.Set(ctx, core.Session{ID: "x"})
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Equal(t, "StoreUnavailable", core.Code(err))
}

func TestBackendKindString(t *testing.T) {
	assert.Equal(t, "primary", BackendPrimary.String())
	assert.Equal(t, "secondary", BackendSecondary.String())
}

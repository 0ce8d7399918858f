package client

import (
	"context"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtype/pkg/protocol"
	"rtype/pkg/world"
)

var serverAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242}

// fakeConn records what the client writes. Reads time out until closed.
type fakeConn struct {
	mu     sync.Mutex
	sent   []protocol.Message
	closed bool
}

func (c *fakeConn) ReadFrom([]byte) (int, net.Addr, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, nil, net.ErrClosed
	}
	time.Sleep(time.Millisecond)
	return 0, nil, os.ErrDeadlineExceeded
}

func (c *fakeConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	msg, err := protocol.Decode(p)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	c.sent = append(c.sent, msg)
	return len(p), nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) LocalAddr() net.Addr             { return &net.UDPAddr{} }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.sent...)
}

func count[T protocol.Message](msgs []protocol.Message) int {
	n := 0
	for _, m := range msgs {
		if _, ok := m.(T); ok {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, opts Options) (*Client, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	c, err := New(conn, serverAddr, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, conn
}

func deliver(t *testing.T, c *Client, msg protocol.Message, now time.Time) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	c.handleDatagram(data, serverAddr, now)
}

// connected drives c through a connect handshake answered by accept.
func connected(t *testing.T, c *Client, accept protocol.ConnectAccept) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- c.Connect(ctx) }()
	require.Eventually(t, func() bool { return c.State() == StateConnecting }, time.Second, time.Millisecond)

	deliver(t, c, accept, time.Now())
	require.NoError(t, <-errc)
	require.Equal(t, StateConnected, c.State())
}

func snapshotAt(tick uint32, x float32) protocol.Snapshot {
	return protocol.Snapshot{Tick: tick, Entities: []protocol.EntityDescriptor{
		{ID: 0, Kind: protocol.KindPlayer, X: x, Y: 10, Health: 5},
	}}
}

func playerX(t *testing.T, c *Client) float32 {
	t.Helper()
	entities := c.Entities()
	require.Len(t, entities, 1)
	return entities[0].X
}

func TestSendRequiresConnection(t *testing.T) {
	c, conn := newTestClient(t, Options{})

	assert.Equal(t, StateDisconnected, c.State())
	assert.ErrorIs(t, c.Send(protocol.Heartbeat{}), ErrNotConnected)
	_, err := c.SendInput(protocol.InputFire)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, conn.messages())
}

func TestNameTooLong(t *testing.T) {
	_, err := New(&fakeConn{}, serverAddr, Options{Name: string(make([]byte, protocol.MaxNameLen+1))})
	assert.ErrorIs(t, err, protocol.ErrNameTooLong)
}

func TestConnectRetriesUntilAccepted(t *testing.T) {
	c, conn := newTestClient(t, Options{Name: "alice", ConnectRetry: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- c.Connect(ctx) }()

	require.Eventually(t, func() bool {
		return count[protocol.ConnectRequest](conn.messages()) >= 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, protocol.ConnectRequest{Name: "alice"}, conn.messages()[0])

	deliver(t, c, protocol.ConnectAccept{ClientID: 7, EntityID: 3}, time.Now())
	require.NoError(t, <-errc)

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, uint32(7), c.ClientID())
	id, ok := c.Entity()
	require.True(t, ok)
	assert.EqualValues(t, 3, id)

	assert.ErrorIs(t, c.Start(), ErrAlreadyStarted)
	assert.ErrorIs(t, c.Connect(ctx), ErrAlreadyStarted)
}

func TestConnectRefused(t *testing.T) {
	c, _ := newTestClient(t, Options{})

	errc := make(chan error, 1)
	go func() { errc <- c.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return c.State() == StateConnecting }, time.Second, time.Millisecond)

	deliver(t, c, protocol.Disconnect{Reason: protocol.ReasonServerFull}, time.Now())
	assert.ErrorIs(t, <-errc, ErrConnectRefused)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, protocol.ReasonServerFull, c.Reason())
}

func TestConnectCanceled(t *testing.T) {
	c, _ := newTestClient(t, Options{ConnectRetry: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx), context.DeadlineExceeded)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestInputSequenceIncreases(t *testing.T) {
	c, conn := newTestClient(t, Options{})
	connected(t, c, protocol.ConnectAccept{ClientID: 2, EntityID: 0})

	for i := 1; i <= 3; i++ {
		seq, err := c.SendInput(protocol.InputUp)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), seq)
	}

	var seqs []uint32
	for _, m := range conn.messages() {
		if in, ok := m.(protocol.Input); ok {
			assert.Equal(t, uint32(2), in.ClientID)
			seqs = append(seqs, in.Sequence)
		}
	}
	assert.Equal(t, []uint32{1, 2, 3}, seqs)
	assert.Equal(t, uint64(3), c.Stats().InputsSent)
}

func TestSnapshotLastWriterWinsByTick(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	connected(t, c, protocol.ConnectAccept{ClientID: 1, EntityID: 0})
	now := time.Now()

	for _, snap := range []protocol.Snapshot{snapshotAt(5, 50), snapshotAt(3, 30), snapshotAt(7, 70)} {
		deliver(t, c, snap, now)
	}
	changed, err := c.Update(now)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, float32(70), playerX(t, c))
	tick, ok := c.Tick()
	require.True(t, ok)
	assert.Equal(t, uint32(7), tick)
}

func TestSnapshotLastWriterWinsAcrossFrames(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	connected(t, c, protocol.ConnectAccept{ClientID: 1, EntityID: 0})
	now := time.Now()

	for _, snap := range []protocol.Snapshot{snapshotAt(5, 50), snapshotAt(3, 30), snapshotAt(7, 70)} {
		deliver(t, c, snap, now)
		_, err := c.Update(now)
		require.NoError(t, err)
	}

	assert.Equal(t, float32(70), playerX(t, c))
	assert.Equal(t, uint64(1), c.Stats().StaleSnapshots)

	// a duplicate of the applied tick changes nothing
	deliver(t, c, snapshotAt(7, 99), now)
	changed, err := c.Update(now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, float32(70), playerX(t, c))
}

func TestOwnEntityMarkedLocal(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	connected(t, c, protocol.ConnectAccept{ClientID: 1, EntityID: 1})
	now := time.Now()

	deliver(t, c, protocol.Snapshot{Tick: 1, Entities: []protocol.EntityDescriptor{
		{ID: 0, Kind: protocol.KindPlayer},
		{ID: 1, Kind: protocol.KindPlayer},
	}}, now)
	_, err := c.Update(now)
	require.NoError(t, err)

	entities := c.Entities()
	require.Len(t, entities, 2)
	assert.Zero(t, entities[0].Flags&protocol.StateLocal)
	assert.NotZero(t, entities[1].Flags&protocol.StateLocal)
}

func TestSnapshotRemovesVanishedEntities(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	connected(t, c, protocol.ConnectAccept{ClientID: 1, EntityID: 0})
	now := time.Now()

	deliver(t, c, protocol.Snapshot{Tick: 1, Entities: []protocol.EntityDescriptor{
		{ID: 0, Kind: protocol.KindPlayer},
		{ID: 4, Kind: protocol.KindEnemy},
	}}, now)
	_, err := c.Update(now)
	require.NoError(t, err)
	require.Len(t, c.Entities(), 2)

	deliver(t, c, snapshotAt(2, 1), now)
	_, err = c.Update(now)
	require.NoError(t, err)
	require.Len(t, c.Entities(), 1)
}

func TestSnapshotsIgnoredBeforeAccept(t *testing.T) {
	c, _ := newTestClient(t, Options{})

	deliver(t, c, snapshotAt(1, 10), time.Now())
	changed, err := c.Update(time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, c.Entities())
}

func TestServerTimeoutDisconnects(t *testing.T) {
	c, _ := newTestClient(t, Options{ServerTimeout: 100 * time.Millisecond})
	connected(t, c, protocol.ConnectAccept{ClientID: 1, EntityID: 0})

	_, err := c.Update(time.Now().Add(50 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, StateConnected, c.State())

	_, err = c.Update(time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrServerTimedOut)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, protocol.ReasonTimeout, c.Reason())
	assert.ErrorIs(t, c.Send(protocol.Heartbeat{}), ErrNotConnected)
}

func TestHeartbeatWhenIdle(t *testing.T) {
	c, conn := newTestClient(t, Options{ServerTimeout: time.Second, HeartbeatInterval: 200 * time.Millisecond})
	connected(t, c, protocol.ConnectAccept{ClientID: 1, EntityID: 0})

	_, err := c.Update(time.Now().Add(500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, count[protocol.Heartbeat](conn.messages()))

	// input traffic counts as a sign of life
	_, err = c.SendInput(0)
	require.NoError(t, err)
	_, err = c.Update(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count[protocol.Heartbeat](conn.messages()))
}

func TestMalformedAndForeignDatagramsDropped(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	connected(t, c, protocol.ConnectAccept{ClientID: 1, EntityID: 0})

	c.handleDatagram([]byte{0x04, 0x01}, serverAddr, time.Now())
	assert.Equal(t, uint64(1), c.Stats().Malformed)

	data, err := protocol.Encode(snapshotAt(9, 90))
	require.NoError(t, err)
	c.handleDatagram(data, &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4242}, time.Now())
	changed, err := c.Update(time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCloseSaysGoodbye(t *testing.T) {
	c, conn := newTestClient(t, Options{ReadTimeout: 10 * time.Millisecond})
	connected(t, c, protocol.ConnectAccept{ClientID: 1, EntityID: 0})

	require.NoError(t, c.Close())
	msgs := conn.messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, protocol.Disconnect{Reason: protocol.ReasonQuit}, msgs[len(msgs)-1])
	assert.Equal(t, StateDisconnected, c.State())

	conn.mu.Lock()
	assert.True(t, conn.closed)
	conn.mu.Unlock()
	require.NoError(t, c.Close())
}

func TestMirrorMatchesWorldDescriptors(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	connected(t, c, protocol.ConnectAccept{ClientID: 1, EntityID: 9})
	now := time.Now()

	src, err := world.New(16)
	require.NoError(t, err)
	id, err := src.Entities.Create()
	require.NoError(t, err)
	require.NoError(t, src.Kinds.Set(id, protocol.KindEnemy))
	require.NoError(t, src.Positions.Set(id, world.Position{X: 700, Y: 300}))
	require.NoError(t, src.Velocities.Set(id, world.Velocity{X: -80}))
	require.NoError(t, src.Healths.Set(id, world.Health{Current: 2, Max: 2}))

	deliver(t, c, protocol.Snapshot{Tick: 1, Entities: src.AppendDescriptors(nil, nil)}, now)
	_, err = c.Update(now)
	require.NoError(t, err)
	assert.Equal(t, src.AppendDescriptors(nil, nil), c.Entities())
}

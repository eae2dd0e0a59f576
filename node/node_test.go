package node

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"chainbook/api/grpcserver"
	"chainbook/config"
	"chainbook/domain/orderbook"
	"chainbook/infra/log"
	"chainbook/jobs/broadcaster"
)

type memSink struct {
	mtx  sync.Mutex
	keys []string
}

func (s *memSink) Send(_ context.Context, key, _ []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.keys = append(s.keys, string(key))
	return nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) sent() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]string(nil), s.keys...)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.TestConfig()
	cfg.SetRoot(t.TempDir())
	cfg.Storage.Ledger = config.LedgerPebble
	cfg.Storage.SyncWrites = false
	require.NoError(t, cfg.ValidateBasic())
	return cfg
}

func newNode(t *testing.T, cfg *config.Config, sink broadcaster.Sink) *Node {
	t.Helper()
	n, err := New(cfg, log.TestingLogger(), DefaultMetricsProvider(cfg.Instrumentation),
		func(*config.EventsConfig) (broadcaster.Sink, error) {
			if sink == nil {
				return nil, nil
			}
			return sink, nil
		})
	require.NoError(t, err)
	return n
}

func TestNodeRecoversAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	n := newNode(t, cfg, nil)
	m, err := n.Exchange().Market("XRD-USD")
	require.NoError(t, err)
	p, err := m.CreateOrder("alice", orderbook.Sell,
		orderbook.Bucket{Asset: "XRD", Amount: decimal.NewFromInt(10)}, decimal.NewFromInt(2))
	require.NoError(t, err)
	require.NoError(t, n.Close())

	n = newNode(t, cfg, nil)
	defer n.Close()
	m, err = n.Exchange().Market("XRD-USD")
	require.NoError(t, err)
	require.Equal(t, uint64(1), m.Seq())

	v, err := m.GetOrder(p.OrderID)
	require.NoError(t, err)
	require.Equal(t, "alice", v.Owner)
	require.True(t, v.Amount.Equal(decimal.NewFromInt(10)))
	require.NoError(t, m.Validate())
}

func TestNodeRejectsBadStorage(t *testing.T) {
	cfg := testConfig(t)
	// a file where the journal directory should be
	require.NoError(t, os.MkdirAll(cfg.Storage.JournalDir(""), 0700))
	require.NoError(t, os.WriteFile(cfg.Storage.JournalDir("XRD-USD"), []byte("x"), 0600))

	_, err := New(cfg, log.TestingLogger(), DefaultMetricsProvider(cfg.Instrumentation), DefaultSinkProvider)
	require.Error(t, err)
}

func TestNodeRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Events.Interval = 10 * time.Millisecond
	cfg.Events.BatchSize = 16
	cfg.Storage.SnapshotInterval = 10 * time.Millisecond

	sink := &memSink{}
	n := newNode(t, cfg, sink)
	defer n.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, ln) }()

	conn, err := grpcserver.Dial(ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	c := grpcserver.NewClient(conn)

	resp, err := c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
		Market: "XRD-USD", Owner: "alice", Side: "sell",
		Funds: grpcserver.Bucket{Asset: "XRD", Amount: "5"}, Limit: "1.5",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), resp.OrderID)

	require.Eventually(t, func() bool {
		return len(sink.sent()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"XRD-USD"}, sink.sent())

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(cfg.Storage.SnapshotDir(), "XRD-USD.snap"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop")
	}
}

func TestDefaultSinkProviderNone(t *testing.T) {
	sink, err := DefaultSinkProvider(config.DefaultEventsConfig())
	require.NoError(t, err)
	require.Nil(t, sink)
}

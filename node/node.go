package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"chainbook/api/grpcserver"
	"chainbook/config"
	"chainbook/domain/orderbook"
	"chainbook/infra/kafka"
	"chainbook/infra/ledger"
	"chainbook/infra/log"
	"chainbook/infra/wal/entry"
	"chainbook/infra/wal/exit"
	"chainbook/jobs/broadcaster"
	"chainbook/service"
	"chainbook/snapshot"
)

// MetricsProvider returns the metrics shared by all markets.
type MetricsProvider func() *service.Metrics

// DefaultMetricsProvider returns Prometheus metrics when enabled in the
// config, and no-op metrics otherwise.
func DefaultMetricsProvider(cfg *config.InstrumentationConfig) MetricsProvider {
	return func() *service.Metrics {
		if cfg.Prometheus {
			return service.PrometheusMetrics(cfg.Namespace)
		}
		return service.NopMetrics()
	}
}

// SinkProvider builds the event sink for the [events] section. A nil sink
// means events are not published.
type SinkProvider func(cfg *config.EventsConfig) (broadcaster.Sink, error)

func DefaultSinkProvider(cfg *config.EventsConfig) (broadcaster.Sink, error) {
	pc := kafka.ProducerConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		ClientID: cfg.ClientID,
	}
	switch cfg.Driver {
	case config.EventsKafkaGo:
		p, err := kafka.NewProducer(pc)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.EventsSarama:
		p, err := kafka.NewSaramaProducer(pc)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, nil
	}
}

type Node struct {
	config *config.Config
	logger log.Logger

	exchange    *service.Exchange
	ledgers     *ledger.PebbleStore // nil with the memory ledger
	outbox      *exit.Outbox        // nil when events are not published
	broadcaster *broadcaster.Broadcaster
	snapshots   *service.SnapshotJob
	rpc         *grpcserver.Server
}

// New opens the storage, recovers every market and builds the background
// jobs. The caller must Close the node.
func New(
	cfg *config.Config,
	logger log.Logger,
	metricsProvider MetricsProvider,
	sinkProvider SinkProvider,
) (_ *Node, err error) {
	n := &Node{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	sink, err := sinkProvider(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("events sink: %w", err)
	}
	if sink != nil {
		if n.outbox, err = exit.Open(cfg.Storage.OutboxDir(), &pebble.Options{}); err != nil {
			sink.Close()
			return nil, fmt.Errorf("open outbox: %w", err)
		}
		n.broadcaster = broadcaster.New(n.outbox, sink, broadcaster.Config{
			Interval:   cfg.Events.Interval,
			BatchSize:  cfg.Events.BatchSize,
			MaxRetries: cfg.Events.MaxRetries,
			Key:        service.EventKey,
		}, logger)
	}

	if cfg.Storage.Ledger == config.LedgerPebble {
		if n.ledgers, err = ledger.OpenPebble(cfg.Storage.LedgerDir(), &pebble.Options{}); err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
	}

	metrics := metricsProvider()
	writer := &snapshot.Writer{Dir: cfg.Storage.SnapshotDir()}
	markets := make([]*service.Market, 0, len(cfg.Markets))
	for _, mc := range cfg.Markets {
		m, err := n.openMarket(mc.Market(), writer, metrics)
		if err != nil {
			closeMarkets(markets)
			return nil, err
		}
		markets = append(markets, m)
	}
	if n.exchange, err = service.NewExchange(markets...); err != nil {
		closeMarkets(markets)
		return nil, err
	}
	if err := n.exchange.Recover(); err != nil {
		return nil, err
	}

	if cfg.Storage.SnapshotInterval > 0 {
		var outbox service.AckedTruncater
		if n.outbox != nil {
			outbox = n.outbox
		}
		n.snapshots = service.NewSnapshotJob(n.exchange, outbox, cfg.Storage.SnapshotInterval, logger)
	}
	n.rpc = grpcserver.NewServer(n.exchange, logger)
	return n, nil
}

func (n *Node) openMarket(market orderbook.Market, writer *snapshot.Writer, metrics *service.Metrics) (*service.Market, error) {
	journal, err := entry.Open(entry.Config{
		Dir:             n.config.Storage.JournalDir(market.Name),
		SegmentSize:     n.config.Storage.SegmentSize,
		SegmentDuration: n.config.Storage.SegmentDuration,
		Sync:            n.config.Storage.SyncWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("open journal of %s: %w", market.Name, err)
	}

	mc := service.MarketConfig{
		Market:    market,
		Journal:   journal,
		Snapshots: writer,
	}
	if n.ledgers != nil {
		if mc.Ledger, err = n.ledgers.Market(market.Name); err != nil {
			journal.Close()
			return nil, fmt.Errorf("open ledger of %s: %w", market.Name, err)
		}
	}
	if n.outbox != nil {
		mc.Events = n.outbox
	}

	m, err := service.NewMarket(mc, metrics, n.logger)
	if err != nil {
		journal.Close()
		return nil, err
	}
	return m, nil
}

func closeMarkets(markets []*service.Market) {
	for _, m := range markets {
		m.Close()
	}
}

// Exchange returns the markets served by the node.
func (n *Node) Exchange() *service.Exchange { return n.exchange }

// Run serves gRPC on ln and runs the background jobs until ctx is done or
// one of them fails.
func (n *Node) Run(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.rpc.Serve(ctx, ln)
	})

	if n.config.Instrumentation.Prometheus {
		srv := &http.Server{
			Addr:              n.config.Instrumentation.PrometheusListenAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			n.logger.Info("Starting metrics server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		})
	}

	if n.broadcaster != nil {
		g.Go(func() error { return n.broadcaster.Run(ctx) })
	}
	if n.snapshots != nil {
		g.Go(func() error { return n.snapshots.Run(ctx) })
	}

	n.logger.Info("Started node", "markets", len(n.exchange.Markets()), "rpc", ln.Addr().String())
	return g.Wait()
}

// Close releases the journals and stores. It is safe on a partly built
// node.
func (n *Node) Close() error {
	var errs []error
	if n.exchange != nil {
		errs = append(errs, n.exchange.Close())
	}
	if n.broadcaster != nil {
		errs = append(errs, n.broadcaster.Close())
	}
	if n.outbox != nil {
		errs = append(errs, n.outbox.Close())
	}
	if n.ledgers != nil {
		errs = append(errs, n.ledgers.Close())
	}
	return errors.Join(errs...)
}

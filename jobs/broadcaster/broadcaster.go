package broadcaster

import (
	"context"
	"time"

	"chainbook/infra/log"
	"chainbook/infra/wal/exit"
)

// Sink delivers one message. Send returns once the message is durable on
// the other side.
type Sink interface {
	Send(ctx context.Context, key []byte, value []byte) error
	Close() error
}

// Outbox is the part of the exit outbox the broadcaster drives.
type Outbox interface {
	ScanByState(state exit.State, limit int, fn func(exit.Entry) error) error
	MarkSent(seq uint64) error
	MarkAcked(seq uint64) error
	MarkFailed(seq uint64) (uint32, error)
	Requeue() (int, error)
}

type Config struct {
	Interval  time.Duration
	BatchSize int
	// MaxRetries is how many failed sends an event gets before it is left
	// FAILED for an operator.
	MaxRetries uint32
	// Key derives the message key from a payload. nil sends unkeyed.
	Key func(payload []byte) []byte
}

func DefaultConfig() Config {
	return Config{
		Interval:   250 * time.Millisecond,
		BatchSize:  256,
		MaxRetries: 10,
	}
}

type Broadcaster struct {
	outbox Outbox
	sink   Sink
	cfg    Config
	logger log.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(outbox Outbox, sink Sink, cfg Config, logger log.Logger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Broadcaster{
		outbox: outbox,
		sink:   sink,
		cfg:    cfg,
		logger: logger.With("module", "broadcaster"),
	}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run delivers events every interval until ctx is done. Events left SENT
// by a previous run are queued again first.
func (b *Broadcaster) Run(ctx context.Context) error {
	n, err := b.outbox.Requeue()
	if err != nil {
		return err
	}
	b.logger.Info("started", "requeued", n, "interval", b.cfg.Interval.String())

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if _, err := b.RunOnce(ctx); err != nil {
				b.logger.Error("delivery pass failed", "err", err)
			}
		}
	}
}

// ------------------------------------------------
// DELIVERY
// ------------------------------------------------

// RunOnce delivers pending events in outbox order and returns how many
// were acknowledged. NEW events and FAILED ones with retries left are
// merged by seq, and the pass stops at the first failed send so no event
// overtakes an earlier one.
func (b *Broadcaster) RunOnce(ctx context.Context) (int, error) {
	fresh, err := b.collect(exit.StateNew, func(exit.Entry) bool { return true })
	if err != nil {
		return 0, err
	}
	retry, err := b.collect(exit.StateFailed, func(e exit.Entry) bool {
		return e.Retries < b.cfg.MaxRetries
	})
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, e := range mergeBySeq(fresh, retry, b.cfg.BatchSize) {
		if ctx.Err() != nil {
			break
		}
		ok, err := b.deliver(ctx, e)
		if err != nil {
			return acked, err
		}
		if !ok {
			break
		}
		acked++
	}
	return acked, nil
}

// mergeBySeq merges two seq-ordered slices, keeping at most limit entries.
func mergeBySeq(a, c []exit.Entry, limit int) []exit.Entry {
	out := make([]exit.Entry, 0, len(a)+len(c))
	for len(a) > 0 || len(c) > 0 {
		if len(c) == 0 || (len(a) > 0 && a[0].Seq < c[0].Seq) {
			out, a = append(out, a[0]), a[1:]
		} else {
			out, c = append(out, c[0]), c[1:]
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (b *Broadcaster) collect(state exit.State, keep func(exit.Entry) bool) ([]exit.Entry, error) {
	var out []exit.Entry
	err := b.outbox.ScanByState(state, 0, func(e exit.Entry) error {
		if keep(e) {
			out = append(out, e)
		}
		if len(out) >= b.cfg.BatchSize {
			return errBatchFull
		}
		return nil
	})
	if err == errBatchFull {
		err = nil
	}
	return out, err
}

// deliver sends one event. Send failures are recorded on the entry and
// are not errors of the pass; outbox failures are.
func (b *Broadcaster) deliver(ctx context.Context, e exit.Entry) (bool, error) {
	// 1. Mark SENT
	if err := b.outbox.MarkSent(e.Seq); err != nil {
		return false, err
	}

	// 2. Publish
	var key []byte
	if b.cfg.Key != nil {
		key = b.cfg.Key(e.Payload)
	}
	if err := b.sink.Send(ctx, key, e.Payload); err != nil {
		retries, merr := b.outbox.MarkFailed(e.Seq)
		if merr != nil {
			return false, merr
		}
		if retries >= b.cfg.MaxRetries {
			b.logger.Error("giving up on event", "seq", e.Seq, "retries", retries, "err", err)
		} else {
			b.logger.Debug("send failed", "seq", e.Seq, "retries", retries, "err", err)
		}
		return false, nil
	}

	// 3. Mark ACKED
	return true, b.outbox.MarkAcked(e.Seq)
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.sink.Close()
}

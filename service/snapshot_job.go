package service

import (
	"context"
	"time"

	"chainbook/infra/log"
)

// AckedTruncater drops delivered events.
type AckedTruncater interface {
	LastSeq() uint64
	TruncateAckedUpTo(seq uint64) (int, error)
}

// SnapshotJob periodically checkpoints every market and garbage collects
// delivered events.
type SnapshotJob struct {
	exchange *Exchange
	outbox   AckedTruncater
	interval time.Duration
	logger   log.Logger
}

// NewSnapshotJob creates the job. outbox may be nil.
func NewSnapshotJob(ex *Exchange, outbox AckedTruncater, interval time.Duration, logger log.Logger) *SnapshotJob {
	return &SnapshotJob{
		exchange: ex,
		outbox:   outbox,
		interval: interval,
		logger:   logger.With("module", "snapshot"),
	}
}

// Run checkpoints every interval until ctx is done.
func (j *SnapshotJob) Run(ctx context.Context) error {
	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			j.RunOnce()
		}
	}
}

// RunOnce checkpoints each market once. A failing market is logged and
// skipped.
func (j *SnapshotJob) RunOnce() {
	for _, m := range j.exchange.Markets() {
		seq, err := m.Checkpoint()
		if err != nil {
			j.logger.Error("checkpoint failed", "market", m.Name(), "err", err)
			continue
		}
		j.logger.Debug("checkpoint", "market", m.Name(), "seq", seq)
	}

	if j.outbox == nil {
		return
	}
	// GC EXIT WAL (acked only)
	n, err := j.outbox.TruncateAckedUpTo(j.outbox.LastSeq())
	if err != nil {
		j.logger.Error("outbox truncate failed", "err", err)
		return
	}
	if n > 0 {
		j.logger.Debug("outbox truncated", "events", n)
	}
}

package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"chainbook/domain/orderbook"
	"chainbook/infra/ledger"
	"chainbook/infra/log"
	"chainbook/infra/sequence"
	"chainbook/infra/wal/entry"
	"chainbook/snapshot"
)

// EventStore is the outbox a market hands its settlement events to.
type EventStore interface {
	AppendFor(stream string, seq uint64, payloads ...[]byte) ([]uint64, error)
	Watermark(stream string) (uint64, error)
}

// durableLedger is a ledger that stages a step and makes it durable at
// once, remembering the last step it holds.
type durableLedger interface {
	orderbook.Ledger
	AppliedSeq() uint64
	Commit(seq uint64) error
	Discard()
}

// snapshotLedger is a ledger whose balances travel in book snapshots.
type snapshotLedger interface {
	Balances() map[string]decimal.Decimal
	Restore(map[string]decimal.Decimal)
}

// stepLedger forwards to the market ledger, or to a discard ledger while
// replaying steps the durable ledger already holds.
type stepLedger struct {
	target orderbook.Ledger
	replay bool
}

func (l *stepLedger) current() orderbook.Ledger {
	if l.replay {
		return ledger.Discard{}
	}
	return l.target
}

func (l *stepLedger) Deposit(asset string, amount decimal.Decimal) error {
	return l.current().Deposit(asset, amount)
}

func (l *stepLedger) Withdraw(asset string, amount decimal.Decimal) (orderbook.Bucket, error) {
	return l.current().Withdraw(asset, amount)
}

func (l *stepLedger) Balance(asset string) decimal.Decimal {
	return l.current().Balance(asset)
}

type MarketConfig struct {
	Market orderbook.Market
	// Ledger defaults to a fresh ledger.Memory.
	Ledger orderbook.Ledger
	// Journal, Events and Snapshots are optional.
	Journal   *entry.WAL
	Events    EventStore
	Snapshots *snapshot.Writer
}

// Market serializes every call on one order book. A mutating call is one
// step: validate, journal, apply, commit the ledger, publish events.
type Market struct {
	mtx sync.Mutex

	name      string
	book      *orderbook.Book
	ledger    *stepLedger
	journal   *entry.WAL
	events    EventStore
	snapshots *snapshot.Writer

	seq     *sequence.Sequencer
	metrics *Metrics
	logger  log.Logger
	now     func() time.Time
	// stepTime stamps orders created by the running step.
	stepTime time.Time

	halted error
}

func NewMarket(cfg MarketConfig, metrics *Metrics, logger log.Logger) (*Market, error) {
	if err := cfg.Market.Validate(); err != nil {
		return nil, err
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.NewMemory()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	sl := &stepLedger{target: cfg.Ledger}
	m := &Market{
		name:      cfg.Market.Name,
		book:      orderbook.NewBook(cfg.Market, sl),
		ledger:    sl,
		journal:   cfg.Journal,
		events:    cfg.Events,
		snapshots: cfg.Snapshots,
		seq:       sequence.New(0),
		metrics:   metrics.with(cfg.Market.Name),
		logger:    logger.With("module", "market", "market", cfg.Market.Name),
		now:       time.Now,
	}
	m.book.SetClock(func() time.Time { return m.stepTime })
	return m, nil
}

func (m *Market) Name() string { return m.name }

func (m *Market) Market() orderbook.Market { return m.book.Market() }

// Seq returns the last step sequence.
func (m *Market) Seq() uint64 { return m.seq.Current() }

// Halted returns the error that stopped the market, or nil.
func (m *Market) Halted() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.halted
}

// Close closes the journal. The market must not be used afterwards.
func (m *Market) Close() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.journal == nil {
		return nil
	}
	return m.journal.Close()
}

// ---- commands ----

func (m *Market) CreateOrder(
	owner string,
	side orderbook.Side,
	funds orderbook.Bucket,
	limit decimal.Decimal,
) (orderbook.Placement, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.halted != nil {
		return orderbook.Placement{}, m.halted
	}
	if err := m.book.CheckCreate(side, funds, limit); err != nil {
		m.reject(err)
		return orderbook.Placement{}, err
	}
	if funds.Amount.IsZero() {
		return m.book.CreateOrder(owner, side, funds, limit)
	}

	out, err := m.execute(&command{
		kind:  entry.RecordCreate,
		owner: owner,
		side:  side,
		funds: funds,
		limit: limit,
	})
	if err != nil {
		return out.placement, err
	}

	p := out.placement
	m.logger.Info("order placed",
		"owner", owner, "side", side.String(), "funds", funds.String(), "limit", limit.String(),
		"fills", len(p.Fills), "proceeds", p.Proceeds.String(), "order", uint64(p.OrderID))
	for _, f := range p.Fills {
		m.logger.Debug("fill", "fill", f)
	}
	if p.Rested() {
		if v, err := m.book.GetOrder(p.OrderID); err == nil {
			m.logger.Debug("order rested", "order", v)
		}
	}
	return p, nil
}

func (m *Market) CancelOrder(owner string, id orderbook.OrderID) (orderbook.Settlement, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.halted != nil {
		return orderbook.Settlement{}, m.halted
	}
	if _, err := m.authorize(owner, id); err != nil {
		m.reject(err)
		return orderbook.Settlement{}, err
	}

	out, err := m.execute(&command{kind: entry.RecordCancel, owner: owner, id: id})
	if err != nil {
		return out.settlement, err
	}

	st := out.settlement
	m.logger.Info("order cancelled",
		"order", uint64(id), "owner", owner,
		"proceeds", st.Proceeds.String(), "principal", st.Principal.String())
	return st, nil
}

func (m *Market) ClaimTokens(owner string, id orderbook.OrderID) (orderbook.Settlement, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.halted != nil {
		return orderbook.Settlement{}, m.halted
	}
	v, err := m.authorize(owner, id)
	if err != nil {
		m.reject(err)
		return orderbook.Settlement{}, err
	}
	if !v.Filled.IsPositive() {
		// nothing to pay out; the book leaves the order untouched
		return m.book.ClaimTokens(id)
	}

	out, err := m.execute(&command{kind: entry.RecordClaim, owner: owner, id: id})
	if err != nil {
		return out.settlement, err
	}

	st := out.settlement
	m.logger.Info("proceeds claimed",
		"order", uint64(id), "owner", owner, "proceeds", st.Proceeds.String(), "burned", st.Burned)
	return st, nil
}

// ---- queries ----

func (m *Market) GetOrder(id orderbook.OrderID) (orderbook.OrderView, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.book.GetOrder(id)
}

func (m *Market) Orders(side orderbook.Side) []orderbook.OrderView {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.book.Orders(side)
}

func (m *Market) Depth(levels int) orderbook.Depth {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.book.Depth(levels)
}

// Validate checks the book invariants.
func (m *Market) Validate() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.book.Validate()
}

// ---- steps ----

type outcome struct {
	placement  orderbook.Placement
	settlement orderbook.Settlement
}

// execute journals c as the next step and applies it. Must hold mtx.
func (m *Market) execute(c *command) (outcome, error) {
	start := m.now()
	defer func() {
		m.metrics.StepDuration.Observe(m.now().Sub(start).Seconds())
	}()

	seq := m.seq.Next()
	if m.journal != nil {
		rec := &entry.Record{Type: c.kind, Seq: seq, Time: start.UnixNano(), Data: c.encode()}
		if err := m.journal.Append(rec); err != nil {
			return outcome{}, m.halt(seq, fmt.Errorf("journal: %w", err))
		}
	}
	return m.apply(seq, start, c, true)
}

// apply runs step seq against the book and finishes it: the ledger step is
// committed and, if emit is set, the events are stored.
func (m *Market) apply(seq uint64, at time.Time, c *command, emit bool) (outcome, error) {
	m.stepTime = at
	out, events, err := m.run(c)
	if err != nil {
		m.discardStep()
		return out, m.halt(seq, err)
	}
	if err := m.commitStep(seq); err != nil {
		return out, m.halt(seq, fmt.Errorf("commit ledger: %w", err))
	}
	if emit {
		if err := m.publish(seq, at, events); err != nil {
			return out, m.halt(seq, fmt.Errorf("publish events: %w", err))
		}
	}
	m.observe(seq, c, out)
	return out, nil
}

func (m *Market) run(c *command) (outcome, []Event, error) {
	var out outcome
	switch c.kind {
	case entry.RecordCreate:
		p, err := m.book.CreateOrder(c.owner, c.side, c.funds, c.limit)
		out.placement = p
		if err != nil {
			return out, nil, err
		}
		var rested *orderbook.OrderView
		if p.Rested() {
			v, err := m.book.GetOrder(p.OrderID)
			if err != nil {
				return out, nil, err
			}
			rested = &v
		}
		return out, createEvents(c.owner, c.side, c.limit.String(), p, rested), nil

	case entry.RecordCancel:
		st, err := m.book.CancelOrder(c.id)
		out.settlement = st
		if err != nil {
			return out, nil, err
		}
		return out, cancelEvents(st), nil

	case entry.RecordClaim:
		st, err := m.book.ClaimTokens(c.id)
		out.settlement = st
		if err != nil {
			return out, nil, err
		}
		return out, claimEvents(st), nil
	}
	return out, nil, fmt.Errorf("unknown command %s", c.kind)
}

func (m *Market) commitStep(seq uint64) error {
	d, ok := m.ledger.target.(durableLedger)
	if !ok {
		return nil
	}
	if m.ledger.replay {
		d.Discard()
		return nil
	}
	return d.Commit(seq)
}

func (m *Market) discardStep() {
	if d, ok := m.ledger.target.(durableLedger); ok {
		d.Discard()
	}
}

func (m *Market) publish(seq uint64, at time.Time, events []Event) error {
	if m.events == nil || len(events) == 0 {
		return nil
	}
	stamp(m.name, seq, at, events)
	payloads, err := encodeEvents(events)
	if err != nil {
		return err
	}
	_, err = m.events.AppendFor(m.name, seq, payloads...)
	return err
}

func (m *Market) observe(seq uint64, c *command, out outcome) {
	switch c.kind {
	case entry.RecordCreate:
		p := out.placement
		if len(p.Fills) > 0 {
			m.metrics.Fills.Add(float64(len(p.Fills)))
			volume := decimal.Zero
			for _, f := range p.Fills {
				volume = volume.Add(f.Quantity)
			}
			m.metrics.FillVolume.Add(volume.InexactFloat64())
		}
		if p.Rested() {
			m.metrics.OrdersCreated.Add(1)
		}
	case entry.RecordCancel:
		m.metrics.Cancels.Add(1)
	case entry.RecordClaim:
		if !out.settlement.Proceeds.IsEmpty() {
			m.metrics.Claims.Add(1)
		}
	}
	m.metrics.RestingOrders.With("side", orderbook.Buy.String()).Set(float64(m.book.Bids().Len()))
	m.metrics.RestingOrders.With("side", orderbook.Sell.String()).Set(float64(m.book.Asks().Len()))
	m.metrics.JournalSeq.Set(float64(seq))
}

// halt stops the market. The book may be partially applied; only a
// restart from the journal brings it back.
func (m *Market) halt(seq uint64, err error) error {
	m.halted = fmt.Errorf("%w: %s at step %d: %w", ErrHalted, m.name, seq, err)
	m.metrics.Halted.Set(1)
	m.logger.Error("market halted", "seq", seq, "err", err)
	return m.halted
}

func (m *Market) authorize(owner string, id orderbook.OrderID) (orderbook.OrderView, error) {
	v, err := m.book.GetOrder(id)
	if err != nil {
		return v, err
	}
	if v.Owner != owner {
		return v, fmt.Errorf("%w: order %d", ErrNotOwner, id)
	}
	return v, nil
}

func (m *Market) reject(err error) {
	m.metrics.Rejects.With("reason", rejectReason(err)).Add(1)
	m.logger.Debug("call rejected", "err", err)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, orderbook.ErrWrongAsset):
		return "wrong_asset"
	case errors.Is(err, orderbook.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, orderbook.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, orderbook.ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	default:
		return "other"
	}
}

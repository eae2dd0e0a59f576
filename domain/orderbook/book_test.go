package orderbook_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"chainbook/domain/orderbook"
	"chainbook/infra/ledger"
)

var market = orderbook.Market{Name: "XRD-USD", Base: "XRD", Quote: "USD", Scale: orderbook.DefaultScale}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

func quote(amount string) orderbook.Bucket { return orderbook.Bucket{Asset: "USD", Amount: d(amount)} }
func base(amount string) orderbook.Bucket  { return orderbook.Bucket{Asset: "XRD", Amount: d(amount)} }

func newBook(t *testing.T) (*orderbook.Book, *ledger.Memory) {
	t.Helper()
	l := ledger.NewMemory()
	b := orderbook.NewBook(market, l)
	b.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	return b, l
}

// place creates an order that is expected to rest in full.
func place(t *testing.T, b *orderbook.Book, side orderbook.Side, funds orderbook.Bucket, limit string) orderbook.OrderID {
	t.Helper()
	p, err := b.CreateOrder("alice", side, funds, d(limit))
	require.NoError(t, err)
	require.Empty(t, p.Fills)
	require.True(t, p.Rested())
	return p.OrderID
}

func TestBuyConsumesAskExactly(t *testing.T) {
	b, l := newBook(t)
	ask := place(t, b, orderbook.Sell, base("10"), "20")

	p, err := b.CreateOrder("bob", orderbook.Buy, quote("200"), d("20"))
	require.NoError(t, err)

	require.Equal(t, "XRD", p.Proceeds.Asset)
	requireDec(t, "10", p.Proceeds.Amount)
	requireDec(t, "0", p.Change.Amount)
	require.False(t, p.Rested())
	require.Len(t, p.Fills, 1)
	require.Equal(t, ask, p.Fills[0].Maker)
	require.True(t, p.Fills[0].MakerDone)
	requireDec(t, "200", p.Fills[0].Quote)

	require.Zero(t, b.Asks().Len())
	_, ok := b.BestAsk()
	require.False(t, ok)

	// the exhausted ask waits for its owner to claim
	v, err := b.GetOrder(ask)
	require.NoError(t, err)
	requireDec(t, "0", v.Amount)
	requireDec(t, "10", v.Filled)
	require.Equal(t, "USD", v.Proceeds.Asset)
	requireDec(t, "200", v.Proceeds.Amount)

	requireDec(t, "200", l.Balance("USD"))
	requireDec(t, "0", l.Balance("XRD"))
	require.NoError(t, b.Validate())
}

func TestBuySweepsLevelsAndRests(t *testing.T) {
	b, l := newBook(t)
	place(t, b, orderbook.Sell, base("10"), "18")
	place(t, b, orderbook.Sell, base("10"), "20")

	p, err := b.CreateOrder("bob", orderbook.Buy, quote("400"), d("20"))
	require.NoError(t, err)

	requireDec(t, "20", p.Proceeds.Amount)
	requireDec(t, "0", p.Change.Amount)
	require.Len(t, p.Fills, 2)
	requireDec(t, "18", p.Fills[0].Price)
	requireDec(t, "20", p.Fills[1].Price)

	// 400 - 180 - 200 = 20 quote rests as 1 base at 20
	require.True(t, p.Rested())
	bids := b.Orders(orderbook.Buy)
	require.Len(t, bids, 1)
	require.Equal(t, p.OrderID, bids[0].ID)
	requireDec(t, "20", bids[0].Price)
	requireDec(t, "1", bids[0].Amount)
	require.Equal(t, "bob", bids[0].Owner)
	require.Zero(t, b.Asks().Len())

	// 380 proceeds for the asks plus 20 bid principal
	requireDec(t, "400", l.Balance("USD"))
	requireDec(t, "0", l.Balance("XRD"))
	require.NoError(t, b.Validate())
}

func TestFIFOWithinPrice(t *testing.T) {
	b, _ := newBook(t)
	first := place(t, b, orderbook.Sell, base("5"), "20")
	second := place(t, b, orderbook.Sell, base("5"), "20")

	p, err := b.CreateOrder("bob", orderbook.Buy, quote("100"), d("20"))
	require.NoError(t, err)
	require.Len(t, p.Fills, 1)
	require.Equal(t, first, p.Fills[0].Maker)

	asks := b.Orders(orderbook.Sell)
	require.Len(t, asks, 1)
	require.Equal(t, second, asks[0].ID)
	requireDec(t, "5", asks[0].Amount)
	requireDec(t, "0", asks[0].Filled)
}

func TestCancelRestingBid(t *testing.T) {
	b, l := newBook(t)
	for i := 0; i < 6; i++ {
		place(t, b, orderbook.Sell, base("1"), "100")
	}
	bid := place(t, b, orderbook.Buy, quote("150"), "15")
	require.Equal(t, orderbook.OrderID(7), bid)

	st, err := b.CancelOrder(bid)
	require.NoError(t, err)
	require.Equal(t, "USD", st.Principal.Asset)
	requireDec(t, "150", st.Principal.Amount)
	require.True(t, st.Proceeds.IsEmpty())
	require.True(t, st.Burned)

	_, err = b.GetOrder(bid)
	require.ErrorIs(t, err, orderbook.ErrOrderNotFound)
	require.Zero(t, b.Bids().Len())
	requireDec(t, "0", l.Balance("USD"))

	_, err = b.CancelOrder(bid)
	require.ErrorIs(t, err, orderbook.ErrOrderNotFound)
}

func TestClaimPartiallyFilledBid(t *testing.T) {
	b, l := newBook(t)
	place(t, b, orderbook.Sell, base("1"), "50")
	place(t, b, orderbook.Sell, base("1"), "50")
	bid := place(t, b, orderbook.Buy, quote("150"), "15")
	require.Equal(t, orderbook.OrderID(3), bid)

	p, err := b.CreateOrder("bob", orderbook.Sell, base("4"), d("15"))
	require.NoError(t, err)
	require.False(t, p.Rested())
	requireDec(t, "60", p.Proceeds.Amount)

	st, err := b.ClaimTokens(bid)
	require.NoError(t, err)
	require.Equal(t, "XRD", st.Proceeds.Asset)
	requireDec(t, "4", st.Proceeds.Amount)
	require.True(t, st.Principal.IsEmpty())
	require.False(t, st.Burned)

	v, err := b.GetOrder(bid)
	require.NoError(t, err)
	requireDec(t, "0", v.Filled)
	requireDec(t, "6", v.Amount)
	require.Equal(t, bid, b.Bids().Head().ID)

	// 2 XRD asks stay locked, the bid keeps 6*15 quote
	requireDec(t, "2", l.Balance("XRD"))
	requireDec(t, "90", l.Balance("USD"))
}

func TestClaimWithoutFillsIsNoop(t *testing.T) {
	b, l := newBook(t)
	id := place(t, b, orderbook.Sell, base("3"), "7")

	st, err := b.ClaimTokens(id)
	require.NoError(t, err)
	require.True(t, st.Proceeds.IsEmpty())
	require.Equal(t, "USD", st.Proceeds.Asset)
	require.False(t, st.Burned)

	v, err := b.GetOrder(id)
	require.NoError(t, err)
	requireDec(t, "3", v.Amount)
	requireDec(t, "3", l.Balance("XRD"))
}

func TestClaimBurnsExhaustedOrder(t *testing.T) {
	b, _ := newBook(t)
	ask := place(t, b, orderbook.Sell, base("2"), "10")

	_, err := b.CreateOrder("bob", orderbook.Buy, quote("20"), d("10"))
	require.NoError(t, err)

	st, err := b.ClaimTokens(ask)
	require.NoError(t, err)
	requireDec(t, "20", st.Proceeds.Amount)
	require.True(t, st.Burned)

	_, err = b.ClaimTokens(ask)
	require.ErrorIs(t, err, orderbook.ErrOrderNotFound)
	require.Zero(t, b.Len())
}

func TestCancelPaysFillsAndPrincipal(t *testing.T) {
	b, l := newBook(t)
	ask := place(t, b, orderbook.Sell, base("10"), "20")

	_, err := b.CreateOrder("bob", orderbook.Buy, quote("100"), d("20"))
	require.NoError(t, err)

	st, err := b.CancelOrder(ask)
	require.NoError(t, err)
	require.Equal(t, "USD", st.Proceeds.Asset)
	requireDec(t, "100", st.Proceeds.Amount)
	require.Equal(t, "XRD", st.Principal.Asset)
	requireDec(t, "5", st.Principal.Amount)

	requireDec(t, "0", l.Balance("USD"))
	requireDec(t, "0", l.Balance("XRD"))
	require.Zero(t, b.Len())
}

func TestSellWalksBidsBestFirst(t *testing.T) {
	b, _ := newBook(t)
	at10 := place(t, b, orderbook.Buy, quote("100"), "10")
	at12 := place(t, b, orderbook.Buy, quote("120"), "12")
	at11 := place(t, b, orderbook.Buy, quote("110"), "11")

	p, err := b.CreateOrder("bob", orderbook.Sell, base("25"), d("10"))
	require.NoError(t, err)

	require.Len(t, p.Fills, 3)
	require.Equal(t, at12, p.Fills[0].Maker)
	require.Equal(t, at11, p.Fills[1].Maker)
	require.Equal(t, at10, p.Fills[2].Maker)
	requireDec(t, "5", p.Fills[2].Quantity)
	requireDec(t, "280", p.Proceeds.Amount)
	require.False(t, p.Rested())

	v, err := b.GetOrder(at10)
	require.NoError(t, err)
	requireDec(t, "5", v.Amount)
	requireDec(t, "5", v.Filled)
	require.NoError(t, b.Validate())
}

func TestNonCrossingOrdersRest(t *testing.T) {
	b, _ := newBook(t)
	place(t, b, orderbook.Buy, quote("100"), "10")
	place(t, b, orderbook.Sell, base("1"), "11")

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	requireDec(t, "10", bid)
	requireDec(t, "11", ask)
	require.NoError(t, b.Validate())
}

func TestBuyReturnsDustAsChange(t *testing.T) {
	b, l := newBook(t)
	place(t, b, orderbook.Sell, base("10"), "3")

	p, err := b.CreateOrder("bob", orderbook.Buy, quote("10"), d("3"))
	require.NoError(t, err)

	requireDec(t, "3.333333333333333333", p.Proceeds.Amount)
	requireDec(t, "0.000000000000000001", p.Change.Amount)
	require.False(t, p.Rested())
	requireDec(t, "9.999999999999999999", l.Balance("USD"))
}

func TestBuyRemainderBelowOneIncrementIsChange(t *testing.T) {
	b, l := newBook(t)
	b2 := orderbook.NewBook(orderbook.Market{Name: "W", Base: "XRD", Quote: "USD", Scale: 0}, l)

	p, err := b2.CreateOrder("bob", orderbook.Buy, quote("25"), d("10"))
	require.NoError(t, err)
	require.True(t, p.Rested())
	requireDec(t, "5", p.Change.Amount)

	v, err := b2.GetOrder(p.OrderID)
	require.NoError(t, err)
	requireDec(t, "2", v.Amount)

	p, err = b2.CreateOrder("bob", orderbook.Buy, quote("9"), d("10"))
	require.NoError(t, err)
	require.False(t, p.Rested())
	requireDec(t, "9", p.Change.Amount)
	requireDec(t, "20", l.Balance("USD"))
	require.Zero(t, b.Len())
}

func TestCreateOrderValidation(t *testing.T) {
	testCases := []struct {
		name  string
		side  orderbook.Side
		funds orderbook.Bucket
		limit string
		err   error
	}{
		{"buy paying base", orderbook.Buy, base("1"), "1", orderbook.ErrWrongAsset},
		{"sell paying quote", orderbook.Sell, quote("1"), "1", orderbook.ErrWrongAsset},
		{"unknown asset", orderbook.Buy, orderbook.Bucket{Asset: "BTC", Amount: d("1")}, "1", orderbook.ErrWrongAsset},
		{"zero price", orderbook.Buy, quote("1"), "0", orderbook.ErrInvalidPrice},
		{"negative price", orderbook.Sell, base("1"), "-3", orderbook.ErrInvalidPrice},
		{"price too fine", orderbook.Sell, base("1"), "0.0000000000000000001", orderbook.ErrInvalidPrice},
		{"negative amount", orderbook.Buy, quote("-1"), "1", orderbook.ErrInvalidAmount},
		{"amount too fine", orderbook.Sell, base("0.0000000000000000001"), "1", orderbook.ErrInvalidAmount},
		{"price too large", orderbook.Buy, quote("1"), "1e20000000", orderbook.ErrInvalidPrice},
		{"price one digit too long", orderbook.Sell, base("1"), "1000000000000000000000000000000", orderbook.ErrInvalidPrice},
		{"price exponent too small", orderbook.Sell, base("1"), "1e-20000000", orderbook.ErrInvalidPrice},
		{"amount too large", orderbook.Buy, quote("5e20000000"), "1", orderbook.ErrInvalidAmount},
		{"amount exponent too small", orderbook.Sell, base("1e-20000000"), "1", orderbook.ErrInvalidAmount},
		{"asset checked before price", orderbook.Buy, base("1"), "0", orderbook.ErrWrongAsset},
		{"price checked before amount", orderbook.Buy, quote("-1"), "0", orderbook.ErrInvalidPrice},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			b, l := newBook(t)
			_, err := b.CreateOrder("bob", tc.side, tc.funds, d(tc.limit))
			require.ErrorIs(t, err, tc.err)
			require.Zero(t, b.Len())
			require.Zero(t, b.LastID())
			require.Empty(t, l.Balances())
		})
	}
}

func TestLargestAcceptedValues(t *testing.T) {
	b, l := newBook(t)
	limit := strings.Repeat("9", orderbook.MaxIntegerDigits)

	p, err := b.CreateOrder("alice", orderbook.Sell, base(limit), d(limit))
	require.NoError(t, err)
	require.True(t, p.Rested())
	requireDec(t, limit, l.Balance("XRD"))
}

func TestZeroFundsIsNoop(t *testing.T) {
	b, l := newBook(t)
	place(t, b, orderbook.Sell, base("1"), "1")

	p, err := b.CreateOrder("bob", orderbook.Buy, quote("0"), d("5"))
	require.NoError(t, err)
	require.Empty(t, p.Fills)
	require.False(t, p.Rested())
	require.True(t, p.Proceeds.IsEmpty())
	require.True(t, p.Change.IsEmpty())
	require.Equal(t, 1, b.Asks().Len())
	require.Equal(t, orderbook.OrderID(1), b.LastID())
	requireDec(t, "1", l.Balance("XRD"))
}

func TestUnknownIDs(t *testing.T) {
	b, _ := newBook(t)
	for _, id := range []orderbook.OrderID{0, 1, 42} {
		_, err := b.GetOrder(id)
		require.ErrorIs(t, err, orderbook.ErrOrderNotFound)
		_, err = b.ClaimTokens(id)
		require.ErrorIs(t, err, orderbook.ErrOrderNotFound)
		_, err = b.CancelOrder(id)
		require.ErrorIs(t, err, orderbook.ErrOrderNotFound)
	}
}

func TestDepth(t *testing.T) {
	b, _ := newBook(t)
	place(t, b, orderbook.Buy, quote("100"), "10")
	place(t, b, orderbook.Buy, quote("50"), "10")
	place(t, b, orderbook.Buy, quote("90"), "9")
	place(t, b, orderbook.Sell, base("2"), "11")
	place(t, b, orderbook.Sell, base("3"), "12")
	place(t, b, orderbook.Sell, base("4"), "11")

	depth := b.Depth(0)
	require.Len(t, depth.Bids, 2)
	requireDec(t, "10", depth.Bids[0].Price)
	requireDec(t, "15", depth.Bids[0].Amount)
	require.Equal(t, 2, depth.Bids[0].Count)
	requireDec(t, "9", depth.Bids[1].Price)

	require.Len(t, depth.Asks, 2)
	requireDec(t, "11", depth.Asks[0].Price)
	requireDec(t, "6", depth.Asks[0].Amount)
	require.Equal(t, 2, depth.Asks[0].Count)

	top := b.Depth(1)
	require.Len(t, top.Bids, 1)
	require.Len(t, top.Asks, 1)
}

func TestExportRestore(t *testing.T) {
	b, l := newBook(t)
	place(t, b, orderbook.Sell, base("10"), "20")
	place(t, b, orderbook.Sell, base("5"), "21")
	place(t, b, orderbook.Buy, quote("150"), "15")
	place(t, b, orderbook.Buy, quote("30"), "15")
	_, err := b.CreateOrder("bob", orderbook.Buy, quote("200"), d("20"))
	require.NoError(t, err)

	s := b.Export()
	require.Equal(t, orderbook.OrderID(4), s.LastID)
	require.Len(t, s.Bids, 2)
	require.Len(t, s.Asks, 1)
	require.Len(t, s.Parked, 1)

	restored := orderbook.NewBook(market, l)
	require.NoError(t, restored.Restore(s))
	require.Equal(t, b.Orders(orderbook.Buy), restored.Orders(orderbook.Buy))
	require.Equal(t, b.Orders(orderbook.Sell), restored.Orders(orderbook.Sell))
	require.Equal(t, b.Len(), restored.Len())
	require.Equal(t, b.LastID(), restored.LastID())

	parked, err := restored.GetOrder(1)
	require.NoError(t, err)
	requireDec(t, "10", parked.Filled)

	// ids continue after the restored counter
	p, err := restored.CreateOrder("carol", orderbook.Sell, base("1"), d("30"))
	require.NoError(t, err)
	require.Equal(t, orderbook.OrderID(5), p.OrderID)
}

func TestRestoreRejectsBadState(t *testing.T) {
	b, _ := newBook(t)
	place(t, b, orderbook.Sell, base("1"), "20")
	place(t, b, orderbook.Sell, base("1"), "21")
	good := b.Export()

	testCases := []struct {
		name   string
		mutate func(s *orderbook.State)
	}{
		{"out of order", func(s *orderbook.State) { s.Asks[0], s.Asks[1] = s.Asks[1], s.Asks[0] }},
		{"id beyond counter", func(s *orderbook.State) { s.LastID = 1 }},
		{"duplicate id", func(s *orderbook.State) { s.Asks[1].ID = s.Asks[0].ID }},
		{"crossed", func(s *orderbook.State) {
			bid := s.Asks[1]
			bid.Side = orderbook.Buy
			s.Asks = s.Asks[:1]
			s.Bids = []orderbook.Order{bid}
		}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := orderbook.State{LastID: good.LastID}
			s.Asks = append(s.Asks, good.Asks...)
			tc.mutate(&s)

			fresh := orderbook.NewBook(market, ledger.NewMemory())
			require.Error(t, fresh.Restore(s))
			require.Zero(t, fresh.Len())
			require.Zero(t, fresh.LastID())
		})
	}

	require.Error(t, b.Restore(good), "restore into a populated book")
}

type failingLedger struct {
	*ledger.Memory
}

var errCustody = errors.New("custody offline")

func (failingLedger) Withdraw(string, decimal.Decimal) (orderbook.Bucket, error) {
	return orderbook.Bucket{}, errCustody
}

func TestLedgerFailureSurfaces(t *testing.T) {
	l := failingLedger{ledger.NewMemory()}
	b := orderbook.NewBook(market, l)

	p, err := b.CreateOrder("alice", orderbook.Sell, base("1"), d("10"))
	require.NoError(t, err)

	_, err = b.CreateOrder("bob", orderbook.Buy, quote("10"), d("10"))
	require.ErrorIs(t, err, errCustody)

	_, err = b.CancelOrder(p.OrderID)
	require.ErrorIs(t, err, errCustody)
}

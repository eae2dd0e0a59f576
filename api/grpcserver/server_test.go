package grpcserver_test

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"chainbook/api/grpcserver"
	"chainbook/domain/orderbook"
	"chainbook/infra/log"
	"chainbook/service"
)

const market = "XRD-USD"

func startServer(t *testing.T) *grpcserver.Client {
	t.Helper()

	m, err := service.NewMarket(service.MarketConfig{
		Market: orderbook.Market{Name: market, Base: "XRD", Quote: "USD", Scale: 18},
	}, nil, log.TestingLogger())
	require.NoError(t, err)
	ex, err := service.NewExchange(m)
	require.NoError(t, err)

	ln := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- grpcserver.NewServer(ex, log.TestingLogger()).Serve(ctx, ln)
	}()

	conn, err := grpcserver.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ln.DialContext(ctx)
		}))
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		require.NoError(t, <-done)
	})
	return grpcserver.NewClient(conn)
}

func requireCode(t *testing.T, want codes.Code, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, status.Code(err), err.Error())
}

func TestTradeOverGRPC(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	ask, err := c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
		Market: market, Owner: "alice", Side: "sell",
		Funds: grpcserver.Bucket{Asset: "XRD", Amount: "10"}, Limit: "2",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), ask.OrderID)
	require.Empty(t, ask.Fills)

	buy, err := c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
		Market: market, Owner: "bob", Side: "buy",
		Funds: grpcserver.Bucket{Asset: "USD", Amount: "6"}, Limit: "3",
	})
	require.NoError(t, err)
	require.Zero(t, buy.OrderID)
	require.Equal(t, grpcserver.Bucket{Asset: "XRD", Amount: "3"}, buy.Proceeds)
	require.Equal(t, []grpcserver.Fill{{Maker: 1, Price: "2", Quantity: "3", Quote: "6"}}, buy.Fills)

	got, err := c.GetOrder(ctx, &grpcserver.OrderRequest{Market: market, OrderID: 1})
	require.NoError(t, err)
	require.Equal(t, "alice", got.Order.Owner)
	require.Equal(t, "sell", got.Order.Side)
	require.Equal(t, "7", got.Order.Amount)
	require.Equal(t, "3", got.Order.Filled)

	depth, err := c.GetDepth(ctx, &grpcserver.GetDepthRequest{Market: market})
	require.NoError(t, err)
	require.Equal(t, uint64(2), depth.Seq)
	require.Empty(t, depth.Bids)
	require.Equal(t, []grpcserver.Level{{Price: "2", Amount: "7", Count: 1}}, depth.Asks)

	claim, err := c.ClaimTokens(ctx, &grpcserver.OrderRequest{Market: market, Owner: "alice", OrderID: 1})
	require.NoError(t, err)
	require.Equal(t, grpcserver.Bucket{Asset: "USD", Amount: "6"}, claim.Proceeds)
	require.False(t, claim.Burned)

	cancel, err := c.CancelOrder(ctx, &grpcserver.OrderRequest{Market: market, Owner: "alice", OrderID: 1})
	require.NoError(t, err)
	require.Equal(t, grpcserver.Bucket{Asset: "XRD", Amount: "7"}, cancel.Principal)
	require.True(t, cancel.Burned)

	_, err = c.GetOrder(ctx, &grpcserver.OrderRequest{Market: market, OrderID: 1})
	requireCode(t, codes.NotFound, err)
}

func TestErrorCodes(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	_, err := c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
		Market: market, Owner: "alice", Side: "sell",
		Funds: grpcserver.Bucket{Asset: "XRD", Amount: "5"}, Limit: "1",
	})
	require.NoError(t, err)

	testCases := []struct {
		name string
		call func() error
		code codes.Code
	}{
		{"unknown market", func() error {
			_, err := c.GetDepth(ctx, &grpcserver.GetDepthRequest{Market: "BTC-USD"})
			return err
		}, codes.NotFound},
		{"wrong asset", func() error {
			_, err := c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
				Market: market, Owner: "bob", Side: "buy",
				Funds: grpcserver.Bucket{Asset: "XRD", Amount: "1"}, Limit: "1",
			})
			return err
		}, codes.InvalidArgument},
		{"bad side", func() error {
			_, err := c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
				Market: market, Owner: "bob", Side: "hold",
				Funds: grpcserver.Bucket{Asset: "USD", Amount: "1"}, Limit: "1",
			})
			return err
		}, codes.InvalidArgument},
		{"bad decimal", func() error {
			_, err := c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
				Market: market, Owner: "bob", Side: "buy",
				Funds: grpcserver.Bucket{Asset: "USD", Amount: "lots"}, Limit: "1",
			})
			return err
		}, codes.InvalidArgument},
		{"non-positive price", func() error {
			_, err := c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
				Market: market, Owner: "bob", Side: "buy",
				Funds: grpcserver.Bucket{Asset: "USD", Amount: "1"}, Limit: "0",
			})
			return err
		}, codes.InvalidArgument},
		{"huge price", func() error {
			_, err := c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
				Market: market, Owner: "bob", Side: "buy",
				Funds: grpcserver.Bucket{Asset: "USD", Amount: "200"}, Limit: "1e20000000",
			})
			return err
		}, codes.InvalidArgument},
		{"overlong amount", func() error {
			_, err := c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
				Market: market, Owner: "bob", Side: "buy",
				Funds: grpcserver.Bucket{Asset: "USD", Amount: strings.Repeat("1", 200)}, Limit: "1",
			})
			return err
		}, codes.InvalidArgument},
		{"not owner", func() error {
			_, err := c.CancelOrder(ctx, &grpcserver.OrderRequest{Market: market, Owner: "bob", OrderID: 1})
			return err
		}, codes.PermissionDenied},
		{"missing order", func() error {
			_, err := c.ClaimTokens(ctx, &grpcserver.OrderRequest{Market: market, Owner: "bob", OrderID: 9})
			return err
		}, codes.NotFound},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			requireCode(t, tc.code, tc.call())
		})
	}
}

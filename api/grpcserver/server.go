package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chainbook/domain/orderbook"
	"chainbook/infra/log"
	"chainbook/service"
)

// Server adapts an Exchange to the Engine service.
type Server struct {
	ex     *service.Exchange
	logger log.Logger
}

var _ EngineServer = (*Server)(nil)

func NewServer(ex *service.Exchange, logger log.Logger) *Server {
	return &Server{ex: ex, logger: logger.With("module", "rpc")}
}

// Register creates a grpc.Server with the Engine service and request
// logging installed.
func (s *Server) Register(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.logCalls))
	srv := grpc.NewServer(opts...)
	RegisterEngineServer(srv, s)
	return srv
}

// Serve blocks serving ln until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.Register()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	s.logger.Info("Listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) logCalls(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("rpc", "method", info.FullMethod,
		"code", status.Code(err).String(), "took", time.Since(start).String())
	return resp, err
}

// -------------------- Commands --------------------

func (s *Server) CreateOrder(_ context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	m, err := s.ex.Market(req.Market)
	if err != nil {
		return nil, toStatus(err)
	}
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	funds, err := parseBucket(req.Funds)
	if err != nil {
		return nil, err
	}
	limit, err := parseDecimal("limit", req.Limit)
	if err != nil {
		return nil, err
	}

	p, err := m.CreateOrder(req.Owner, side, funds, limit)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &CreateOrderResponse{
		OrderID:  uint64(p.OrderID),
		Proceeds: fromBucket(p.Proceeds),
		Change:   fromBucket(p.Change),
		Fills:    make([]Fill, 0, len(p.Fills)),
	}
	for _, f := range p.Fills {
		resp.Fills = append(resp.Fills, Fill{
			Maker:    uint64(f.Maker),
			Price:    f.Price.String(),
			Quantity: f.Quantity.String(),
			Quote:    f.Quote.String(),
		})
	}
	return resp, nil
}

func (s *Server) CancelOrder(_ context.Context, req *OrderRequest) (*SettlementResponse, error) {
	m, err := s.ex.Market(req.Market)
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := m.CancelOrder(req.Owner, orderbook.OrderID(req.OrderID))
	if err != nil {
		return nil, toStatus(err)
	}
	return fromSettlement(st), nil
}

func (s *Server) ClaimTokens(_ context.Context, req *OrderRequest) (*SettlementResponse, error) {
	m, err := s.ex.Market(req.Market)
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := m.ClaimTokens(req.Owner, orderbook.OrderID(req.OrderID))
	if err != nil {
		return nil, toStatus(err)
	}
	return fromSettlement(st), nil
}

// -------------------- Queries --------------------

func (s *Server) GetOrder(_ context.Context, req *OrderRequest) (*GetOrderResponse, error) {
	m, err := s.ex.Market(req.Market)
	if err != nil {
		return nil, toStatus(err)
	}
	v, err := m.GetOrder(orderbook.OrderID(req.OrderID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetOrderResponse{Order: fromView(v)}, nil
}

func (s *Server) GetDepth(_ context.Context, req *GetDepthRequest) (*GetDepthResponse, error) {
	m, err := s.ex.Market(req.Market)
	if err != nil {
		return nil, toStatus(err)
	}
	d := m.Depth(req.Levels)
	return &GetDepthResponse{
		Market: m.Name(),
		Seq:    m.Seq(),
		Bids:   fromLevels(d.Bids),
		Asks:   fromLevels(d.Asks),
	}, nil
}

// -------------------- Converters --------------------

// toStatus maps engine errors to gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, service.ErrUnknownMarket),
		errors.Is(err, orderbook.ErrOrderNotFound):
		code = codes.NotFound
	case errors.Is(err, orderbook.ErrWrongAsset),
		errors.Is(err, orderbook.ErrInvalidPrice),
		errors.Is(err, orderbook.ErrInvalidAmount):
		code = codes.InvalidArgument
	case errors.Is(err, service.ErrNotOwner):
		code = codes.PermissionDenied
	case errors.Is(err, service.ErrHalted):
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// maxDecimalLen caps decimal strings before they are parsed.
const maxDecimalLen = 96

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if len(s) > maxDecimalLen {
		return decimal.Decimal{}, status.Errorf(codes.InvalidArgument, "%s: longer than %d characters", field, maxDecimalLen)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, status.Errorf(codes.InvalidArgument, "%s: %v", field, err)
	}
	return d, nil
}

func parseBucket(b Bucket) (orderbook.Bucket, error) {
	amount, err := parseDecimal("funds", b.Amount)
	if err != nil {
		return orderbook.Bucket{}, err
	}
	return orderbook.Bucket{Asset: b.Asset, Amount: amount}, nil
}

func fromBucket(b orderbook.Bucket) Bucket {
	return Bucket{Asset: b.Asset, Amount: b.Amount.String()}
}

func fromView(v orderbook.OrderView) Order {
	return Order{
		ID:       uint64(v.ID),
		Side:     v.Side.String(),
		Price:    v.Price.String(),
		Amount:   v.Amount.String(),
		Filled:   v.Filled.String(),
		Proceeds: fromBucket(v.Proceeds),
		Owner:    v.Owner,
		Created:  v.Created,
	}
}

func fromSettlement(st orderbook.Settlement) *SettlementResponse {
	return &SettlementResponse{
		Proceeds:  fromBucket(st.Proceeds),
		Principal: fromBucket(st.Principal),
		Order:     fromView(st.Order),
		Burned:    st.Burned,
	}
}

func fromLevels(levels []orderbook.PriceLevel) []Level {
	out := make([]Level, 0, len(levels))
	for _, l := range levels {
		out = append(out, Level{Price: l.Price.String(), Amount: l.Amount.String(), Count: l.Count})
	}
	return out
}

// String renders a depth response for the CLI.
func (r *GetDepthResponse) String() string {
	s := fmt.Sprintf("%s @%d\n", r.Market, r.Seq)
	for i := len(r.Asks) - 1; i >= 0; i-- {
		s += fmt.Sprintf("  ask %s x %s (%d)\n", r.Asks[i].Price, r.Asks[i].Amount, r.Asks[i].Count)
	}
	for _, l := range r.Bids {
		s += fmt.Sprintf("  bid %s x %s (%d)\n", l.Price, l.Amount, l.Count)
	}
	return s
}

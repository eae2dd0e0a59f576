package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the Engine service over an existing connection.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	return grpc.NewClient(addr, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) CreateOrder(ctx context.Context, in *CreateOrderRequest) (*CreateOrderResponse, error) {
	out := new(CreateOrderResponse)
	if err := c.invoke(ctx, "CreateOrder", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, in *OrderRequest) (*SettlementResponse, error) {
	out := new(SettlementResponse)
	if err := c.invoke(ctx, "CancelOrder", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ClaimTokens(ctx context.Context, in *OrderRequest) (*SettlementResponse, error) {
	out := new(SettlementResponse)
	if err := c.invoke(ctx, "ClaimTokens", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, in *OrderRequest) (*GetOrderResponse, error) {
	out := new(GetOrderResponse)
	if err := c.invoke(ctx, "GetOrder", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetDepth(ctx context.Context, in *GetDepthRequest) (*GetDepthResponse, error) {
	out := new(GetDepthResponse)
	if err := c.invoke(ctx, "GetDepth", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

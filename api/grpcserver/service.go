package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "chainbook.v1.Engine"

// EngineServer is the server API for the Engine service.
type EngineServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	CancelOrder(context.Context, *OrderRequest) (*SettlementResponse, error)
	ClaimTokens(context.Context, *OrderRequest) (*SettlementResponse, error)
	GetOrder(context.Context, *OrderRequest) (*GetOrderResponse, error)
	GetDepth(context.Context, *GetDepthRequest) (*GetDepthResponse, error)
}

func RegisterEngineServer(s grpc.ServiceRegistrar, srv EngineServer) {
	s.RegisterService(&engineServiceDesc, srv)
}

// unary builds a method handler that decodes Req and calls call.
func unary[Req any, Resp any](
	method string,
	call func(EngineServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(
			srv interface{},
			ctx context.Context,
			dec func(interface{}) error,
			interceptor grpc.UnaryServerInterceptor,
		) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EngineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(EngineServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var engineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateOrder", EngineServer.CreateOrder),
		unary("CancelOrder", EngineServer.CancelOrder),
		unary("ClaimTokens", EngineServer.ClaimTokens),
		unary("GetOrder", EngineServer.GetOrder),
		unary("GetDepth", EngineServer.GetDepth),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chainbook/v1/engine",
}

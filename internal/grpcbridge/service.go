// Package grpcbridge carries the wire protocol over gRPC: requests travel as a
// unary Call and pushes arrive on a server-streaming Events call. Frames are
// encoded as JSON, so no generated stubs are needed.
package grpcbridge

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"pkt.systems/cxconsole/internal/wire"
)

const (
	serviceName    = "cxconsole.bridge.v1.Bridge"
	callMethod     = "/" + serviceName + "/Call"
	eventsMethod   = "/" + serviceName + "/Events"
	codecName      = "json"
	readyHeaderKey = "cx-subscribed"
)

// jsonCodec marshals gRPC messages as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

type subscribeRequest struct{}

type bridgeServer interface {
	Call(ctx context.Context, req *wire.Frame) (*wire.Frame, error)
	Events(req *subscribeRequest, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*bridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
	Metadata: "cxconsole/bridge/v1",
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.Frame)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bridgeServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bridgeServer).Call(ctx, req.(*wire.Frame))
	}
	return interceptor(ctx, in, info, handler)
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(subscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(bridgeServer).Events(in, stream)
}

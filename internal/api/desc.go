// Package api exposes the session daemon over gRPC.
//
// The service is described by hand: every request and response is a
// google.protobuf.Struct, so no generated stubs are needed and the default
// proto codec carries the messages.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wpp.bridge.v1.Bridge"

// Method names.
const (
	MethodGetStatus      = "GetStatus"
	MethodConnect        = "Connect"
	MethodDisconnect     = "Disconnect"
	MethodListChats      = "ListChats"
	MethodListMessages   = "ListMessages"
	MethodSendText       = "SendText"
	MethodGetConfig      = "GetConfig"
	MethodUpdateConfig   = "UpdateConfig"
	MethodGenerateToken  = "GenerateToken"
	MethodSetPin         = "SetPin"
	MethodSearchMessages = "SearchMessages"
	MethodWatch          = "Watch"
	MethodUnwatch        = "Unwatch"
	MethodWatchEvents    = "WatchEvents"
)

// BridgeServer is the server side of the Bridge service. *Service implements it.
type BridgeServer interface {
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Connect(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Disconnect(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListChats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendText(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetConfig(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateConfig(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetPin(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unwatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, grpc.ServerStream) error
}

type unaryFunc func(BridgeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(BridgeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(BridgeServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BridgeServer).WatchEvents(in, stream)
}

// ServiceDesc describes the Bridge service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetStatus, BridgeServer.GetStatus),
		unary(MethodConnect, BridgeServer.Connect),
		unary(MethodDisconnect, BridgeServer.Disconnect),
		unary(MethodListChats, BridgeServer.ListChats),
		unary(MethodListMessages, BridgeServer.ListMessages),
		unary(MethodSendText, BridgeServer.SendText),
		unary(MethodGetConfig, BridgeServer.GetConfig),
		unary(MethodUpdateConfig, BridgeServer.UpdateConfig),
		unary(MethodGenerateToken, BridgeServer.GenerateToken),
		unary(MethodSetPin, BridgeServer.SetPin),
		unary(MethodSearchMessages, BridgeServer.SearchMessages),
		unary(MethodWatch, BridgeServer.Watch),
		unary(MethodUnwatch, BridgeServer.Unwatch),
	},
	Streams: []grpc.StreamDesc{
		{StreamName: MethodWatchEvents, Handler: watchEventsHandler, ServerStreams: true},
	},
	Metadata: "wpp/bridge/v1/bridge.proto",
}

// Register attaches s to srv.
func Register(srv *grpc.Server, s BridgeServer) {
	srv.RegisterService(&ServiceDesc, s)
}

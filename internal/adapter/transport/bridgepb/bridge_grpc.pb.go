//go:build hostbridge

// Hand-written gRPC service definitions for the host bridge.
// Uses a JSON codec for wire format since we don't have protoc-generated code.

package bridgepb

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

func init() {
	// Calls select this codec via grpc.CallContentSubtype("json").
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

const (
	exchangeMethod  = "/shiplink.bridge.v1.HostBridge/Exchange"
	watchHostMethod = "/shiplink.bridge.v1.HostBridge/WatchHost"
)

// HostBridgeClient is the client API for HostBridge.
type HostBridgeClient interface {
	Exchange(ctx context.Context, opts ...grpc.CallOption) (HostBridge_ExchangeClient, error)
	WatchHost(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (HostBridge_WatchHostClient, error)
}

type hostBridgeClient struct {
	cc grpc.ClientConnInterface
}

// NewHostBridgeClient creates a new HostBridgeClient.
func NewHostBridgeClient(cc grpc.ClientConnInterface) HostBridgeClient {
	return &hostBridgeClient{cc}
}

func (c *hostBridgeClient) Exchange(ctx context.Context, opts ...grpc.CallOption) (HostBridge_ExchangeClient, error) {
	opts = append(opts, grpc.CallContentSubtype("json"))
	stream, err := c.cc.NewStream(ctx, &HostBridge_ServiceDesc.Streams[0], exchangeMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &hostBridgeExchangeClient{stream}, nil
}

// HostBridge_ExchangeClient is the client side of the Exchange stream.
type HostBridge_ExchangeClient interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ClientStream
}

type hostBridgeExchangeClient struct {
	grpc.ClientStream
}

func (x *hostBridgeExchangeClient) Send(m *Frame) error { return x.ClientStream.SendMsg(m) }

func (x *hostBridgeExchangeClient) Recv() (*Frame, error) {
	m := new(Frame)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *hostBridgeClient) WatchHost(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (HostBridge_WatchHostClient, error) {
	opts = append(opts, grpc.CallContentSubtype("json"))
	stream, err := c.cc.NewStream(ctx, &HostBridge_ServiceDesc.Streams[1], watchHostMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &hostBridgeWatchHostClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// HostBridge_WatchHostClient is the client side of the WatchHost stream.
type HostBridge_WatchHostClient interface {
	Recv() (*HostEvent, error)
	grpc.ClientStream
}

type hostBridgeWatchHostClient struct {
	grpc.ClientStream
}

func (x *hostBridgeWatchHostClient) Recv() (*HostEvent, error) {
	m := new(HostEvent)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// HostBridgeServer is the server API for HostBridge, implemented by the host process.
type HostBridgeServer interface {
	Exchange(HostBridge_ExchangeServer) error
	WatchHost(*WatchRequest, HostBridge_WatchHostServer) error
}

// RegisterHostBridgeServer registers the HostBridge with a gRPC server.
func RegisterHostBridgeServer(s grpc.ServiceRegistrar, srv HostBridgeServer) {
	s.RegisterService(&HostBridge_ServiceDesc, srv)
}

func _HostBridge_Exchange_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(HostBridgeServer).Exchange(&hostBridgeExchangeServer{stream})
}

// HostBridge_ExchangeServer is the server side of the Exchange stream.
type HostBridge_ExchangeServer interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ServerStream
}

type hostBridgeExchangeServer struct {
	grpc.ServerStream
}

func (x *hostBridgeExchangeServer) Send(m *Frame) error { return x.ServerStream.SendMsg(m) }

func (x *hostBridgeExchangeServer) Recv() (*Frame, error) {
	m := new(Frame)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _HostBridge_WatchHost_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(WatchRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(HostBridgeServer).WatchHost(m, &hostBridgeWatchHostServer{stream})
}

// HostBridge_WatchHostServer is the server side of the WatchHost stream.
type HostBridge_WatchHostServer interface {
	Send(*HostEvent) error
	grpc.ServerStream
}

type hostBridgeWatchHostServer struct {
	grpc.ServerStream
}

func (x *hostBridgeWatchHostServer) Send(m *HostEvent) error { return x.ServerStream.SendMsg(m) }

// HostBridge_ServiceDesc is the grpc.ServiceDesc for HostBridge.
var HostBridge_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "shiplink.bridge.v1.HostBridge",
	HandlerType: (*HostBridgeServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       _HostBridge_Exchange_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "WatchHost",
			Handler:       _HostBridge_WatchHost_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "bridge.proto",
}

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ChannelServiceServer is implemented by the control-plane adapter
// registered against a *grpc.Server. Equivalent to what
// protoc-gen-go-grpc would generate from a service definition naming
// these three RPCs.
type ChannelServiceServer interface {
	ListChannels(ctx context.Context, req *ListChannelsRequest) (*ListChannelsResponse, error)
	TrackChannel(ctx context.Context, req *TrackChannelRequest) (*TrackChannelResponse, error)
	UntrackChannel(ctx context.Context, req *UntrackChannelRequest) (*UntrackChannelResponse, error)
}

// RegisterChannelServiceServer registers srv against s under the
// service descriptor below.
func RegisterChannelServiceServer(s *grpc.Server, srv ChannelServiceServer) {
	s.RegisterService(&channelServiceDesc, srv)
}

func channelServiceListChannelsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListChannelsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChannelServiceServer).ListChannels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stitch.ChannelService/ListChannels"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChannelServiceServer).ListChannels(ctx, req.(*ListChannelsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func channelServiceTrackChannelHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(TrackChannelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChannelServiceServer).TrackChannel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stitch.ChannelService/TrackChannel"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChannelServiceServer).TrackChannel(ctx, req.(*TrackChannelRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func channelServiceUntrackChannelHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UntrackChannelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChannelServiceServer).UntrackChannel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stitch.ChannelService/UntrackChannel"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChannelServiceServer).UntrackChannel(ctx, req.(*UntrackChannelRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var channelServiceDesc = grpc.ServiceDesc{
	ServiceName: "stitch.ChannelService",
	HandlerType: (*ChannelServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListChannels", Handler: channelServiceListChannelsHandler},
		{MethodName: "TrackChannel", Handler: channelServiceTrackChannelHandler},
		{MethodName: "UntrackChannel", Handler: channelServiceUntrackChannelHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stitch/channel.proto",
}

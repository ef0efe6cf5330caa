package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kzh/stitch/internal/channel"
)

// server adapts channel.Service to the ChannelServiceServer contract,
// translating its sentinel errors into RPC status codes.
type server struct {
	svc *channel.Service
}

// NewServer builds a *grpc.Server with the control-plane service
// registered against svc.
func NewServer(svc *channel.Service) *grpc.Server {
	s := grpc.NewServer()
	RegisterChannelServiceServer(s, &server{svc: svc})
	return s
}

func (s *server) ListChannels(ctx context.Context, _ *ListChannelsRequest) (*ListChannelsResponse, error) {
	channels, err := s.svc.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]Channel, len(channels))
	for i, c := range channels {
		out[i] = Channel{ID: c.ID, Name: c.Name}
	}
	return &ListChannelsResponse{Channels: out}, nil
}

func (s *server) TrackChannel(ctx context.Context, req *TrackChannelRequest) (*TrackChannelResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	if _, err := s.svc.Track(ctx, req.Name); err != nil {
		return nil, mapError(err)
	}
	return &TrackChannelResponse{}, nil
}

func (s *server) UntrackChannel(ctx context.Context, req *UntrackChannelRequest) (*UntrackChannelResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	if err := s.svc.Untrack(ctx, req.Name); err != nil {
		return nil, mapError(err)
	}
	return &UntrackChannelResponse{}, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, channel.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, channel.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, channel.ErrInternal):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}

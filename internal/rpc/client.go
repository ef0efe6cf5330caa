package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial opens a client connection to a ChannelServiceServer at target,
// defaulting every call to the JSON codec registered in codec.go.
func Dial(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
}

// Client is a thin typed wrapper over a ClientConn's three RPCs.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) ListChannels(ctx context.Context) (*ListChannelsResponse, error) {
	out := new(ListChannelsResponse)
	if err := c.conn.Invoke(ctx, "/stitch.ChannelService/ListChannels", &ListChannelsRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TrackChannel(ctx context.Context, name string) (*TrackChannelResponse, error) {
	out := new(TrackChannelResponse)
	if err := c.conn.Invoke(ctx, "/stitch.ChannelService/TrackChannel", &TrackChannelRequest{Name: name}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UntrackChannel(ctx context.Context, name string) (*UntrackChannelResponse, error) {
	out := new(UntrackChannelResponse)
	if err := c.conn.Invoke(ctx, "/stitch.ChannelService/UntrackChannel", &UntrackChannelRequest{Name: name}, out); err != nil {
		return nil, err
	}
	return out, nil
}

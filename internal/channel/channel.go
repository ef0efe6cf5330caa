// Package channel is the control-plane business logic: tracking and
// untracking broadcasters, backed by the persistent store, the
// upstream subscription calls, and an optional live reference to the
// webhook engine so that track/untrack also mutate its runtime channel
// table.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kzh/stitch/internal/model"
	"github.com/kzh/stitch/internal/store"
	"github.com/kzh/stitch/internal/twitch"
)

// Sentinel errors the RPC transport maps to status codes.
var (
	ErrAlreadyExists = errors.New("channel already tracked")
	ErrNotFound      = errors.New("channel not tracked")
	ErrInternal      = errors.New("internal error")
)

// engine is the subset of the webhook engine's control surface this
// service needs; kept as an interface so tests can substitute a fake
// without standing up the whole ingestion pipeline.
type engine interface {
	TrackChannel(channel model.Channel)
	UntrackChannel(ctx context.Context, channelID string)
}

// Service implements List/Track/Untrack.
type Service struct {
	store  *store.Store
	api    *twitch.Client
	engine engine

	mu    sync.Mutex
	names map[string]struct{}
}

// NewService loads the current channel set to seed the membership
// table used for the AlreadyExists/NotFound checks.
func NewService(ctx context.Context, st *store.Store, api *twitch.Client, eng engine) (*Service, error) {
	channels, err := st.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading channels: %w", err)
	}
	names := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		names[c.Name] = struct{}{}
	}
	return &Service{store: st, api: api, engine: eng, names: names}, nil
}

// List returns every tracked channel.
func (s *Service) List(ctx context.Context) ([]model.Channel, error) {
	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return channels, nil
}

// Track resolves name against the upstream API, persists it, subscribes
// to its events, and wires it into the live webhook engine.
func (s *Service) Track(ctx context.Context, name string) (model.Channel, error) {
	if !s.reserve(name) {
		return model.Channel{}, ErrAlreadyExists
	}

	twitchChannel, err := s.api.GetChannelByName(ctx, name)
	if err != nil {
		s.release(name)
		return model.Channel{}, fmt.Errorf("%w: resolving channel: %v", ErrInternal, err)
	}

	channel, err := s.store.TrackChannel(ctx, twitchChannel.Login, twitchChannel.DisplayName, twitchChannel.ID)
	if err != nil {
		s.release(name)
		return model.Channel{}, fmt.Errorf("%w: persisting channel: %v", ErrInternal, err)
	}

	if err := s.api.SubscribeChannel(ctx, twitchChannel.ID); err != nil {
		s.release(name)
		return model.Channel{}, fmt.Errorf("%w: subscribing channel: %v", ErrInternal, err)
	}

	if s.engine != nil {
		s.engine.TrackChannel(channel)
	}

	return channel, nil
}

// Untrack removes name from the store and upstream subscriptions, and
// tears down any live runtime state for it. The membership entry is
// released only after the store delete and unsubscribe succeed, so a
// failed untrack can be retried.
func (s *Service) Untrack(ctx context.Context, name string) error {
	if !s.tracked(name) {
		return ErrNotFound
	}

	channel, err := s.store.GetChannelByName(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: resolving channel: %v", ErrInternal, err)
	}

	if err := s.store.UntrackChannel(ctx, name); err != nil {
		return fmt.Errorf("%w: removing channel: %v", ErrInternal, err)
	}

	if err := s.api.UnsubscribeChannel(ctx, channel.ChannelID); err != nil {
		return fmt.Errorf("%w: unsubscribing channel: %v", ErrInternal, err)
	}

	s.release(name)

	if s.engine != nil {
		s.engine.UntrackChannel(ctx, channel.ChannelID)
	}

	return nil
}

// reserve claims name in the membership set, reporting false if it was
// already present.
func (s *Service) reserve(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.names[name]; exists {
		return false
	}
	s.names[name] = struct{}{}
	return true
}

// tracked reports whether name is currently in the membership set.
func (s *Service) tracked(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.names[name]
	return exists
}

// release removes name from the membership set, reporting false if it
// was already absent.
func (s *Service) release(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.names[name]; !exists {
		return false
	}
	delete(s.names, name)
	return true
}

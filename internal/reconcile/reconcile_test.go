package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kzh/stitch/internal/logger"
	"github.com/kzh/stitch/internal/twitch"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError, Format: "text"})
}

type fakeSubscriber struct {
	mu           sync.Mutex
	subs         []twitch.Subscription
	subscribed   []wantKey
	unsubscribed []string
	order        []string
	subscribeErr error
	getSubsErr   error
}

func (f *fakeSubscriber) GetSubscriptions(ctx context.Context, userID string) ([]twitch.Subscription, error) {
	if f.getSubsErr != nil {
		return nil, f.getSubsErr
	}
	return f.subs, nil
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, event, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, wantKey{broadcasterID: userID, eventType: event})
	f.order = append(f.order, "subscribe")
	return f.subscribeErr
}

func (f *fakeSubscriber) Unsubscribe(ctx context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, subscriptionID)
	f.order = append(f.order, "unsubscribe")
	return nil
}

func sub(id, status, eventType, broadcasterID string) twitch.Subscription {
	s := twitch.Subscription{ID: id, Status: status, Type: eventType}
	s.Condition.BroadcasterUserID = broadcasterID
	return s
}

func TestSync_CreatesMissingSubscriptions(t *testing.T) {
	f := &fakeSubscriber{}
	err := Sync(context.Background(), testLogger(), f, []string{"123"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []wantKey{
		{broadcasterID: "123", eventType: "stream.online"},
		{broadcasterID: "123", eventType: "channel.update"},
		{broadcasterID: "123", eventType: "stream.offline"},
	}, f.subscribed)
}

func TestSync_RemovesStaleAndExtraSubscriptions(t *testing.T) {
	f := &fakeSubscriber{
		subs: []twitch.Subscription{
			sub("stale-1", "webhook_callback_verification_failed", "stream.online", "123"),
			sub("extra-1", "enabled", "stream.online", "999"),
			sub("keep-1", "enabled", "stream.online", "123"),
			sub("keep-2", "enabled", "channel.update", "123"),
			sub("keep-3", "enabled", "stream.offline", "123"),
		},
	}
	err := Sync(context.Background(), testLogger(), f, []string{"123"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"stale-1", "extra-1"}, f.unsubscribed)
	assert.Empty(t, f.subscribed)
}

// A disabled subscription for a still-wanted pair is deleted before
// its replacement is created.
func TestSync_DeletesStaleBeforeCreating(t *testing.T) {
	f := &fakeSubscriber{
		subs: []twitch.Subscription{
			sub("stale-1", "webhook_callback_verification_failed", "stream.online", "123"),
		},
	}
	err := Sync(context.Background(), testLogger(), f, []string{"123"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"stale-1"}, f.unsubscribed)
	require.NotEmpty(t, f.order)
	assert.Equal(t, "unsubscribe", f.order[0])
	for _, op := range f.order[1:] {
		assert.Equal(t, "subscribe", op)
	}
}

func TestSync_SwallowsIndividualFailures(t *testing.T) {
	f := &fakeSubscriber{subscribeErr: fmt.Errorf("upstream rejected")}
	err := Sync(context.Background(), testLogger(), f, []string{"123"})
	require.NoError(t, err)
	// each of the 3 missing subscriptions gets one retry after its
	// first failure, so Subscribe is invoked twice per key.
	assert.Len(t, f.subscribed, 6)
}

func TestSync_PropagatesListError(t *testing.T) {
	f := &fakeSubscriber{getSubsErr: fmt.Errorf("boom")}
	err := Sync(context.Background(), testLogger(), f, []string{"123"})
	require.Error(t, err)
}

// Package reconcile brings Twitch EventSub subscriptions in line with
// the desired set of tracked channels: stale ones are deleted, missing
// ones created, extras deleted, with bounded concurrency and without
// letting one failure abort the rest.
package reconcile

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/kzh/stitch/internal/logger"
	"github.com/kzh/stitch/internal/twitch"
)

// concurrencyLimit bounds the number of in-flight subscribe/unsubscribe
// calls made during a single reconcile pass.
const concurrencyLimit = 10

// operationRetryBase is the delay before the single retry given to a
// failed subscribe/unsubscribe call. Every error is retried; the status
// code is not inspected.
const operationRetryBase = 500 * time.Millisecond

// Event names that every tracked channel needs a subscription for.
var eventTypes = []string{"stream.online", "channel.update", "stream.offline"}

type subscriber interface {
	GetSubscriptions(ctx context.Context, userID string) ([]twitch.Subscription, error)
	Subscribe(ctx context.Context, event, userID string) error
	Unsubscribe(ctx context.Context, subscriptionID string) error
}

type wantKey struct {
	broadcasterID string
	eventType     string
}

// Sync reconciles Twitch EventSub subscriptions against channelIDs, the
// full set of broadcaster ids that should currently be subscribed.
// Individual create/delete failures are logged and do not stop the
// rest of the pass.
func Sync(ctx context.Context, log *logger.Logger, api subscriber, channelIDs []string) error {
	subs, err := api.GetSubscriptions(ctx, "")
	if err != nil {
		return err
	}

	want := make(map[wantKey]struct{}, len(channelIDs)*len(eventTypes))
	for _, id := range channelIDs {
		for _, eventType := range eventTypes {
			want[wantKey{broadcasterID: id, eventType: eventType}] = struct{}{}
		}
	}

	var stale []twitch.Subscription
	have := make(map[wantKey]struct{}, len(subs))
	for _, sub := range subs {
		if sub.Status != "enabled" {
			stale = append(stale, sub)
			continue
		}
		have[wantKey{broadcasterID: sub.Condition.BroadcasterUserID, eventType: sub.Type}] = struct{}{}
	}

	var extra []twitch.Subscription
	for _, sub := range subs {
		if sub.Status != "enabled" {
			continue
		}
		if _, ok := want[wantKey{broadcasterID: sub.Condition.BroadcasterUserID, eventType: sub.Type}]; !ok {
			extra = append(extra, sub)
		}
	}

	var missing []wantKey
	for key := range want {
		if _, ok := have[key]; !ok {
			missing = append(missing, key)
		}
	}

	log.Info("reconciling subscriptions",
		"stale", len(stale), "missing", len(missing), "extra", len(extra))

	// Stale deletions run to completion first: a disabled subscription
	// for a still-wanted (user, event) pair also appears in missing,
	// and its create conflicts with the old subscription until the
	// delete lands.
	staleGroup, staleCtx := errgroup.WithContext(ctx)
	staleGroup.SetLimit(concurrencyLimit)
	for _, sub := range stale {
		sub := sub
		staleGroup.Go(func() error {
			if err := unsubscribeWithRetry(staleCtx, api, sub.ID); err != nil {
				log.Warn("failed to remove stale subscription", "subscription_id", sub.ID, "error", err)
			}
			return nil
		})
	}
	if err := staleGroup.Wait(); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrencyLimit)

	for _, sub := range extra {
		sub := sub
		group.Go(func() error {
			if err := unsubscribeWithRetry(groupCtx, api, sub.ID); err != nil {
				log.Warn("failed to remove extra subscription", "subscription_id", sub.ID, "error", err)
			}
			return nil
		})
	}

	for _, key := range missing {
		key := key
		group.Go(func() error {
			if err := subscribeWithRetry(groupCtx, api, key.eventType, key.broadcasterID); err != nil {
				log.Warn("failed to create subscription", "broadcaster_id", key.broadcasterID, "event_type", key.eventType, "error", err)
			}
			return nil
		})
	}

	return group.Wait()
}

// subscribeWithRetry and unsubscribeWithRetry give one retry to each
// failed create/delete call, whatever the error, over a short constant
// backoff.
func subscribeWithRetry(ctx context.Context, api subscriber, event, userID string) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(operationRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := api.Subscribe(ctx, event, userID); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func unsubscribeWithRetry(ctx context.Context, api subscriber, subscriptionID string) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(operationRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := api.Unsubscribe(ctx, subscriptionID); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Package webhook is the EventSub ingestion engine: the single HTTP
// route that receives Twitch deliveries, the runtime stream table that
// tracks currently-live channels, and the bootstrap sequence that
// seeds both from persisted state before the server starts accepting
// traffic.
package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kzh/stitch/internal/discord"
	"github.com/kzh/stitch/internal/logger"
	"github.com/kzh/stitch/internal/model"
	"github.com/kzh/stitch/internal/reconcile"
	"github.com/kzh/stitch/internal/store"
	"github.com/kzh/stitch/internal/taskgroup"
	"github.com/kzh/stitch/internal/ttlset"
	"github.com/kzh/stitch/internal/twitch"
)

// bootstrapConcurrency bounds the online handlers spawned while seeding
// live state at startup.
const bootstrapConcurrency = 40

// onlineTaskLimit bounds online handlers spawned from live notifications
// for the lifetime of the process.
const onlineTaskLimit = 40

// replayTTL is how long a message id is remembered to reject redelivery.
const replayTTL = 10 * time.Minute

// runtimeStream is the in-memory record of a currently-live broadcast.
// Its own mutex serializes update/offline handling for that one stream;
// the engine's streams map serializes presence (insert/remove) across
// channels.
type runtimeStream struct {
	mu sync.Mutex

	channelID       string
	streamID        string
	title           string
	category        string
	profileImageURL string
	startedAt       time.Time
	lastUpdated     time.Time
	messageID       uint64
	events          []model.UpdateEvent
}

// dataStore is the persistence surface the engine depends on, narrowed
// from *store.Store so handler logic can be driven in tests against an
// in-memory fake without a real Postgres connection.
type dataStore interface {
	ListChannels(ctx context.Context) ([]model.Channel, error)
	GetStreams(ctx context.Context, channelID string) ([]model.Stream, error)
	UpdateChannel(ctx context.Context, channelID, name, displayName string) error
	StartStream(ctx context.Context, streamID, channelID, title, category string, messageID int64, startedAt time.Time) error
	UpdateStream(ctx context.Context, streamID, title string, event model.UpdateEvent) error
	EndStream(ctx context.Context, streamID, finalTitle string, endedAt time.Time) error
	DeleteStream(ctx context.Context, streamID string) error
}

// twitchAPI is the upstream surface the engine depends on, narrowed from
// *twitch.Client for the same reason as dataStore above.
type twitchAPI interface {
	GetChannel(ctx context.Context, userID string) (twitch.Channel, error)
	GetStream(ctx context.Context, userID string, retryFetch bool) (twitch.Stream, error)
	GetStreams(ctx context.Context, userIDs []string) ([]twitch.Stream, error)
}

// Engine holds every piece of state the ingestion pipeline touches:
// the persistence and upstream clients, the chat publisher, the replay
// guard, the runtime channel/stream tables, and the bounded spawner for
// online handlers.
type Engine struct {
	store     dataStore
	api       twitchAPI
	publisher discord.Publisher
	dedup     *ttlset.Set
	tasks     *taskgroup.Group
	log       *logger.Logger
	secret    string

	channels sync.Map // channel_id (string) -> model.Channel
	streams  sync.Map // channel_id (string) -> *runtimeStream
}

// Config supplies the Engine's dependencies and the shared HMAC secret.
type Config struct {
	Store         *store.Store
	API           *twitch.Client
	Publisher     discord.Publisher
	Logger        *logger.Logger
	WebhookSecret string
}

// New constructs the engine and runs the bootstrap sequence: load
// tracked channels, load unfinished persisted streams, batch-fetch
// currently-live streams, seed runtime state for each (without
// re-publishing chat messages already on record), then reconcile
// subscriptions.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	e := &Engine{
		store:     cfg.Store,
		api:       cfg.API,
		publisher: cfg.Publisher,
		dedup:     ttlset.New(),
		tasks:     taskgroup.New(onlineTaskLimit),
		log:       cfg.Logger.WithComponent("webhook"),
		secret:    cfg.WebhookSecret,
	}

	channels, err := e.store.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading channels for bootstrap: %w", err)
	}
	channelIDs := make([]string, 0, len(channels))
	for _, c := range channels {
		e.channels.Store(c.ChannelID, c)
		channelIDs = append(channelIDs, c.ChannelID)
	}

	persisted, err := e.store.GetStreams(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("loading live streams for bootstrap: %w", err)
	}
	persistedByChannel := make(map[string]model.Stream, len(persisted))
	for _, s := range persisted {
		persistedByChannel[s.ChannelID] = s
	}

	if len(channelIDs) > 0 {
		live, err := e.api.GetStreams(ctx, channelIDs)
		if err != nil {
			return nil, fmt.Errorf("fetching live streams for bootstrap: %w", err)
		}

		bootstrapTasks := taskgroup.New(bootstrapConcurrency)
		for _, stream := range live {
			stream := stream
			var preload *model.Stream
			if p, ok := persistedByChannel[stream.UserID]; ok {
				if p.StreamID == stream.ID {
					preload = &p
				} else {
					// The previous stream never received its offline;
					// close the stale row with a synthetic end.
					if err := e.store.EndStream(ctx, p.StreamID, p.Title, stream.StartedAt); err != nil {
						e.log.Warn("failed to close stale stream row", "stream_id", p.StreamID, "error", err)
					}
				}
			}
			bootstrapTasks.Go(func() {
				e.handleOnline(ctx, stream.UserID, stream.StartedAt, &stream, preload, false)
			})
		}
		bootstrapTasks.Wait()
	}

	if err := reconcile.Sync(ctx, e.log, cfg.API, channelIDs); err != nil {
		e.log.Warn("startup reconcile failed", "error", err)
	}

	return e, nil
}

// Router builds the gin engine serving the single webhook route.
func (e *Engine) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/webhook/twitch", e.handleWebhook)
	return r
}

// Drain waits for every currently in-flight spawned online handler to
// finish, used during graceful shutdown.
func (e *Engine) Drain() {
	e.tasks.Wait()
}

// TrackChannel inserts channel into the runtime channel table and
// spawns a one-shot, non-retrying probe so an already-live broadcast
// is picked up without waiting for the next online event.
func (e *Engine) TrackChannel(channel model.Channel) {
	e.channels.Store(channel.ChannelID, channel)
	e.tasks.Go(func() {
		e.handleOnline(context.Background(), channel.ChannelID, time.Now().UTC(), nil, nil, false)
	})
}

// UntrackChannel removes channel from the runtime channel table and, if
// a runtime Stream is currently live for it, deletes its chat message
// and its persisted stream row.
func (e *Engine) UntrackChannel(ctx context.Context, channelID string) {
	e.channels.Delete(channelID)

	val, ok := e.streams.LoadAndDelete(channelID)
	if !ok {
		return
	}
	rs := val.(*runtimeStream)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := e.publisher.Delete(ctx, rs.messageID); err != nil {
		e.log.Warn("failed to delete chat message on untrack", "channel_id", channelID, "error", err)
	}
	if err := e.store.DeleteStream(ctx, rs.streamID); err != nil {
		e.log.Warn("failed to delete stream row on untrack", "channel_id", channelID, "error", err)
	}
}

func (e *Engine) trackedChannel(channelID string) (model.Channel, bool) {
	val, ok := e.channels.Load(channelID)
	if !ok {
		return model.Channel{}, false
	}
	return val.(model.Channel), true
}

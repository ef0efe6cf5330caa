package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kzh/stitch/internal/discord"
	stitcherrors "github.com/kzh/stitch/internal/errors"
	"github.com/kzh/stitch/internal/logger"
	"github.com/kzh/stitch/internal/model"
	"github.com/kzh/stitch/internal/stitchutil"
	"github.com/kzh/stitch/internal/twitch"
)

func (e *Engine) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		e.respondError(c, &stitcherrors.BadPayload{Detail: "failed to read request body"})
		return
	}

	timestamp, err := e.verify(c, body)
	if err != nil {
		e.respondError(c, err)
		return
	}

	switch c.GetHeader(headerMessageType) {
	case messageTypeVerification:
		var challenge struct {
			Challenge string `json:"challenge"`
		}
		if err := json.Unmarshal(body, &challenge); err != nil {
			e.respondError(c, &stitcherrors.BadPayload{Detail: "invalid challenge payload"})
			return
		}
		c.String(http.StatusOK, challenge.Challenge)

	case messageTypeNotification:
		if err := e.dispatchNotification(c.Request.Context(), body, timestamp); err != nil {
			e.respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)

	default:
		e.respondError(c, &stitcherrors.UnknownMessageType{Type: c.GetHeader(headerMessageType)})
	}
}

func (e *Engine) respondError(c *gin.Context, err error) {
	we, ok := err.(stitcherrors.WebhookError)
	if !ok {
		we = &stitcherrors.InternalServerError{Detail: err.Error()}
	}

	log := e.log.WithContext(c.Request.Context())
	if we.Loud() {
		log.Error("webhook request failed", "error", we.Error())
	} else if _, duplicate := we.(*stitcherrors.DuplicateMessageID); !duplicate {
		log.Warn("webhook request rejected", "error", we.Error())
	}

	c.String(we.Status(), we.Body())
}

type notificationEnvelope struct {
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

func (e *Engine) dispatchNotification(ctx context.Context, body []byte, timestamp time.Time) error {
	var env notificationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &stitcherrors.BadPayload{Detail: "invalid notification envelope"}
	}

	switch env.Subscription.Type {
	case "stream.online":
		var payload struct {
			BroadcasterUserID string `json:"broadcaster_user_id"`
		}
		if err := json.Unmarshal(env.Event, &payload); err != nil {
			return &stitcherrors.BadPayload{Detail: "invalid stream.online event"}
		}
		taskCtx := logger.WithOperation(context.Background(), "stream.online")
		e.tasks.Go(func() {
			e.handleOnline(taskCtx, payload.BroadcasterUserID, timestamp, nil, nil, true)
		})
		return nil

	case "channel.update":
		var payload struct {
			BroadcasterUserID string `json:"broadcaster_user_id"`
			Title             string `json:"title"`
			CategoryName      string `json:"category_name"`
		}
		if err := json.Unmarshal(env.Event, &payload); err != nil {
			return &stitcherrors.BadPayload{Detail: "invalid channel.update event"}
		}
		return e.handleUpdate(logger.WithOperation(ctx, "channel.update"), payload.BroadcasterUserID, payload.Title, payload.CategoryName, timestamp)

	case "stream.offline":
		var payload struct {
			BroadcasterUserID string `json:"broadcaster_user_id"`
		}
		if err := json.Unmarshal(env.Event, &payload); err != nil {
			return &stitcherrors.BadPayload{Detail: "invalid stream.offline event"}
		}
		return e.handleOffline(logger.WithOperation(ctx, "stream.offline"), payload.BroadcasterUserID, timestamp)

	default:
		e.log.Warn("unhandled eventsub subscription type", "type", env.Subscription.Type)
		return nil
	}
}

// handleOnline publishes the live card and creates runtime and
// persistent stream state. When stream is non-nil (bootstrap, which
// already resolved one) the live fetch is skipped; when persisted is non-nil the chat message and event
// history are taken from it rather than publishing and persisting
// anew. retryStreamFetch selects the upstream's retry schedule for the
// live-fetch case.
func (e *Engine) handleOnline(ctx context.Context, broadcasterUserID string, verificationTimestamp time.Time, stream *twitch.Stream, persisted *model.Stream, retryStreamFetch bool) {
	stub := &runtimeStream{channelID: broadcasterUserID}
	if _, loaded := e.streams.LoadOrStore(broadcasterUserID, stub); loaded {
		return
	}

	channel, tracked := e.trackedChannel(broadcasterUserID)
	if !tracked {
		e.streams.Delete(broadcasterUserID)
		return
	}
	ctx = logger.WithChannel(ctx, channel.Name)
	log := e.log.WithContext(ctx)

	twitchChannel, err := e.api.GetChannel(ctx, broadcasterUserID)
	if err != nil {
		log.Warn("failed to fetch channel profile for online event", "channel_id", broadcasterUserID, "error", err)
		e.streams.Delete(broadcasterUserID)
		return
	}

	live := twitch.Stream{}
	if stream != nil {
		live = *stream
	} else {
		fetched, err := e.api.GetStream(ctx, broadcasterUserID, retryStreamFetch)
		if err != nil {
			log.Warn("failed to fetch live stream for online event", "channel_id", broadcasterUserID, "error", err)
			e.streams.Delete(broadcasterUserID)
			return
		}
		live = fetched
	}

	if twitchChannel.Login != channel.Name || twitchChannel.DisplayName != channel.DisplayName {
		if err := e.store.UpdateChannel(ctx, broadcasterUserID, twitchChannel.Login, twitchChannel.DisplayName); err != nil {
			log.Warn("failed to persist channel rename", "channel_id", broadcasterUserID, "error", err)
		}
		channel.Name = twitchChannel.Login
		channel.DisplayName = twitchChannel.DisplayName
		e.channels.Store(broadcasterUserID, channel)
	}

	display := stitchutil.DisplayName(channel.DisplayName, channel.Name)
	twitchURL := fmt.Sprintf("https://twitch.tv/%s", channel.Name)

	var messageID uint64
	var events []model.UpdateEvent
	var streamID string
	var startedAt time.Time

	if persisted != nil {
		messageID = uint64(persisted.MessageID)
		events = persisted.Events
		streamID = persisted.StreamID
		startedAt = persisted.StartedAt
	} else {
		embed := discord.Embed{
			Title:       fmt.Sprintf("**%s** is live!", display),
			Description: live.Title,
			Thumbnail:   &discord.EmbedImage{URL: twitchChannel.ProfileImageURL},
			Color:       discord.ColorLive,
			URL:         twitchURL,
			Fields:      []discord.EmbedField{{Value: fmt.Sprintf("» %s", live.GameName)}},
		}
		sentID, err := e.publisher.Send(ctx, discord.Message{Embed: embed})
		if err != nil {
			log.Warn("failed to publish live chat card", "channel_id", broadcasterUserID, "error", err)
			e.streams.Delete(broadcasterUserID)
			return
		}
		messageID = sentID
		events = []model.UpdateEvent{{Title: live.Title, Category: live.GameName, Timestamp: verificationTimestamp}}
		streamID = live.ID
		startedAt = verificationTimestamp
	}

	rs := &runtimeStream{
		channelID:       broadcasterUserID,
		streamID:        streamID,
		title:           live.Title,
		category:        live.GameName,
		profileImageURL: twitchChannel.ProfileImageURL,
		startedAt:       startedAt,
		lastUpdated:     verificationTimestamp,
		messageID:       messageID,
		events:          events,
	}
	if persisted != nil {
		rs.title = persisted.Title
		if n := len(events); n > 0 {
			rs.category = events[n-1].Category
		}
	}
	e.streams.Store(broadcasterUserID, rs)

	if persisted == nil {
		if err := e.store.StartStream(ctx, streamID, broadcasterUserID, live.Title, live.GameName, int64(messageID), verificationTimestamp); err != nil {
			log.Error("failed to persist start_stream", "channel_id", broadcasterUserID, "error", err)
		}
	}
}

// handleUpdate applies a title/category change to the runtime stream,
// appends the event to the persisted history, and edits the chat card
// in place. Runs inline on the request's own goroutine.
func (e *Engine) handleUpdate(ctx context.Context, broadcasterUserID, title, category string, timestamp time.Time) error {
	val, ok := e.streams.Load(broadcasterUserID)
	if !ok {
		return nil
	}
	rs := val.(*runtimeStream)

	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.title = title
	rs.category = category
	rs.lastUpdated = timestamp
	event := model.UpdateEvent{Title: title, Category: category, Timestamp: timestamp}
	rs.events = append(rs.events, event)

	if err := e.store.UpdateStream(ctx, rs.streamID, title, event); err != nil {
		return &stitcherrors.DatabaseError{Err: err}
	}

	channel, _ := e.trackedChannel(broadcasterUserID)
	display := stitchutil.DisplayName(channel.DisplayName, channel.Name)
	embed := discord.Embed{
		Title:       fmt.Sprintf("**%s** is live!", display),
		Description: title,
		Thumbnail:   &discord.EmbedImage{URL: rs.profileImageURL},
		Color:       discord.ColorLive,
		URL:         fmt.Sprintf("https://twitch.tv/%s", channel.Name),
		Fields:      []discord.EmbedField{{Value: fmt.Sprintf("» %s", category)}},
	}
	if err := e.publisher.Edit(ctx, rs.messageID, discord.Message{Embed: embed}); err != nil {
		e.log.WithContext(ctx).Warn("failed to edit chat card on update", "channel_id", broadcasterUserID, "error", err)
	}
	return nil
}

// handleOffline removes the runtime stream, tallies its event history
// to pick the winning title and top categories, edits the chat card to
// its ended state, and closes the persisted row. Runs inline on the
// request's own goroutine.
func (e *Engine) handleOffline(ctx context.Context, broadcasterUserID string, timestamp time.Time) error {
	val, ok := e.streams.LoadAndDelete(broadcasterUserID)
	if !ok {
		return nil
	}
	rs := val.(*runtimeStream)

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if len(rs.events) == 0 {
		e.log.WithContext(ctx).Warn("stream went offline with no recorded events", "channel_id", broadcasterUserID)
		return nil
	}

	events := make([]model.UpdateEvent, len(rs.events), len(rs.events)+1)
	copy(events, rs.events)
	events = append(events, model.UpdateEvent{Title: rs.title, Category: rs.category, Timestamp: timestamp})
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	title, categories := stitchutil.Tally(events)
	label := stitchutil.CategoryLabel(categories)
	elapsed := stitchutil.HumanDuration(rs.startedAt, timestamp)

	channel, _ := e.trackedChannel(broadcasterUserID)
	display := stitchutil.DisplayName(channel.DisplayName, channel.Name)

	embed := discord.Embed{
		Title:       fmt.Sprintf("**%s** streamed for %s", display, elapsed),
		Description: title,
		Thumbnail:   &discord.EmbedImage{URL: rs.profileImageURL},
		Color:       discord.ColorEnded,
		URL:         fmt.Sprintf("https://twitch.tv/%s", channel.Name),
		Fields:      []discord.EmbedField{{Value: label}},
	}
	if err := e.publisher.Edit(ctx, rs.messageID, discord.Message{Embed: embed}); err != nil {
		e.log.WithContext(ctx).Warn("failed to edit chat card to ended state", "channel_id", broadcasterUserID, "error", err)
	}

	if err := e.store.EndStream(ctx, rs.streamID, title, timestamp); err != nil {
		return &stitcherrors.DatabaseError{Err: err}
	}
	return nil
}

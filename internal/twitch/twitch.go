// Package twitch is the upstream API client: authenticated Helix REST
// access for users, streams, and eventsub subscriptions, with request
// batching, cursor pagination, and a fixed retry schedule for the
// just-went-live stream lookup.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	oauthURL        = "https://id.twitch.tv/oauth2/token"
	helixUsersURL   = "https://api.twitch.tv/helix/users"
	helixStreamsURL = "https://api.twitch.tv/helix/streams"
	eventSubURL     = "https://api.twitch.tv/helix/eventsub/subscriptions"

	streamChunkSize = 100
	maxBodyEcho     = 256
)

// streamFetchRetryDelays is the fixed backoff schedule for get_stream's
// retry mode: five waits between six total attempts.
var streamFetchRetryDelays = []time.Duration{
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
}

// NotFoundError marks an empty Helix response where one row was expected.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Resource)
}

// Channel is the Helix user/channel shape consumed by this engine.
type Channel struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Stream is the Helix stream shape consumed by this engine.
type Stream struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserLogin string    `json:"user_login"`
	UserName  string    `json:"user_name"`
	GameID    string    `json:"game_id"`
	GameName  string    `json:"game_name"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// Subscription is one eventsub subscription entry.
type Subscription struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	Condition struct {
		BroadcasterUserID string `json:"broadcaster_user_id"`
	} `json:"condition"`
}

type channelsResponse struct {
	Data []Channel `json:"data"`
}

type streamsResponse struct {
	Data []Stream `json:"data"`
}

type subscriptionResponse struct {
	Data       []Subscription `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Client is an authenticated Helix + EventSub API client.
type Client struct {
	clientID      string
	accessToken   string
	webhookURL    string
	webhookSecret string
	httpClient    *http.Client

	// Base endpoints, overridable in tests; default to the real Helix hosts.
	usersURL    string
	streamsURL  string
	eventSubURL string
}

// New acquires an OAuth2 client-credentials token and returns a ready client.
func New(ctx context.Context, clientID, clientSecret, webhookURL, webhookSecret string) (*Client, error) {
	httpClient := &http.Client{}
	token, err := getAccessToken(ctx, httpClient, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	return &Client{
		clientID:      clientID,
		accessToken:   token,
		webhookURL:    webhookURL,
		webhookSecret: webhookSecret,
		httpClient:    httpClient,
		usersURL:      helixUsersURL,
		streamsURL:    helixStreamsURL,
		eventSubURL:   eventSubURL,
	}, nil
}

func getAccessToken(ctx context.Context, httpClient *http.Client, clientID, clientSecret string) (string, error) {
	q := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("building oauth token request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting oauth token: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twitch returned non-2xx for oauth token: %d: %s", resp.StatusCode, truncate(string(body), maxBodyEcho))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decoding oauth token response: %w", err)
	}
	return tok.AccessToken, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func (c *Client) authenticatedRequest(ctx context.Context, method, rawURL string, query url.Values, body io.Reader) (*http.Request, error) {
	full := rawURL
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Client-Id", c.clientID)
	return req, nil
}

func sendJSON[T any](c *Client, req *http.Request, opCtx string) (T, error) {
	var zero T
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", opCtx, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		body = []byte(fmt.Sprintf("(failed to read body: %v)", readErr))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, fmt.Errorf("%s: twitch %d: %s", opCtx, resp.StatusCode, truncate(string(body), maxBodyEcho))
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return zero, fmt.Errorf("%s: %w", opCtx, err)
	}
	return out, nil
}

// GetChannel returns the channel for userID, or a *NotFoundError if empty.
func (c *Client) GetChannel(ctx context.Context, userID string) (Channel, error) {
	req, err := c.authenticatedRequest(ctx, http.MethodGet, c.usersURL, url.Values{"id": {userID}}, nil)
	if err != nil {
		return Channel{}, err
	}
	resp, err := sendJSON[channelsResponse](c, req, "fetch channel by user_id")
	if err != nil {
		return Channel{}, err
	}
	if len(resp.Data) == 0 {
		return Channel{}, &NotFoundError{Resource: fmt.Sprintf("user_id=%s", userID)}
	}
	return resp.Data[0], nil
}

// GetChannelByName returns the channel for login, or a *NotFoundError if empty.
func (c *Client) GetChannelByName(ctx context.Context, login string) (Channel, error) {
	req, err := c.authenticatedRequest(ctx, http.MethodGet, c.usersURL, url.Values{"login": {login}}, nil)
	if err != nil {
		return Channel{}, err
	}
	resp, err := sendJSON[channelsResponse](c, req, "fetch channel by username")
	if err != nil {
		return Channel{}, err
	}
	if len(resp.Data) == 0 {
		return Channel{}, &NotFoundError{Resource: fmt.Sprintf("login=%s", login)}
	}
	return resp.Data[0], nil
}

// GetStream returns the current live stream for userID. When
// retryFetch is true it walks the fixed {15,30,60,120,300}s schedule,
// returning the first non-empty result; otherwise it makes one
// attempt. A stream is often not observable through Helix for a short
// window after its online event fires, hence the long schedule.
func (c *Client) GetStream(ctx context.Context, userID string, retryFetch bool) (Stream, error) {
	delays := []time.Duration{0}
	if retryFetch {
		delays = append(delays, streamFetchRetryDelays...)
	}

	var lastErr error
	for attempt, delay := range delays {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Stream{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		stream, err := c.fetchStream(ctx, userID)
		if err == nil {
			return stream, nil
		}
		lastErr = err
	}
	return Stream{}, fmt.Errorf("fetching stream for user_id=%s: %w", userID, lastErr)
}

func (c *Client) fetchStream(ctx context.Context, userID string) (Stream, error) {
	req, err := c.authenticatedRequest(ctx, http.MethodGet, c.streamsURL, url.Values{"user_id": {userID}}, nil)
	if err != nil {
		return Stream{}, err
	}
	resp, err := sendJSON[streamsResponse](c, req, "fetch stream by user_id")
	if err != nil {
		return Stream{}, err
	}
	if len(resp.Data) == 0 {
		return Stream{}, &NotFoundError{Resource: fmt.Sprintf("user_id=%s", userID)}
	}
	return resp.Data[0], nil
}

// GetStreams batch-looks-up streams, chunking userIDs at 100 per request.
func (c *Client) GetStreams(ctx context.Context, userIDs []string) ([]Stream, error) {
	var streams []Stream
	for start := 0; start < len(userIDs); start += streamChunkSize {
		end := start + streamChunkSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		chunk := userIDs[start:end]

		q := url.Values{}
		for _, id := range chunk {
			q.Add("user_id", id)
		}
		req, err := c.authenticatedRequest(ctx, http.MethodGet, c.streamsURL, q, nil)
		if err != nil {
			return nil, err
		}
		resp, err := sendJSON[streamsResponse](c, req, "fetch streams by user_ids")
		if err != nil {
			return nil, err
		}
		streams = append(streams, resp.Data...)
	}
	return streams, nil
}

// Subscribe creates one eventsub subscription for event on userID.
func (c *Client) Subscribe(ctx context.Context, event, userID string) error {
	payload := map[string]interface{}{
		"type":      event,
		"version":   "1",
		"condition": map[string]string{"broadcaster_user_id": userID},
		"transport": map[string]string{
			"method":   "webhook",
			"callback": fmt.Sprintf("https://%s/webhook/twitch", c.webhookURL),
			"secret":   c.webhookSecret,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling subscribe payload: %w", err)
	}
	req, err := c.authenticatedRequest(ctx, http.MethodPost, c.eventSubURL, nil, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = sendJSON[map[string]interface{}](c, req, "create subscription")
	return err
}

// SubscribeChannel subscribes to the three events this engine needs for userID.
func (c *Client) SubscribeChannel(ctx context.Context, userID string) error {
	for _, event := range []string{"stream.online", "channel.update", "stream.offline"} {
		if err := c.Subscribe(ctx, event, userID); err != nil {
			return fmt.Errorf("subscribing %s for %s: %w", event, userID, err)
		}
	}
	return nil
}

// Unsubscribe deletes a subscription by id.
func (c *Client) Unsubscribe(ctx context.Context, subscriptionID string) error {
	req, err := c.authenticatedRequest(ctx, http.MethodDelete, c.eventSubURL, url.Values{"id": {subscriptionID}}, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending unsubscribe request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("twitch returned non-2xx while unsubscribing: %d: %s", resp.StatusCode, truncate(string(body), maxBodyEcho))
	}
	return nil
}

// UnsubscribeChannel removes every subscription for userID.
func (c *Client) UnsubscribeChannel(ctx context.Context, userID string) error {
	subs, err := c.GetSubscriptions(ctx, userID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := c.Unsubscribe(ctx, sub.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetSubscriptions paginates over eventsub subscriptions, optionally
// filtered server-side by userID (pass "" for all).
func (c *Client) GetSubscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	var subscriptions []Subscription
	cursor := ""
	for {
		q := url.Values{}
		if userID != "" {
			q.Set("user_id", userID)
		}
		if cursor != "" {
			q.Set("after", cursor)
		}
		req, err := c.authenticatedRequest(ctx, http.MethodGet, c.eventSubURL, q, nil)
		if err != nil {
			return nil, err
		}
		resp, err := sendJSON[subscriptionResponse](c, req, "fetch subscriptions")
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, resp.Data...)
		if resp.Pagination.Cursor == "" {
			break
		}
		cursor = resp.Pagination.Cursor
	}
	return subscriptions, nil
}

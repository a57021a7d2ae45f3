package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/live-caption-translator/internal/cache"
	"github.com/MimeLyc/live-caption-translator/internal/config"
	"github.com/MimeLyc/live-caption-translator/internal/protocol"
	"github.com/MimeLyc/live-caption-translator/internal/service"
	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

const (
	clientRequestTimeout = 10 * time.Second
	clientPushBuffer     = 32
)

// Client talks to a remote Server. Once connected it is a protocol.Channel
// whose pushes arrive on the event stream.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
	logger   *log.Logger

	streamCtx context.Context
	cancel    context.CancelFunc
	pushes    chan protocol.Push
	done      chan struct{}
	closeOnce sync.Once
}

var _ protocol.Channel = (*Client)(nil)

// NewClient returns a client for the admin endpoints. Call Connect before
// using it as a channel.
func NewClient(baseURL string, clientID string) *Client {
	streamCtx, cancel := context.WithCancel(context.Background())
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		clientID:  clientID,
		http:      &http.Client{Timeout: clientRequestTimeout},
		logger:    log.Named("httpclient"),
		streamCtx: streamCtx,
		cancel:    cancel,
		pushes:    make(chan protocol.Push, clientPushBuffer),
	}
}

// Dial connects a new client and returns once the server has subscribed it.
func Dial(ctx context.Context, baseURL string, clientID string) (*Client, error) {
	c := NewClient(baseURL, clientID)
	if err := c.Connect(ctx); err != nil {
		c.cancel()
		return nil, err
	}
	return c, nil
}

// Connect opens the event stream for the client id.
func (c *Client) Connect(ctx context.Context) error {
	if c.done != nil {
		return nil
	}
	req, err := http.NewRequestWithContext(c.streamCtx, http.MethodGet,
		c.baseURL+"/api/events?client_id="+url.QueryEscape(c.clientID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// A cancelled ctx aborts the handshake. The stream itself lives until Close.
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return protocol.WrapError(err, protocol.ErrChannelFailure, "open event stream")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return decodeError(resp)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != connectedComment {
		resp.Body.Close()
		if err == nil {
			err = fmt.Errorf("unexpected first line %q", strings.TrimSpace(line))
		}
		return protocol.WrapError(err, protocol.ErrChannelFailure, "open event stream")
	}
	if !stop() {
		resp.Body.Close()
		return protocol.WrapError(ctx.Err(), protocol.ErrChannelFailure, "open event stream")
	}

	c.done = make(chan struct{})
	go c.readStream(resp.Body, reader)
	return nil
}

func (c *Client) readStream(body io.ReadCloser, reader *bufio.Reader) {
	defer close(c.done)
	defer close(c.pushes)
	defer body.Close()

	var data strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if c.streamCtx.Err() == nil {
				c.logger.Warn("Event stream for %s ended: %v", c.clientID, err)
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var push protocol.Push
			if err := json.Unmarshal([]byte(data.String()), &push); err != nil {
				c.logger.Warn("Dropping malformed push: %v", err)
			} else {
				select {
				case c.pushes <- push:
				case <-c.streamCtx.Done():
					return
				}
			}
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment or keepalive
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (c *Client) RequestTranslate(ctx context.Context, text string) (protocol.Ack, error) {
	var ack protocol.Ack
	err := c.do(ctx, http.MethodPost, "/api/translate", protocol.TranslateRequest{
		Action:   protocol.ActionTranslate,
		ClientID: c.clientID,
		Text:     text,
	}, &ack)
	if err != nil {
		return protocol.Ack{}, err
	}
	if !ack.Accepted() {
		return ack, protocol.NewError(protocol.ErrChannelFailure, fmt.Sprintf("unexpected ack status %q", ack.Status))
	}
	return ack, nil
}

func (c *Client) HasAPIKey(ctx context.Context) (bool, error) {
	var resp apiKeyResponse
	if err := c.do(ctx, http.MethodGet, "/api/apikey", nil, &resp); err != nil {
		return false, err
	}
	return resp.HasAPIKey, nil
}

func (c *Client) Pushes() <-chan protocol.Push {
	return c.pushes
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.done != nil {
			<-c.done
		}
	})
	return nil
}

func (c *Client) Settings(ctx context.Context) (service.SettingsView, error) {
	var view service.SettingsView
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &view)
	return view, err
}

func (c *Client) UpdateSettings(ctx context.Context, u config.SettingsUpdate) (service.SettingsView, error) {
	var view service.SettingsView
	err := c.do(ctx, http.MethodPut, "/api/settings", u, &view)
	return view, err
}

func (c *Client) Stats(ctx context.Context) (service.StatsReport, error) {
	var report service.StatsReport
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &report)
	return report, err
}

func (c *Client) Status(ctx context.Context) (service.StatusReport, error) {
	var resp statusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp.Status, err
}

func (c *Client) CacheEntries(ctx context.Context) ([]cache.Entry, error) {
	var entries []cache.Entry
	err := c.do(ctx, http.MethodGet, "/api/cache", nil, &entries)
	return entries, err
}

func (c *Client) ClearCache(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/cache", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.WrapError(err, protocol.ErrChannelFailure, fmt.Sprintf("%s %s", method, path))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return protocol.WrapError(err, protocol.ErrChannelFailure, "decode response")
	}
	return nil
}

// decodeError rebuilds the protocol error sent by the server. Provider
// failures surface as channel failures since the request never got an ack.
func decodeError(resp *http.Response) error {
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return protocol.NewError(protocol.ErrChannelFailure, fmt.Sprintf("server returned status %d", resp.StatusCode))
	}
	kind := body.Kind
	if kind == "" || kind == protocol.ErrTransportFailure {
		kind = protocol.ErrChannelFailure
	}
	return protocol.NewError(kind, body.Error)
}

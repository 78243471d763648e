// Package client is the typed wrapper over the portal REST API used by the
// CLI and by any Go front-end.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/cesfam/portal/internal/platform/scheduling"
)

// listLimit is the page size requested for every list call; it matches the
// server's maximum page size.
const listLimit = 100

type Client struct {
	base       string
	http       *http.Client
	session    *Session
	logger     zerolog.Logger
	now        func() time.Time
	slotLength time.Duration
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout bounds every request. Zero keeps the transport default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides the time used to decide what "today" is.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSlotLength sets the granularity used when slots are resolved locally.
func WithSlotLength(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.slotLength = d
		}
	}
}

// New returns a client for the API rooted at baseURL ("http://host/api").
// The session may be nil for anonymous calls.
func New(baseURL string, session *Session, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		http:       &http.Client{},
		session:    session,
		logger:     zerolog.Nop(),
		now:        time.Now,
		slotLength: scheduling.DefaultSlotLength,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Session() *Session { return c.session }

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		if tok := c.session.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", op).Str("url", u).Msg("request failed")
		return networkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := httpError(op, resp.StatusCode, data)
		c.logger.Debug().Str("op", op).Int("status", fe.Status).Str("detail", fe.Message).Msg("request rejected")
		return fe
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return decodeError(op, err)
	}
	return nil
}

// listBody accepts either a bare JSON array or a paginated envelope.
type listBody[T any] []T

func (l *listBody[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var env struct {
		Results *[]T `json:"results"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Results == nil {
		return errors.New("response has no results")
	}
	*l = *env.Results
	return nil
}

func getList[T any](ctx context.Context, c *Client, op, path string, q url.Values) ([]T, error) {
	if q == nil {
		q = url.Values{}
	}
	if q.Get("limit") == "" {
		q.Set("limit", strconv.Itoa(listLimit))
	}
	var out listBody[T]
	if err := c.do(ctx, op, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return []T{}, nil
	}
	return out, nil
}

func setIf(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

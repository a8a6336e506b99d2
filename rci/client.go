// CLAUDE:SUMMARY HTTP client for the router RCI endpoint: one POST per CLI command, session cookies copied from the browser.
// Package rci is the command channel to a Keenetic router's RCI endpoint.
//
// One command is one POST of [{"parse": "<command>"}] to <router>/rci/.
// Session credentials are whatever cookies the browsing context holds; the
// client copies them from a CookieSource before every request. There is no
// retry here: callers own their own cadence.
package rci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// maxReplyBody caps how much of a reply is read (4 MiB).
const maxReplyBody int64 = 4 << 20

// CookieSource returns the session cookies to present to the router.
type CookieSource func(ctx context.Context) ([]*http.Cookie, error)

// Client sends CLI commands to the router.
type Client struct {
	base    *url.URL
	rciURL  string
	referer string
	client  *http.Client
	cookies CookieSource
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its CheckRedirect and
// Jar are overwritten: redirects must surface as errors.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithCookieSource sets where session cookies come from.
func WithCookieSource(src CookieSource) Option {
	return func(cl *Client) { cl.cookies = src }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithTimeout sets the per-request timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.client.Timeout = d }
}

// New creates a Client for the router at baseURL (e.g. http://192.168.1.1).
func New(baseURL, rciPath string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("rci: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("rci: base url %q needs scheme and host", baseURL)
	}
	if rciPath == "" {
		rciPath = "/rci/"
	}
	rciURL := base.ResolveReference(&url.URL{Path: rciPath})

	c := &Client{
		base:    base,
		rciURL:  rciURL.String(),
		referer: base.ResolveReference(&url.URL{Path: "/webcli/parse"}).String(),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("rci: cookie jar: %w", err)
	}
	c.client.Jar = jar
	c.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c, nil
}

// URL returns the RCI endpoint the client posts to.
func (c *Client) URL() string { return c.rciURL }

type parseRequest struct {
	Parse string `json:"parse"`
}

// Send posts one command and returns the decoded JSON reply body.
// A 3xx reply is reported as a TransportError matching ErrSessionExpired;
// any other non-2xx status as a plain TransportError.
func (c *Client) Send(ctx context.Context, command string) (json.RawMessage, error) {
	reply, err := c.send(ctx, command)
	if err != nil {
		c.logger.Error("rci: command failed", "command", command, "error", err)
		return nil, err
	}
	return reply, nil
}

func (c *Client) send(ctx context.Context, command string) (json.RawMessage, error) {
	body, err := json.Marshal([]parseRequest{{Parse: command}})
	if err != nil {
		return nil, fmt.Errorf("rci: marshal: %w", err)
	}

	if c.cookies != nil {
		cookies, err := c.cookies(ctx)
		if err != nil {
			return nil, &TransportError{Command: command, Err: fmt.Errorf("cookie source: %w", err)}
		}
		if len(cookies) > 0 {
			c.client.Jar.SetCookies(c.base, cookies)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rciURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rci: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", c.referer)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Command: command, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, &TransportError{
			Command:    command,
			Status:     resp.StatusCode,
			Redirected: true,
			Location:   resp.Header.Get("Location"),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Command: command, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	if err != nil {
		return nil, &TransportError{Command: command, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if !json.Valid(data) {
		return nil, &ParseError{Command: command, Reason: "reply is not JSON"}
	}
	return json.RawMessage(data), nil
}

// ReadLines sends a read command and returns the message lines of its reply.
func (c *Client) ReadLines(ctx context.Context, command string) ([]string, error) {
	raw, err := c.Send(ctx, command)
	if err != nil {
		return nil, err
	}
	lines, err := Messages(raw)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Command = command
		}
		c.logger.Error("rci: parse reply failed", "command", command, "error", err)
		return nil, err
	}
	return lines, nil
}

type parseReply struct {
	Parse *struct {
		Message *[]string `json:"message"`
	} `json:"parse"`
}

// Messages decodes a read-command reply of the form
// [{"parse": {"message": ["line", ...]}}].
func Messages(raw json.RawMessage) ([]string, error) {
	var replies []parseReply
	if err := json.Unmarshal(raw, &replies); err != nil {
		return nil, &ParseError{Reason: "reply is not an array of parse results", Err: err}
	}
	if len(replies) == 0 {
		return nil, &ParseError{Reason: "empty reply"}
	}
	first := replies[0]
	if first.Parse == nil || first.Parse.Message == nil {
		return nil, &ParseError{Reason: "reply has no parse.message"}
	}
	return *first.Parse.Message, nil
}

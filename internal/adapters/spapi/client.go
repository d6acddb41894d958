// Package spapi is a small client for the Selling Partner reports API and
// the Login with Amazon token exchange. It makes exactly one attempt per
// call; retries and breaking are the caller's job
package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/logger"
)

const (
	endpointDefault = "https://sellingpartnerapi-na.amazon.com"
	defaultTimeout  = 30 * time.Second
	defaultUA       = "mixshift/1.0 (Language=Go)"
	maxErrBody      = 2048
)

// Operation names a paced API operation
type Operation string

// Paced operations
const (
	OpCreateReport      Operation = "createReport"
	OpGetReport         Operation = "getReport"
	OpGetReportDocument Operation = "getReportDocument"
)

// Pace is a token bucket shape
type Pace struct {
	Rate  rate.Limit
	Burst int
}

// DefaultPaces are the published usage plans for the reports API
var DefaultPaces = map[Operation]Pace{
	OpCreateReport:      {Rate: 0.0167, Burst: 15},
	OpGetReport:         {Rate: 2, Burst: 15},
	OpGetReportDocument: {Rate: 0.0167, Burst: 15},
}

// Options configures the Client
type Options struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration
	Paces     map[Operation]Pace
	HTTP      *http.Client
}

// Client talks to the reports API
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	now   func() time.Time
	mu    sync.Mutex
	paces map[string]*rate.Limiter
}

// NewClient creates a Client with defaults filled in
func NewClient(o Options) *Client {
	if o.Endpoint == "" {
		o.Endpoint = endpointDefault
	}
	o.Endpoint = strings.TrimRight(o.Endpoint, "/")
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Paces == nil {
		o.Paces = DefaultPaces
	}
	hc := o.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	return &Client{
		http:  hc,
		opts:  o,
		log:   *logger.Named("spapi"),
		now:   time.Now,
		paces: map[string]*rate.Limiter{},
	}
}

// limiter returns the bucket for op and seller, creating it on first use
func (c *Client) limiter(op Operation, seller string) *rate.Limiter {
	key := string(op) + ":" + seller
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.paces[key]
	if !ok {
		p, found := c.opts.Paces[op]
		if !found {
			p = Pace{Rate: rate.Inf}
		}
		l = rate.NewLimiter(p.Rate, max(p.Burst, 1))
		c.paces[key] = l
	}
	return l
}

// do sends one request and decodes a 2xx JSON body into out
func (c *Client) do(ctx context.Context, op Operation, call Call, method, path string, in, out any) error {
	if err := c.limiter(op, call.SellerID).Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeJSON, "spapi encode request")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.Endpoint+path, body)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "spapi new request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-amz-access-token", call.AccessToken)
	req.Header.Set("x-amz-date", c.now().UTC().Format("20060102T150405Z"))
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return perr.Wrapf(err, perr.ErrorCodeUpstream, "spapi %s failed", op)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug().
		Str("op", string(op)).
		Str("seller_id", call.SellerID).
		Int("status", resp.StatusCode).
		Dur("latency", c.now().Sub(start)).
		Str("request_id", resp.Header.Get("x-amzn-RequestId")).
		Msg("spapi http response")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeJSON, "spapi decode %s", op)
		}
		return nil
	}
	return statusError(op, resp)
}

// statusError maps a non-2xx response onto a coded error
func statusError(op Operation, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	msg := strings.TrimSpace(string(raw))
	var ae apiErrors
	if json.Unmarshal(raw, &ae) == nil && len(ae.Errors) > 0 {
		msg = ae.Errors[0].Code + ": " + ae.Errors[0].Message
	}
	var code perr.ErrorCode
	switch s := resp.StatusCode; {
	case s == http.StatusUnauthorized:
		code = perr.ErrorCodeUnauthorized
	case s == http.StatusForbidden:
		code = perr.ErrorCodeForbidden
	case s == http.StatusTooManyRequests:
		code = perr.ErrorCodeTooManyRequests
	case s == http.StatusNotFound:
		code = perr.ErrorCodeNotFound
	case s >= 500:
		code = perr.ErrorCodeUpstream
	default:
		code = perr.ErrorCodeInvalidArgument
	}
	return perr.Newf(code, "spapi %s status %d: %s", op, resp.StatusCode, msg)
}

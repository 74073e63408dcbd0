package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	json "github.com/goccy/go-json"
)

// DefaultTimeout bounds one feed retrieval when the Spec does not set its own.
const DefaultTimeout = 15 * time.Second

// Client fetches raw feed payloads over HTTP. It builds the underlying HTTP
// client once and reuses it across fetches; it holds no per-feed state and is
// safe for concurrent use.
type Client struct {
	http *resty.Client
}

// NewClient creates a Client with the given User-Agent. Retries are left
// disabled: retry policy belongs to the caller, and the aggregator treats a
// failed feed as a missing reading rather than retrying it.
func NewClient(userAgent string) *Client {
	c := resty.New().
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json, text/plain")
	return &Client{http: c}
}

// Fetch performs one bounded-time retrieval of spec's URL and decodes the
// body into the payload shape the spec declares. On timeout, non-2xx status,
// transport error, or an undecodable body it returns an *UnavailableError.
func (c *Client) Fetch(ctx context.Context, spec Spec) (Payload, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.http.R().SetContext(ctx).Get(spec.URL)
	if err != nil {
		return nil, &UnavailableError{FeedID: spec.ID, Cause: fmt.Errorf("http get: %w", err)}
	}
	if resp.IsError() {
		return nil, &UnavailableError{FeedID: spec.ID, Cause: fmt.Errorf("unexpected status %d", resp.StatusCode())}
	}

	payload, err := Decode(spec.Shape, resp.Body())
	if err != nil {
		return nil, &UnavailableError{FeedID: spec.ID, Cause: err}
	}
	return payload, nil
}

// Decode parses raw bytes into the payload type for shape.
func Decode(shape Shape, body []byte) (Payload, error) {
	switch shape {
	case ShapeTabular:
		var rows TabularRows
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode tabular body: %w", err)
		}
		return rows, nil

	case ShapeRecords:
		var recs RecordStream
		if err := json.Unmarshal(body, &recs); err != nil {
			return nil, fmt.Errorf("decode record body: %w", err)
		}
		return recs, nil

	case ShapeText:
		lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")
		return PlainText(lines), nil

	default:
		return nil, fmt.Errorf("unknown payload shape %q", shape)
	}
}

package usage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/bleedingdev/usagedeck/internal/util"
)

// maxAuthRetries bounds retries on HTTP 401 before the failure is folded
// into an ErrorRecord.
const maxAuthRetries = 2

// Client fetches usage for a single credential from the remote metering API.
type Client struct {
	url        string
	httpClient *http.Client

	// retryDelay is the base backoff unit for 401 retries; attempt n waits
	// (n+1) * retryDelay. Overridden in tests.
	retryDelay time.Duration
}

// NewClient creates a fetch client for the given endpoint. timeout caps one
// HTTP round trip; zero means 30s.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		retryDelay: time.Second,
	}
}

// Fetch retrieves usage for one credential. Failures never propagate as
// errors; they are folded into the ErrorRecord variant so a batch of fetches
// always settles with one result per credential.
func (c *Client) Fetch(ctx context.Context, id, secret string) Result {
	return c.fetch(ctx, id, secret, 0)
}

func (c *Client) fetch(ctx context.Context, id, secret string, attempt int) Result {
	masked := util.MaskKey(secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return ErrorRecord{ID: id, MaskedSecret: masked, Error: "fetch failed"}
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithFields(log.Fields{"id": id, "key": masked}).WithError(err).Warn("Usage fetch failed")
		return ErrorRecord{ID: id, MaskedSecret: masked, Error: "fetch failed"}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && attempt < maxAuthRetries {
		wait := time.Duration(attempt+1) * c.retryDelay
		log.WithFields(log.Fields{"id": id, "attempt": attempt + 1, "wait": wait}).Debug("Retrying after 401")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ErrorRecord{ID: id, MaskedSecret: masked, Error: "fetch failed"}
		}
		return c.fetch(ctx, id, secret, attempt+1)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrorRecord{ID: id, MaskedSecret: masked, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrorRecord{ID: id, MaskedSecret: masked, Error: "fetch failed"}
	}

	parsed := gjson.ParseBytes(body)
	u := parsed.Get("usage")
	if !u.IsObject() {
		return ErrorRecord{ID: id, MaskedSecret: masked, Error: "invalid response"}
	}

	used := u.Get("used").Int()
	allowance := u.Get("allowance").Int()
	ratio := 0.0
	if allowance > 0 {
		ratio = float64(used) / float64(allowance)
	}

	return UsageRecord{
		ID:           id,
		MaskedSecret: masked,
		WindowStart:  normalizeDate(u.Get("window_start")),
		WindowEnd:    normalizeDate(u.Get("window_end")),
		Used:         used,
		Allowance:    allowance,
		UsedRatio:    ratio,
		secret:       secret,
	}
}

// normalizeDate renders a timestamp field as YYYY-MM-DD. Missing fields
// become "N/A" and unparsable ones "invalid date"; it never fails.
func normalizeDate(v gjson.Result) string {
	if !v.Exists() || v.String() == "" {
		return "N/A"
	}
	s := v.String()
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	// Some APIs report epoch seconds or milliseconds.
	if v.Type == gjson.Number {
		n := v.Int()
		if n > 1e12 {
			n /= 1000
		}
		if n > 0 {
			return time.Unix(n, 0).UTC().Format("2006-01-02")
		}
	}
	return "invalid date"
}

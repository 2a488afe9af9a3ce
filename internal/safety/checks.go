package safety

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

// Check scores one risk dimension of a candidate mint. Scores are 0..1,
// higher is safer.
type Check interface {
	Name() string
	Run(ctx context.Context, mint string) (float64, error)
}

// httpCheck queries a scoring service over HTTP. The response body is JSON
// with a top-level "score" field; anything else is a check failure.
type httpCheck struct {
	name    string
	baseURL string
	client  *http.Client
}

func newHTTPCheck(name, baseURL string, timeout time.Duration) *httpCheck {
	return &httpCheck{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpCheck) Name() string { return c.name }

func (c *httpCheck) Run(ctx context.Context, mint string) (float64, error) {
	u := fmt.Sprintf("%s?mint=%s", c.baseURL, url.QueryEscape(mint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%s: status %d", c.name, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%s: read body: %w", c.name, err)
	}
	score := gjson.GetBytes(body, "score")
	if !score.Exists() {
		return 0, fmt.Errorf("%s: response missing score", c.name)
	}
	return score.Float(), nil
}

// Package weather provides the best-effort weather lookup used to enrich
// query documents with real-world context.
//
// The lookup service is an external HTTP collaborator: it takes a date and
// a geodetic position and answers with current conditions or an error.
// Callers treat every failure as a graceful degradation; a query must never
// fail because weather data was unavailable.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/isearch-project/musebag/internal/log"
)

// ErrNoData indicates the service had no weather data for the requested
// location and time. Checked with errors.Is by callers that want to
// distinguish "nothing known" from transport failures.
var ErrNoData = errors.New("no weather data available")

// DefaultTimeout bounds a single lookup when the caller supplies no HTTP
// client of its own.
const DefaultTimeout = 30 * time.Second

// Data is the weather fragment returned by the lookup service.
type Data struct {
	Condition   string `json:"condition"`
	Temperature string `json:"temperature"`
	Wind        string `json:"wind"`
	Humidity    string `json:"humidity"`
}

// Client calls the external weather lookup service.
type Client struct {
	http    *http.Client
	baseURL string
	logger  log.Logger
}

// NewClient creates a weather client for the service at baseURL.
// httpClient may be nil; a client with DefaultTimeout is used then.
func NewClient(baseURL string, httpClient *http.Client, logger log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// NormalizeDate converts the request's ISO-like timestamp into the format
// the lookup service expects: the T separator becomes a space, the trailing
// .000Z is stripped, and date separators become dots.
func NormalizeDate(datetime string) string {
	s := strings.ReplaceAll(datetime, "T", " ")
	s = strings.ReplaceAll(s, ".000Z", "")
	return strings.ReplaceAll(s, "-", ".")
}

// NormalizePosition reduces a raw space-separated geodetic position to the
// two leading coordinate components, zeroing anything beyond them. The
// lookup service only understands latitude/longitude pairs.
func NormalizePosition(position string) string {
	parts := strings.Fields(position)
	for i := 2; i < len(parts); i++ {
		parts[i] = "0"
	}
	return strings.Join(parts, " ")
}

// fetchResponse is the service's JSON answer: either data or an error field.
type fetchResponse struct {
	Data
	Error string `json:"error"`
}

// Fetch looks up weather conditions for the given request timestamp and raw
// position. Both values are normalized here, so callers pass them through
// unchanged from the query.
func (c *Client) Fetch(ctx context.Context, datetime, position string) (Data, error) {
	params := url.Values{}
	params.Set("date", NormalizeDate(datetime))
	params.Set("location", NormalizePosition(position))

	reqURL := c.baseURL + "/fetchWeather?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Data{}, fmt.Errorf("building weather request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Data{}, fmt.Errorf("weather lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Data{}, fmt.Errorf("reading weather response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Data{}, fmt.Errorf("weather lookup: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed fetchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Data{}, fmt.Errorf("decoding weather response: %w", err)
	}
	if parsed.Error != "" {
		return Data{}, fmt.Errorf("%w: %s", ErrNoData, parsed.Error)
	}

	c.logger.Debug("weather lookup succeeded",
		"condition", parsed.Condition,
		"temperature", parsed.Temperature,
	)
	return parsed.Data, nil
}

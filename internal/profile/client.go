// Package profile is the client for the external authentication and
// personalisation service. It validates user credentials, stores profile
// attributes and records search history for authenticated users.
package profile

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

// ErrRemote indicates the profile service answered with an error field.
var ErrRemote = errors.New("profile service error")

// DefaultTimeout bounds a single call when the caller supplies no HTTP
// client of its own.
const DefaultTimeout = 30 * time.Second

// User is the profile returned by a successful credential validation.
// Raw carries the service's complete user object for relaying to the
// client untouched.
type User struct {
	ID       json.Number `json:"ID"`
	Email    string      `json:"Email"`
	Settings string      `json:"Settings"`

	Raw json.RawMessage `json:"-"`
}

// Client calls the external authentication/personalisation service.
type Client struct {
	http    *http.Client
	baseURL string
	logger  log.Logger
}

// NewClient creates a client for the service at baseURL. httpClient may be
// nil; a client with DefaultTimeout is used then.
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

// validateResponse wraps the user object or an error field.
type validateResponse struct {
	User  json.RawMessage `json:"user"`
	Error string          `json:"error"`
}

// ValidateUser checks the given credentials and returns the user profile on
// success.
func (c *Client) ValidateUser(ctx context.Context, email, pw string) (*User, error) {
	params := url.Values{}
	params.Set("f", "validateUser")
	params.Set("email", email)
	params.Set("pw", pw)

	body, err := c.call(ctx, http.MethodGet, params, nil)
	if err != nil {
		return nil, err
	}

	var parsed validateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding validate response: %w", err)
	}
	if parsed.User == nil {
		if parsed.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRemote, parsed.Error)
		}
		return nil, fmt.Errorf("%w: no user in response", ErrRemote)
	}

	var user User
	if err := json.Unmarshal(parsed.User, &user); err != nil {
		return nil, fmt.Errorf("decoding user object: %w", err)
	}
	user.Raw = parsed.User

	c.logger.Debug("user validated", "id", user.ID.String())
	return &user, nil
}

// statusResponse is the generic success-or-error answer of the service.
type statusResponse struct {
	Success json.RawMessage `json:"success"`
	Error   string          `json:"error"`
}

// StoreProfileData persists one profile attribute value for an
// authenticated user.
func (c *Client) StoreProfileData(ctx context.Context, userID, data string) error {
	form := url.Values{
		"f":      {"profileData"},
		"userid": {userID},
		"data":   {data},
	}
	return c.postStatus(ctx, form)
}

// UpdateSearchHistory records a completed query and its result items in the
// user's search history. query and items are JSON-encoded.
func (c *Client) UpdateSearchHistory(ctx context.Context, userID, queryJSON, itemsJSON string) error {
	form := url.Values{
		"f":      {"updateSearchHistory"},
		"userid": {userID},
		"query":  {queryJSON},
		"items":  {itemsJSON},
	}
	return c.postStatus(ctx, form)
}

// postStatus posts a form call and interprets the success/error envelope.
func (c *Client) postStatus(ctx context.Context, form url.Values) error {
	body, err := c.call(ctx, http.MethodPost, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	var parsed statusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decoding profile response: %w", err)
	}
	if parsed.Success == nil {
		if parsed.Error != "" {
			return fmt.Errorf("%w: %s", ErrRemote, parsed.Error)
		}
		return fmt.Errorf("%w: no success in response", ErrRemote)
	}
	return nil
}

// call performs one HTTP round trip and returns the response body.
func (c *Client) call(ctx context.Context, method string, params url.Values, body io.Reader) ([]byte, error) {
	reqURL := c.baseURL
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling profile service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading profile response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("profile service: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

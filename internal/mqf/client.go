// Package mqf is the client for the external multimodal query formulation
// service. It submits composed query documents and relays uploaded media
// items to the service's ingestion endpoint.
package mqf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/isearch-project/musebag/internal/log"
)

// ErrRemote indicates the query formulator answered with an error field.
// The wrapped message carries the service's error text.
var ErrRemote = errors.New("query formulator error")

// DefaultTimeout bounds a single call when the caller supplies no HTTP
// client of its own.
const DefaultTimeout = 30 * time.Second

// Operation names understood by the query formulator.
const (
	opSubmitQuery    = "submitQuery"
	opStoreQueryItem = "storeQueryItem"
)

// Client calls the external query formulation service.
type Client struct {
	http    *http.Client
	baseURL string
	tmpURL  string
	logger  log.Logger
}

// NewClient creates a client for the service at baseURL. tmpURL is the
// locally servable URL prefix under which uploaded originals remain
// reachable after distribution. httpClient may be nil; a client with
// DefaultTimeout is used then.
func NewClient(baseURL, tmpURL string, httpClient *http.Client, logger log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		tmpURL:  strings.TrimRight(tmpURL, "/"),
		logger:  logger,
	}
}

// submitResponse is the service's answer to a query submission.
type submitResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// SubmitQuery submits a rendered RUCoD document and its optional RWML
// companion. options is the session's Settings JSON, passed through
// verbatim. The raw result payload is returned for relaying to the client.
func (c *Client) SubmitQuery(ctx context.Context, rucodDoc, rwmlDoc, sessionID, options string) (json.RawMessage, error) {
	form := url.Values{
		"f":       {opSubmitQuery},
		"rucod":   {rucodDoc},
		"rwml":    {rwmlDoc},
		"session": {sessionID},
		"options": {options},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submitting query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading submit response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("submitting query: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed submitResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding submit response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, parsed.Error)
	}

	c.logger.Debug("query submitted", "session", sessionID)
	return parsed.Result, nil
}

// storeResponse is the ingestion endpoint's answer to a distribution.
type storeResponse struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Distribute relays the file behind item to the ingestion endpoint and, on
// success, rewrites the item's identity in place: Path becomes the external
// file reference, OriginPath the locally servable URL of the original
// bytes, and an unset Subtype defaults to the empty string.
//
// Precondition: each UploadItem is distributed at most once. A second call
// would resolve Path against the external reference instead of local
// storage, so already-rewritten items are rejected. On any error the item
// is left untouched.
func (c *Client) Distribute(ctx context.Context, sessionID string, item *UploadItem) error {
	if item.OriginPath != "" {
		return fmt.Errorf("item %s already distributed", item.Name)
	}

	data, err := os.ReadFile(item.Path)
	if err != nil {
		return fmt.Errorf("reading upload %s: %w", item.Path, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"f":        opStoreQueryItem,
		"session":  sessionID,
		"fileName": item.Name,
		"fileSize": strconv.FormatInt(item.Size, 10),
		"fileType": item.Type,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return fmt.Errorf("writing field %s: %w", name, err)
		}
	}

	part, err := mw.CreateFormFile("file", item.Name)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("writing file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &buf)
	if err != nil {
		return fmt.Errorf("building distribute request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("distributing %s: %w", item.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading distribute response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("distributing %s: http %d: %s", item.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed storeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decoding distribute response: %w", err)
	}
	if parsed.Error != "" {
		return fmt.Errorf("%w: %s", ErrRemote, parsed.Error)
	}

	item.OriginPath = c.tmpURL + "/" + path.Base(item.Path)
	item.Path = parsed.File
	// Subtype stays as declared; it only needs to exist on the wire.

	c.logger.Debug("query item distributed",
		"session", sessionID,
		"file", item.Path,
		"origin", item.OriginPath,
	)
	return nil
}

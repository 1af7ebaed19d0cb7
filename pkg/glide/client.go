// Package glide is the client for the Glide table API: paginated row
// fetches with rate-limit backoff, plus the table/column discovery calls
// used when configuring mappings.
package glide

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/logging"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
	"github.com/rowsync-inc/rowsync-engine/pkg/retry"
)

// maxBackoffDelay caps the doubling schedule between attempts; a 429
// Retry-After hint may still exceed it.
const maxBackoffDelay = 30 * time.Second

// HTTPClient interface for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds client tuning. Zero values fall back to defaults.
type Config struct {
	BaseURL        string
	MaxRetries     int
	RetryBaseDelay time.Duration
	PageLimit      int
}

// TablePage is one page of rows for a table. Next is the opaque continuation
// token for the following page; empty means the table is exhausted.
type TablePage struct {
	Rows []models.GlideRow
	Next string
}

// TableInfo describes one table visible to a connection.
type TableInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ColumnInfo describes one column of a Glide table, with the type inferred
// from sampled row values. Glide does not expose a schema endpoint, so
// columns are derived from the first page of data.
type ColumnInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Client talks to the Glide API. It is purely functional: no state beyond
// the HTTP calls, and no pacing between pages (the orchestrator owns the
// inter-page courtesy delay).
type Client struct {
	cfg        Config
	httpClient HTTPClient
	logger     *zap.Logger
}

// NewClient creates a Glide API client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
}

// NewClientWithHTTP creates a client with a custom HTTP client (for testing).
func NewClientWithHTTP(cfg Config, httpClient HTTPClient, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.glideapp.io/api"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.PageLimit == 0 {
		cfg.PageLimit = 1000
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("glide-client"),
	}
}

type tableQuery struct {
	TableName string `json:"tableName"`
	StartAt   string `json:"startAt,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type queryTablesRequest struct {
	AppID   string       `json:"appID"`
	Queries []tableQuery `json:"queries"`
}

type queryTablesResult struct {
	Rows []models.GlideRow `json:"rows"`
	Next string            `json:"next,omitempty"`
}

// FetchPage requests one page of rows for tableName. startAt is the opaque
// continuation token from the previous page; empty means first page. Rate
// limiting (429) honors the Retry-After hint when present, otherwise an
// exponential backoff starting at RetryBaseDelay and doubling per attempt.
// Exhausting the retry ceiling returns an *APIError classified RATE_LIMIT or
// API_ERROR, which aborts the owning run.
func (c *Client) FetchPage(ctx context.Context, conn *models.Connection, tableName, startAt string) (*TablePage, error) {
	body, err := json.Marshal(queryTablesRequest{
		AppID: conn.AppID,
		Queries: []tableQuery{{
			TableName: tableName,
			StartAt:   startAt,
			Limit:     c.cfg.PageLimit,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	respBody, err := c.doWithRetry(ctx, conn, http.MethodPost, c.cfg.BaseURL+"/function/queryTables", body)
	if err != nil {
		return nil, err
	}

	// The response carries one result per query; we always send exactly one.
	var results []queryTablesResult
	if err := json.Unmarshal(respBody, &results); err != nil {
		return nil, &APIError{
			Kind:    models.ErrorTypeAPI,
			Message: fmt.Sprintf("unexpected queryTables response shape: %v", err),
		}
	}
	if len(results) == 0 {
		return &TablePage{}, nil
	}

	return &TablePage{Rows: results[0].Rows, Next: results[0].Next}, nil
}

// TestConnection verifies the connection's credentials by listing tables.
func (c *Client) TestConnection(ctx context.Context, conn *models.Connection) error {
	_, err := c.ListTables(ctx, conn)
	return err
}

// ListTables returns the tables visible to the connection's app.
func (c *Client) ListTables(ctx context.Context, conn *models.Connection) ([]TableInfo, error) {
	body, err := json.Marshal(map[string]string{"appID": conn.AppID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	respBody, err := c.doWithRetry(ctx, conn, http.MethodPost, c.cfg.BaseURL+"/function/listTables", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Tables []TableInfo `json:"tables"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &APIError{
			Kind:    models.ErrorTypeAPI,
			Message: fmt.Sprintf("unexpected listTables response shape: %v", err),
		}
	}
	return result.Tables, nil
}

// GetTableColumns derives column descriptors for a table by sampling its
// first page of rows. Types are inferred from the sampled values; columns
// absent from every sampled row are invisible here, which mirrors how the
// source behaves for fully empty columns.
func (c *Client) GetTableColumns(ctx context.Context, conn *models.Connection, tableName string) ([]ColumnInfo, error) {
	page, err := c.FetchPage(ctx, conn, tableName, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var columns []ColumnInfo
	for _, row := range page.Rows {
		for key, value := range row {
			if seen[key] {
				continue
			}
			seen[key] = true
			columns = append(columns, ColumnInfo{
				ID:   key,
				Name: key,
				Type: inferType(value),
			})
		}
	}
	return columns, nil
}

func inferType(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	default:
		return "string"
	}
}

// doWithRetry issues the request through the shared backoff loop, retrying
// on 429, non-2xx and transport failures up to the configured ceiling. A 429
// Retry-After hint replaces the wait for that attempt only; the backoff
// schedule keeps doubling underneath it. The request body is re-sent on
// every attempt.
func (c *Client) doWithRetry(ctx context.Context, conn *models.Connection, method, url string, body []byte) ([]byte, error) {
	cfg := &retry.Config{
		MaxRetries:   c.cfg.MaxRetries,
		InitialDelay: c.cfg.RetryBaseDelay,
		MaxDelay:     maxBackoffDelay,
		Multiplier:   2.0,
	}

	attempt := 0
	var lastErr error
	respBody, err := retry.DoWithResult(ctx, cfg, func() ([]byte, error) {
		if attempt > 0 {
			c.logger.Warn("Retrying Glide request",
				zap.Int("attempt", attempt),
				zap.String("reason", logging.SanitizeError(lastErr)))
		}
		attempt++

		b, err := c.doOnce(ctx, conn, method, url, body)
		lastErr = err
		return b, err
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			apiErr.Message = fmt.Sprintf("%s (after %d retries)", apiErr.Message, c.cfg.MaxRetries)
		}
		return nil, err
	}
	return respBody, nil
}

// doOnce performs a single attempt and classifies its failure.
func (c *Client) doOnce(ctx context.Context, conn *models.Connection, method, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, &APIError{
			Kind:    models.ErrorTypeAPI,
			Message: fmt.Sprintf("failed to build request: %v", err),
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+conn.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{
			Kind:    models.ErrorTypeNetwork,
			Message: fmt.Sprintf("request failed: %v", err),
		}
	}

	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &APIError{
			Kind:       models.ErrorTypeRateLimit,
			StatusCode: resp.StatusCode,
			Message:    "Glide API rate limit hit",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &APIError{
			Kind:       models.ErrorTypeAPI,
			StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("Glide API returned %d: %s",
				resp.StatusCode, logging.TruncateString(string(respBody), logging.MaxSnippetLength)),
		}
	case readErr != nil:
		return nil, &APIError{
			Kind:    models.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response: %v", readErr),
		}
	}
	return respBody, nil
}

// parseRetryAfter reads a Retry-After header in either form: delta seconds
// or an HTTP date. Unparseable or elapsed values yield zero, deferring to
// the backoff schedule.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

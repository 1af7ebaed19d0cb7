package glide

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

// mockHTTPClient replays a scripted sequence of responses.
type mockHTTPClient struct {
	responses []mockResponse
	requests  []*http.Request
	bodies    []string
}

type mockResponse struct {
	status  int
	body    string
	headers map[string]string
	err     error
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, string(body))

	if len(m.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	next := m.responses[0]
	m.responses = m.responses[1:]

	if next.err != nil {
		return nil, next.err
	}

	resp := &http.Response{
		StatusCode: next.status,
		Body:       io.NopCloser(bytes.NewReader([]byte(next.body))),
		Header:     make(http.Header),
	}
	for k, v := range next.headers {
		resp.Header.Set(k, v)
	}
	return resp, nil
}

func testConn() *models.Connection {
	return &models.Connection{AppID: "app-123", APIKey: "secret-key"}
}

func fastClient(httpClient HTTPClient, maxRetries int) *Client {
	return NewClientWithHTTP(Config{
		BaseURL:        "https://glide.test/api",
		MaxRetries:     maxRetries,
		RetryBaseDelay: time.Millisecond,
		PageLimit:      500,
	}, httpClient, zap.NewNop())
}

func TestFetchPage_FirstPage(t *testing.T) {
	mock := &mockHTTPClient{responses: []mockResponse{
		{status: 200, body: `[{"rows":[{"Row ID":"r1","Name":"Widget"}],"next":"token-2"}]`},
	}}
	client := fastClient(mock, 2)

	page, err := client.FetchPage(context.Background(), testConn(), "native-table-1", "")
	require.NoError(t, err)

	assert.Len(t, page.Rows, 1)
	assert.Equal(t, "Widget", page.Rows[0]["Name"])
	assert.Equal(t, "token-2", page.Next)

	require.Len(t, mock.requests, 1)
	req := mock.requests[0]
	assert.Equal(t, "https://glide.test/api/function/queryTables", req.URL.String())
	assert.Equal(t, "Bearer secret-key", req.Header.Get("Authorization"))

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(mock.bodies[0]), &sent))
	assert.Equal(t, "app-123", sent["appID"])
	queries := sent["queries"].([]any)
	require.Len(t, queries, 1)
	q := queries[0].(map[string]any)
	assert.Equal(t, "native-table-1", q["tableName"])
	assert.Equal(t, float64(500), q["limit"])
	_, hasStartAt := q["startAt"]
	assert.False(t, hasStartAt, "first page omits the continuation token")
}

func TestFetchPage_ContinuationToken(t *testing.T) {
	mock := &mockHTTPClient{responses: []mockResponse{
		{status: 200, body: `[{"rows":[]}]`},
	}}
	client := fastClient(mock, 2)

	page, err := client.FetchPage(context.Background(), testConn(), "native-table-1", "token-2")
	require.NoError(t, err)
	assert.Empty(t, page.Next, "absent next means the table is exhausted")

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(mock.bodies[0]), &sent))
	q := sent["queries"].([]any)[0].(map[string]any)
	assert.Equal(t, "token-2", q["startAt"])
}

func TestFetchPage_RateLimitHonorsRetryAfter(t *testing.T) {
	mock := &mockHTTPClient{responses: []mockResponse{
		{status: 429, headers: map[string]string{"Retry-After": "1"}},
		{status: 200, body: `[{"rows":[{"Row ID":"r1"}]}]`},
	}}
	client := fastClient(mock, 3)

	start := time.Now()
	page, err := client.FetchPage(context.Background(), testConn(), "t", "")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
	assert.Len(t, mock.requests, 2)
	assert.GreaterOrEqual(t, elapsed, time.Second, "Retry-After hint is honored")
}

func TestFetchPage_BackoffAdvancesPastHintedWait(t *testing.T) {
	mock := &mockHTTPClient{responses: []mockResponse{
		{status: 429, headers: map[string]string{"Retry-After": "1"}},
		{status: 429},
		{status: 200, body: `[{"rows":[{"Row ID":"r1"}]}]`},
	}}
	client := NewClientWithHTTP(Config{
		BaseURL:        "https://glide.test/api",
		MaxRetries:     3,
		RetryBaseDelay: 200 * time.Millisecond,
		PageLimit:      500,
	}, mock, zap.NewNop())

	start := time.Now()
	_, err := client.FetchPage(context.Background(), testConn(), "t", "")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, mock.requests, 3)
	// First wait is the 1s hint; the schedule still doubles underneath it,
	// so the second, hint-less wait is 400ms rather than the 200ms base.
	assert.GreaterOrEqual(t, elapsed, 1300*time.Millisecond)
}

func TestFetchPage_RetryExhaustionClassifiedRateLimit(t *testing.T) {
	mock := &mockHTTPClient{responses: []mockResponse{
		{status: 429}, {status: 429}, {status: 429},
	}}
	client := fastClient(mock, 2)

	_, err := client.FetchPage(context.Background(), testConn(), "t", "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, models.ErrorTypeRateLimit, apiErr.Kind)
	assert.True(t, apiErr.IsRetryable())
	assert.Len(t, mock.requests, 3, "initial attempt plus MaxRetries")
}

func TestFetchPage_ServerErrorRetriedThenClassified(t *testing.T) {
	mock := &mockHTTPClient{responses: []mockResponse{
		{status: 500, body: "internal"}, {status: 502, body: "bad gateway"},
	}}
	client := fastClient(mock, 1)

	_, err := client.FetchPage(context.Background(), testConn(), "t", "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, models.ErrorTypeAPI, apiErr.Kind)
	assert.Equal(t, 502, apiErr.StatusCode)
	assert.True(t, apiErr.IsRetryable(), "5xx failures may clear up on a later run")
}

func TestFetchPage_ClientErrorNotRetryable(t *testing.T) {
	mock := &mockHTTPClient{responses: []mockResponse{
		{status: 401, body: "unauthorized"}, {status: 401, body: "unauthorized"},
	}}
	client := fastClient(mock, 1)

	_, err := client.FetchPage(context.Background(), testConn(), "t", "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, models.ErrorTypeAPI, apiErr.Kind)
	assert.False(t, apiErr.IsRetryable(), "bad credentials need operator intervention")
}

func TestFetchPage_TransportFailureClassifiedNetwork(t *testing.T) {
	mock := &mockHTTPClient{responses: []mockResponse{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
	}}
	client := fastClient(mock, 1)

	_, err := client.FetchPage(context.Background(), testConn(), "t", "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, models.ErrorTypeNetwork, apiErr.Kind)
	assert.True(t, apiErr.IsRetryable())
}

func TestListTables(t *testing.T) {
	mock := &mockHTTPClient{responses: []mockResponse{
		{status: 200, body: `{"tables":[{"id":"t1","name":"Products"},{"id":"t2","name":"Line Items"}]}`},
	}}
	client := fastClient(mock, 1)

	tables, err := client.ListTables(context.Background(), testConn())
	require.NoError(t, err)

	require.Len(t, tables, 2)
	assert.Equal(t, "Products", tables[0].Name)
	assert.Equal(t, "https://glide.test/api/function/listTables", mock.requests[0].URL.String())
}

func TestGetTableColumns_InfersTypesFromSample(t *testing.T) {
	mock := &mockHTTPClient{responses: []mockResponse{
		{status: 200, body: `[{"rows":[
			{"Row ID":"r1","Quantity":2.5,"Taxable":true},
			{"Row ID":"r2","Notes":"sparse column"}
		]}]`},
	}}
	client := fastClient(mock, 1)

	columns, err := client.GetTableColumns(context.Background(), testConn(), "t")
	require.NoError(t, err)

	byName := make(map[string]string)
	for _, c := range columns {
		byName[c.Name] = c.Type
	}
	assert.Equal(t, map[string]string{
		"Row ID":   "string",
		"Quantity": "number",
		"Taxable":  "boolean",
		"Notes":    "string",
	}, byName)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3"))
	assert.Equal(t, 7*time.Second, parseRetryAfter("7"))
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	future := time.Now().Add(5 * time.Second).UTC().Format(http.TimeFormat)
	wait := parseRetryAfter(future)
	assert.Greater(t, wait, 3*time.Second)
	assert.LessOrEqual(t, wait, 5*time.Second)

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past))
}

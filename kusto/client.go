package kusto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/types"
)

// TokenProvider supplies bearer tokens for engine and DM calls. Providers
// must be safe for concurrent use; the client fetches a token per request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to the TokenProvider interface.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken returns a provider that always hands back tok.
func StaticToken(tok string) TokenProvider {
	return TokenFunc(func(context.Context) (string, error) { return tok, nil })
}

// maxErrorBody bounds how much of an error response is read for the
// envelope.
const maxErrorBody = 1 << 20

// Client issues management commands and streaming ingest requests against
// one endpoint (engine or DM). It is safe for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
	token    TokenProvider
	logger   *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient shares an existing HTTP client. All components of one
// ingestion client should pass the same instance so connection pools are
// shared process-wide.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a client for the given endpoint. The endpoint must parse
// as an absolute URL and belong to a trusted service domain (see
// DefaultTrusted).
func NewClient(endpoint string, token TokenProvider, opts ...ClientOption) (*Client, error) {
	if token == nil {
		return nil, ClientError("nil token provider")
	}
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if _, err := parseEndpoint(endpoint); err != nil {
		return nil, err
	}
	if err := DefaultTrusted().Validate(endpoint); err != nil {
		return nil, err
	}

	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{},
		token:    token,
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the endpoint the client talks to.
func (c *Client) Endpoint() string { return c.endpoint }

// HTTPClient exposes the underlying HTTP client so storage clients can share
// its transport.
func (c *Client) HTTPClient() *http.Client { return c.http }

// MgmtTable is the primary result table of a management command: column
// names in declaration order plus raw row values.
type MgmtTable struct {
	Columns []string
	Rows    [][]any
}

// ColumnIndex returns the position of the named column, or -1.
func (t *MgmtTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// mgmtRequest is the management command body.
type mgmtRequest struct {
	DB  string `json:"db"`
	CSL string `json:"csl"`
}

// mgmtResponse is the v1 frame layout of a command response.
type mgmtResponse struct {
	Tables []struct {
		TableName string `json:"TableName"`
		Columns   []struct {
			ColumnName string `json:"ColumnName"`
			DataType   string `json:"DataType"`
		} `json:"Columns"`
		Rows [][]any `json:"Rows"`
	} `json:"Tables"`
}

// Mgmt runs a management command against the endpoint and returns the first
// result table.
func (c *Client) Mgmt(ctx context.Context, database, command string) (*MgmtTable, error) {
	body, err := json.Marshal(mgmtRequest{DB: database, CSL: command})
	if err != nil {
		return nil, ClientErrorf("encoding management command: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/rest/mgmt", bytes.NewReader(body))
	if err != nil {
		return nil, ClientErrorf("building management request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.serviceError(resp)
	}

	var decoded mgmtResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &Error{Kind: KindService, Message: "malformed management response", Err: err}
	}
	if len(decoded.Tables) == 0 {
		return nil, &Error{Kind: KindService, Message: "management response carried no tables"}
	}

	first := decoded.Tables[0]
	table := &MgmtTable{Rows: first.Rows}
	for _, col := range first.Columns {
		table.Columns = append(table.Columns, col.ColumnName)
	}
	c.logger.Debug("management command completed", map[string]any{
		"database": database,
		"rows":     len(table.Rows),
	})
	return table, nil
}

// StreamIngest posts a payload to the engine's streaming ingest endpoint.
// The body is sent as-is; set compressed when it is gzip data so the engine
// decompresses it.
func (c *Client) StreamIngest(ctx context.Context, database, table string, body io.Reader, format types.DataFormat, mappingName string, compressed bool) error {
	if database == "" || table == "" {
		return ClientError("streaming ingest requires database and table")
	}

	endpoint := fmt.Sprintf("%s/v1/rest/ingest/%s/%s", c.endpoint, url.PathEscape(database), url.PathEscape(table))
	q := url.Values{}
	q.Set("streamFormat", string(format))
	if mappingName != "" {
		q.Set("mappingName", mappingName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+q.Encode(), body)
	if err != nil {
		return ClientErrorf("building streaming request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", format.ContentType())
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.serviceError(resp)
	}
	// Drain so the connection is reusable.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	c.logger.Debug("streaming ingest accepted", map[string]any{
		"database": database,
		"table":    table,
		"format":   string(format),
	})
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	tok, err := c.token.Token(ctx)
	if err != nil {
		return &Error{Kind: KindPermission, Message: "acquiring token", Permanent: true, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("x-ms-client-version", "Hopper.Go.Client:"+types.Version)
	req.Header.Set("x-ms-client-request-id", "HOP.execute;"+uuid.NewString())
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, CanceledError(err)
		}
		return nil, &Error{Kind: KindService, Code: CodeNetworkError, Message: "request failed", Err: err}
	}
	return resp, nil
}

func (c *Client) serviceError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	svcErr := ParseServiceError(
		resp.StatusCode,
		body,
		resp.Header.Get("x-ms-request-id"),
		resp.Header.Get("x-ms-activity-id"),
	)
	c.logger.Warn("service rejected request", map[string]any{
		"status": resp.StatusCode,
		"code":   svcErr.Code,
	})
	return svcErr
}

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/presence"
)

// HTTPClient implements StockClient using the stockscan HTTP/JSON REST API.
// It also satisfies catalog.Source, so one server can feed another's catalog.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var (
	_ StockClient    = (*HTTPClient)(nil)
	_ catalog.Source = (*HTTPClient)(nil)
)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Catalog ---

func (c *HTTPClient) GetCatalog(ctx context.Context) (*model.Catalog, error) {
	var cat model.Catalog
	if err := c.doJSON(ctx, http.MethodGet, "/v1/catalog", nil, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Fetch implements catalog.Source.
func (c *HTTPClient) Fetch(ctx context.Context) (*model.Catalog, error) {
	return c.GetCatalog(ctx)
}

func (c *HTTPClient) SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Products []model.Product `json:"products"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/catalog/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

func (c *HTTPClient) GetProduct(ctx context.Context, sku string) (*model.Product, error) {
	var p model.Product
	if err := c.doJSON(ctx, http.MethodGet, "/v1/catalog/products/"+url.PathEscape(sku), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ProductHistory returns the SKU's price at its last imports, oldest first.
// A limit <= 0 uses the server default.
func (c *HTTPClient) ProductHistory(ctx context.Context, sku string, limit int) ([]model.PricePoint, error) {
	path := "/v1/catalog/products/" + url.PathEscape(sku) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		History []model.PricePoint `json:"history"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

func (c *HTTPClient) CatalogStats(ctx context.Context) (*catalog.Stats, error) {
	var st catalog.Stats
	if err := c.doJSON(ctx, http.MethodGet, "/v1/catalog/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) CatalogDashboard(ctx context.Context) (*catalog.Dashboard, error) {
	var d catalog.Dashboard
	if err := c.doJSON(ctx, http.MethodGet, "/v1/catalog/dashboard", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) Replenishment(ctx context.Context, threshold int) ([]model.Product, error) {
	path := "/v1/catalog/replenishment"
	if threshold >= 0 {
		path += "?threshold=" + strconv.Itoa(threshold)
	}
	var resp struct {
		Products []model.Product `json:"products"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

func (c *HTTPClient) RefreshCatalog(ctx context.Context) (*CatalogSummary, error) {
	var s CatalogSummary
	if err := c.doJSON(ctx, http.MethodPost, "/v1/catalog/refresh", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) ImportCatalog(ctx context.Context, products []model.Product) (*CatalogSummary, error) {
	body := model.Catalog{Products: products}
	var s CatalogSummary
	if err := c.doJSON(ctx, http.MethodPost, "/v1/catalog/import", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- Session ---

func (c *HTTPClient) GetSession(ctx context.Context) (*model.SessionStatus, error) {
	return c.sessionCall(ctx, http.MethodGet, "/v1/session")
}

func (c *HTTPClient) StartSession(ctx context.Context, mode model.ScanMode) (*model.SessionStatus, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown scan mode %q", mode)
	}
	return c.sessionCall(ctx, http.MethodPost, "/v1/session/"+string(mode))
}

func (c *HTTPClient) SwitchDevice(ctx context.Context) (*model.SessionStatus, error) {
	return c.sessionCall(ctx, http.MethodPost, "/v1/session/switch")
}

func (c *HTTPClient) StopSession(ctx context.Context) (*model.SessionStatus, error) {
	return c.sessionCall(ctx, http.MethodPost, "/v1/session/stop")
}

func (c *HTTPClient) sessionCall(ctx context.Context, method, path string) (*model.SessionStatus, error) {
	var st model.SessionStatus
	if err := c.doJSON(ctx, method, path, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// --- Tally ---

func (c *HTTPClient) GetTally(ctx context.Context) (*TallyResponse, error) {
	var t TallyResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/tally", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) GetTallyEntry(ctx context.Context, sku string) (*model.TallyEntry, error) {
	var e model.TallyEntry
	if err := c.doJSON(ctx, http.MethodGet, "/v1/tally/"+url.PathEscape(sku), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DownloadTallyReport streams the current tally report to w and returns the
// file name the server suggests for it. An empty format means XLSX.
func (c *HTTPClient) DownloadTallyReport(ctx context.Context, format string, w io.Writer) (string, error) {
	path := "/v1/reports/tally"
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return "", apiError(resp.StatusCode, body)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("reading report: %w", err)
	}

	var name string
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	return name, nil
}

// --- Devices ---

func (c *HTTPClient) ListDevices(ctx context.Context) (*DevicesResponse, error) {
	var d DevicesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/devices", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) DeviceRoster(ctx context.Context, staleAfter time.Duration) ([]presence.Entry, error) {
	path := "/v1/devices/roster"
	if secs := int(staleAfter / time.Second); secs > 0 {
		path += "?stale_threshold_secs=" + strconv.Itoa(secs)
	}
	var resp struct {
		Devices []presence.Entry `json:"devices"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- Events ---

// StreamEvents reads the server-sent event stream and calls fn for every
// event until ctx is cancelled, the server closes the stream, or fn returns
// an error. Cancellation is not an error.
func (c *HTTPClient) StreamEvents(ctx context.Context, topics []string, lastEventID string, fn func(Event) error) error {
	path := "/v1/events/stream"
	if len(topics) > 0 {
		path += "?topics=" + url.QueryEscape(strings.Join(topics, ","))
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, body)
	}

	err = readSSE(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readSSE parses a text/event-stream body. Comment lines (keepalives) are
// skipped; an event is dispatched on the blank line that ends it.
func readSSE(r io.Reader, fn func(Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var evt Event
	var data bytes.Buffer
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() == 0 && evt.Topic == "" {
				continue
			}
			evt.Data = append([]byte(nil), data.Bytes()...)
			if err := fn(evt); err != nil {
				return err
			}
			evt = Event{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id:"):
			evt.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			evt.Topic = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func apiError(status int, body []byte) *APIError {
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: status, Message: errResp.Error}
	}
	return &APIError{StatusCode: status, Message: string(body)}
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content — success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

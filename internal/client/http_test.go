package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
	"github.com/shopspring/decimal"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method      string
	path        string
	rawPath     string // URL-encoded path (for testing PathEscape)
	query       string
	body        string
	contentType string
	auth        string

	// canned response
	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.rawPath = r.URL.RawPath
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	h.auth = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(h http.Handler) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(h)
	c := NewHTTPClient(srv.URL, "")
	return c, srv
}

// --- Constructor ---

func TestNewHTTPClient_TrimsTrailingSlash(t *testing.T) {
	c := NewHTTPClient("http://localhost:8080/", "")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
}

func TestHTTPClient_BearerToken(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "ok"}`}
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "s3cret")
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.auth != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want 'Bearer s3cret'", h.auth)
	}
}

func TestHTTPClient_NoTokenNoHeader(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "ok"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.auth != "" {
		t.Errorf("Authorization = %q, want empty", h.auth)
	}
}

// --- Catalog ---

func TestHTTPClient_GetCatalog(t *testing.T) {
	h := &testHandler{
		responseBody: `{"products":[{"sku":"A1","name":"Filtro X","stock":5,"price":"10","cost":"4.5"}],"updated_at":"2026-03-01T12:00:00Z"}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	cat, err := c.GetCatalog(context.Background())
	if err != nil {
		t.Fatalf("GetCatalog() error = %v", err)
	}
	if h.method != http.MethodGet || h.path != "/v1/catalog" {
		t.Errorf("request = %s %s, want GET /v1/catalog", h.method, h.path)
	}
	if len(cat.Products) != 1 || cat.Products[0].SKU != "A1" {
		t.Fatalf("products = %+v, want one A1", cat.Products)
	}
	if !cat.Products[0].Cost.Equal(decimal.RequireFromString("4.5")) {
		t.Errorf("cost = %s, want 4.5", cat.Products[0].Cost)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !cat.UpdatedAt.Equal(want) {
		t.Errorf("updated_at = %v, want %v", cat.UpdatedAt, want)
	}
}

func TestHTTPClient_FetchIsGetCatalog(t *testing.T) {
	h := &testHandler{responseBody: `{"products":[],"updated_at":"2026-03-01T12:00:00Z"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	cat, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if h.path != "/v1/catalog" {
		t.Errorf("path = %q, want /v1/catalog", h.path)
	}
	if len(cat.Products) != 0 {
		t.Errorf("products = %d, want 0", len(cat.Products))
	}
}

func TestHTTPClient_SearchProducts(t *testing.T) {
	h := &testHandler{responseBody: `{"products":[{"sku":"A1","name":"Filtro X","stock":5,"price":"10","cost":"0"}]}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	got, err := c.SearchProducts(context.Background(), "filtro x", 5)
	if err != nil {
		t.Fatalf("SearchProducts() error = %v", err)
	}
	if h.path != "/v1/catalog/search" {
		t.Errorf("path = %q, want /v1/catalog/search", h.path)
	}
	if h.query != "limit=5&q=filtro+x" {
		t.Errorf("query = %q, want limit=5&q=filtro+x", h.query)
	}
	if len(got) != 1 || got[0].Name != "Filtro X" {
		t.Errorf("got %+v, want Filtro X", got)
	}
}

func TestHTTPClient_GetProduct_PathEscape(t *testing.T) {
	h := &testHandler{responseBody: `{"sku":"AB/12","name":"Slash","stock":1,"price":"1","cost":"0"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	p, err := c.GetProduct(context.Background(), "AB/12")
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if h.rawPath != "/v1/catalog/products/AB%2F12" {
		t.Errorf("rawPath = %q, want /v1/catalog/products/AB%%2F12", h.rawPath)
	}
	if p.SKU != "AB/12" {
		t.Errorf("SKU = %q, want AB/12", p.SKU)
	}
}

func TestHTTPClient_ProductHistory(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantQuery string
	}{
		{"server default", 0, ""},
		{"explicit", 3, "limit=3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &testHandler{responseBody: `{"sku":"AB/12","history":[
				{"price":"9.90","imported_at":"2026-04-01T08:00:00Z"},
				{"price":"10.50","imported_at":"2026-05-01T08:00:00Z"}]}`}
			c, srv := newTestClient(h)
			defer srv.Close()

			got, err := c.ProductHistory(context.Background(), "AB/12", tt.limit)
			if err != nil {
				t.Fatalf("ProductHistory() error = %v", err)
			}
			if h.rawPath != "/v1/catalog/products/AB%2F12/history" {
				t.Errorf("rawPath = %q", h.rawPath)
			}
			if h.query != tt.wantQuery {
				t.Errorf("query = %q, want %q", h.query, tt.wantQuery)
			}
			if len(got) != 2 || !got[1].Price.Equal(decimal.RequireFromString("10.5")) {
				t.Fatalf("history = %+v", got)
			}
			if want := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC); !got[0].ImportedAt.Equal(want) {
				t.Errorf("first imported_at = %v, want %v", got[0].ImportedAt, want)
			}
		})
	}
}

func TestHTTPClient_ProductHistory_NoDatabase(t *testing.T) {
	h := &testHandler{statusCode: http.StatusNotImplemented, responseBody: `{"error":"price history requires a database"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.ProductHistory(context.Background(), "A1", 0)
	if err == nil || !strings.Contains(err.Error(), "requires a database") {
		t.Fatalf("err = %v, want the server's message", err)
	}
}

func TestHTTPClient_Replenishment(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		wantQuery string
	}{
		{"explicit", 7, "threshold=7"},
		{"zero", 0, "threshold=0"},
		{"server default", -1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &testHandler{responseBody: `{"products":[]}`}
			c, srv := newTestClient(h)
			defer srv.Close()

			if _, err := c.Replenishment(context.Background(), tt.threshold); err != nil {
				t.Fatalf("Replenishment() error = %v", err)
			}
			if h.path != "/v1/catalog/replenishment" {
				t.Errorf("path = %q", h.path)
			}
			if h.query != tt.wantQuery {
				t.Errorf("query = %q, want %q", h.query, tt.wantQuery)
			}
		})
	}
}

func TestHTTPClient_CatalogStatsAndDashboard(t *testing.T) {
	h := &testHandler{responseBody: `{"total":3,"in_stock":2,"out_of_stock":1,"categories":["Bombas","Filtros"]}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	st, err := c.CatalogStats(context.Background())
	if err != nil {
		t.Fatalf("CatalogStats() error = %v", err)
	}
	if h.path != "/v1/catalog/stats" {
		t.Errorf("path = %q", h.path)
	}
	if st.Total != 3 || st.OutOfStock != 1 || len(st.Categories) != 2 {
		t.Errorf("stats = %+v", st)
	}

	h.responseBody = `{"total_items":3,"total_stock_count":7,"total_value":"60","low_stock":1,"out_of_stock":1,"top_categories":[{"category":"Filtros","count":1}]}`
	d, err := c.CatalogDashboard(context.Background())
	if err != nil {
		t.Fatalf("CatalogDashboard() error = %v", err)
	}
	if h.path != "/v1/catalog/dashboard" {
		t.Errorf("path = %q", h.path)
	}
	if !d.TotalValue.Equal(decimal.NewFromInt(60)) {
		t.Errorf("total_value = %s, want 60", d.TotalValue)
	}
	if d.TotalStock != 7 || len(d.TopCategories) != 1 {
		t.Errorf("dashboard = %+v", d)
	}
}

func TestHTTPClient_RefreshCatalog(t *testing.T) {
	h := &testHandler{responseBody: `{"products":3,"updated_at":"2026-03-01T12:00:00Z","fetched_at":"2026-03-02T08:00:00Z"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	s, err := c.RefreshCatalog(context.Background())
	if err != nil {
		t.Fatalf("RefreshCatalog() error = %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/catalog/refresh" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if s.Products != 3 {
		t.Errorf("products = %d, want 3", s.Products)
	}
}

func TestHTTPClient_ImportCatalog(t *testing.T) {
	h := &testHandler{responseBody: `{"products":1,"updated_at":"2026-03-01T12:00:00Z","fetched_at":"2026-03-01T12:00:00Z"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	products := []model.Product{{SKU: "A1", Name: "Filtro X", Stock: 5, Price: decimal.NewFromInt(10)}}
	if _, err := c.ImportCatalog(context.Background(), products); err != nil {
		t.Fatalf("ImportCatalog() error = %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/catalog/import" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if h.contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", h.contentType)
	}

	var sent model.Catalog
	if err := json.Unmarshal([]byte(h.body), &sent); err != nil {
		t.Fatalf("decoding sent body: %v", err)
	}
	if len(sent.Products) != 1 || sent.Products[0].SKU != "A1" {
		t.Errorf("sent = %+v", sent)
	}
}

// --- Session ---

func TestHTTPClient_SessionCalls(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *HTTPClient) (*model.SessionStatus, error)
		wantMethod string
		wantPath   string
	}{
		{"get", func(c *HTTPClient) (*model.SessionStatus, error) {
			return c.GetSession(context.Background())
		}, http.MethodGet, "/v1/session"},
		{"start lookup", func(c *HTTPClient) (*model.SessionStatus, error) {
			return c.StartSession(context.Background(), model.ModeSingleLookup)
		}, http.MethodPost, "/v1/session/lookup"},
		{"start reconcile", func(c *HTTPClient) (*model.SessionStatus, error) {
			return c.StartSession(context.Background(), model.ModeReconciliation)
		}, http.MethodPost, "/v1/session/reconcile"},
		{"switch", func(c *HTTPClient) (*model.SessionStatus, error) {
			return c.SwitchDevice(context.Background())
		}, http.MethodPost, "/v1/session/switch"},
		{"stop", func(c *HTTPClient) (*model.SessionStatus, error) {
			return c.StopSession(context.Background())
		}, http.MethodPost, "/v1/session/stop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &testHandler{responseBody: `{"id":"ss-1","state":"scanning","mode":"reconcile","generation":2,"decode_errors":0,"entry_count":1}`}
			c, srv := newTestClient(h)
			defer srv.Close()

			st, err := tt.call(c)
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if h.method != tt.wantMethod || h.path != tt.wantPath {
				t.Errorf("request = %s %s, want %s %s", h.method, h.path, tt.wantMethod, tt.wantPath)
			}
			if st.State != model.StateScanning || st.Generation != 2 {
				t.Errorf("status = %+v", st)
			}
		})
	}
}

func TestHTTPClient_StartSession_InvalidMode(t *testing.T) {
	h := &testHandler{}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.StartSession(context.Background(), model.ScanMode("inventory"))
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if h.method != "" {
		t.Errorf("request sent for invalid mode: %s %s", h.method, h.path)
	}
}

// --- Tally ---

func TestHTTPClient_GetTally(t *testing.T) {
	h := &testHandler{responseBody: `{"entries":[{"sku":"A1","name":"Filtro X","system_stock":5,"count":3,"variance":-2}],"summary":{"entries":1,"units":3,"matching":0,"surplus":0,"shortage":1,"net_variance":-2}}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	tally, err := c.GetTally(context.Background())
	if err != nil {
		t.Fatalf("GetTally() error = %v", err)
	}
	if h.path != "/v1/tally" {
		t.Errorf("path = %q", h.path)
	}
	if len(tally.Entries) != 1 || tally.Entries[0].Variance != -2 {
		t.Errorf("entries = %+v", tally.Entries)
	}
	if tally.Summary.Shortage != 1 || tally.Summary.NetVariance != -2 {
		t.Errorf("summary = %+v", tally.Summary)
	}
}

func TestHTTPClient_GetTallyEntry(t *testing.T) {
	h := &testHandler{responseBody: `{"sku":"A1","name":"Filtro X","system_stock":5,"count":6,"variance":1}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	e, err := c.GetTallyEntry(context.Background(), "A1")
	if err != nil {
		t.Fatalf("GetTallyEntry() error = %v", err)
	}
	if h.path != "/v1/tally/A1" {
		t.Errorf("path = %q", h.path)
	}
	if e.Count != 6 || e.Variance != 1 {
		t.Errorf("entry = %+v", e)
	}
}

// --- Devices ---

func TestHTTPClient_ListDevices(t *testing.T) {
	h := &testHandler{responseBody: `{"devices":[{"id":"cam-front","label":"Front Camera"},{"id":"cam-rear","label":"Back Camera"}],"selected":1}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	d, err := c.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if h.path != "/v1/devices" {
		t.Errorf("path = %q", h.path)
	}
	if len(d.Devices) != 2 || d.Selected != 1 {
		t.Errorf("devices = %+v", d)
	}
}

func TestHTTPClient_DeviceRoster(t *testing.T) {
	h := &testHandler{responseBody: `{"devices":[{"device_id":"gw-1/cam-0","first_seen":"2026-03-01T12:00:00Z","last_seen":"2026-03-01T12:00:05Z","idle_secs":1.5,"heartbeat_count":3}]}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	entries, err := c.DeviceRoster(context.Background(), 45*time.Second)
	if err != nil {
		t.Fatalf("DeviceRoster() error = %v", err)
	}
	if h.path != "/v1/devices/roster" || h.query != "stale_threshold_secs=45" {
		t.Errorf("request = %s?%s", h.path, h.query)
	}
	if len(entries) != 1 || entries[0].HeartbeatCount != 3 {
		t.Errorf("entries = %+v", entries)
	}
}

// --- Health ---

func TestHTTPClient_Health(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "ok", "catalog_loaded": true, "products": 3}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}

	if h.method != http.MethodGet {
		t.Errorf("method = %q, want GET", h.method)
	}
	if h.path != "/v1/health" {
		t.Errorf("path = %q, want /v1/health", h.path)
	}

	if status != "ok" {
		t.Errorf("status = %q, want 'ok'", status)
	}
}

// --- Events ---

func TestHTTPClient_StreamEvents(t *testing.T) {
	var gotQuery, gotLastID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("topics")
		gotLastID = r.Header.Get("Last-Event-ID")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, ": keepalive\n\n")
		_, _ = io.WriteString(w, "id: 4\nevent: stock.scan.recorded\ndata: {\"sku\":\"A1\"}\n\n")
		_, _ = io.WriteString(w, "id: 5\nevent: stock.session.stopped\ndata: {}\n\n")
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	var got []Event
	err := c.StreamEvents(context.Background(), []string{"stock.scan.*", "stock.session.*"}, "3", func(e Event) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamEvents() error = %v", err)
	}
	if gotQuery != "stock.scan.*,stock.session.*" {
		t.Errorf("topics = %q", gotQuery)
	}
	if gotLastID != "3" {
		t.Errorf("Last-Event-ID = %q, want 3", gotLastID)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != "4" || got[0].Topic != "stock.scan.recorded" || string(got[0].Data) != `{"sku":"A1"}` {
		t.Errorf("event[0] = %+v", got[0])
	}
	if got[1].Topic != "stock.session.stopped" {
		t.Errorf("event[1].Topic = %q", got[1].Topic)
	}
}

func TestHTTPClient_StreamEvents_CallbackErrorStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: a\ndata: 1\n\nevent: b\ndata: 2\n\n")
	}))
	defer srv.Close()

	stop := errors.New("stop")
	calls := 0
	c := NewHTTPClient(srv.URL, "")
	err := c.StreamEvents(context.Background(), nil, "", func(Event) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("error = %v, want stop", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestHTTPClient_StreamEvents_HTTPError(t *testing.T) {
	h := &testHandler{statusCode: http.StatusUnauthorized, responseBody: `{"error": "unauthorized"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	err := c.StreamEvents(context.Background(), nil, "", func(Event) error { return nil })
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401 APIError", err)
	}
}

func TestReadSSE_MultilineData(t *testing.T) {
	body := "event: x\ndata: line1\ndata: line2\n\n"
	var got []Event
	if err := readSSE(strings.NewReader(body), func(e Event) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("readSSE() error = %v", err)
	}
	if len(got) != 1 || string(got[0].Data) != "line1\nline2" {
		t.Errorf("got %+v", got)
	}
}

// --- Error handling ---

func TestHTTPClient_Error_JSONBody(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusBadRequest,
		responseBody: `{"error": "malformed catalog: products[0].sku: required"}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.ImportCatalog(context.Background(), []model.Product{{}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.StatusCode)
	}
	if apiErr.Message != "malformed catalog: products[0].sku: required" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestHTTPClient_Error_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal server error"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.GetProduct(context.Background(), "A1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", apiErr.StatusCode)
	}
	if apiErr.Message != "internal server error" {
		t.Errorf("message = %q, want 'internal server error'", apiErr.Message)
	}
}

func TestHTTPClient_Error_DeviceUnavailable(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusServiceUnavailable,
		responseBody: `{"error": "no capture devices available"}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.StartSession(context.Background(), model.ModeReconciliation)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", apiErr.StatusCode)
	}
}

func TestHTTPClient_Error_FormatString(t *testing.T) {
	apiErr := &APIError{StatusCode: 403, Message: "forbidden"}
	want := "HTTP 403: forbidden"
	if apiErr.Error() != want {
		t.Errorf("Error() = %q, want %q", apiErr.Error(), want)
	}
}

func TestHTTPClient_Error_EmptyJSONError(t *testing.T) {
	// JSON body with empty error field should use the raw body
	h := &testHandler{
		statusCode:   http.StatusUnprocessableEntity,
		responseBody: `{"error": ""}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.GetTallyEntry(context.Background(), "A1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Message != `{"error": ""}` {
		t.Errorf("message = %q, want raw body", apiErr.Message)
	}
}

func TestHTTPClient_Error_CanceledContext(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "ok"}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.Health(ctx)
	if err == nil {
		t.Fatal("expected error for canceled context, got nil")
	}
	if !strings.Contains(err.Error(), "context canceled") {
		t.Errorf("error = %q, want to contain 'context canceled'", err.Error())
	}
}

func TestHTTPClient_Error_InvalidJSON(t *testing.T) {
	h := &testHandler{responseBody: `not json`}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.GetSession(context.Background())
	if err == nil || !strings.Contains(err.Error(), "decoding response") {
		t.Fatalf("error = %v, want decoding error", err)
	}
}

func TestHTTPClient_204NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	st, err := c.StopSession(context.Background())
	if err != nil {
		t.Fatalf("StopSession() error = %v", err)
	}
	if st.State != "" {
		t.Errorf("state = %q, want zero value", st.State)
	}
}

func TestHTTPClient_DownloadTallyReport(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.URL.Path != "/v1/reports/tally" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", `attachment; filename="tally-ss-1-20260301T120000Z.jsonl"`)
		_, _ = io.WriteString(w, "{\"type\":\"header\"}\n")
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	var buf strings.Builder
	name, err := c.DownloadTallyReport(context.Background(), "jsonl", &buf)
	if err != nil {
		t.Fatalf("DownloadTallyReport() error = %v", err)
	}
	if gotQuery != "format=jsonl" {
		t.Errorf("query = %q", gotQuery)
	}
	if name != "tally-ss-1-20260301T120000Z.jsonl" {
		t.Errorf("name = %q", name)
	}
	if buf.String() != "{\"type\":\"header\"}\n" {
		t.Errorf("body = %q", buf.String())
	}
}

func TestHTTPClient_DownloadTallyReport_Error(t *testing.T) {
	h := &testHandler{statusCode: http.StatusBadRequest, responseBody: `{"error": "unknown report format \"pdf\""}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	var buf strings.Builder
	_, err := c.DownloadTallyReport(context.Background(), "pdf", &buf)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("error = %v, want 400 APIError", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes on error", buf.Len())
	}
}

package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func okHandler(_ context.Context, _ any) (any, error) {
	return "ok", nil
}

const listMethod = "/grpc.health.v1.Health/List"

func TestCheckBearer(t *testing.T) {
	tests := []struct {
		header string
		want   error
	}{
		{"", errNoCredentials},
		{"Basic secret", errBadScheme},
		{"bearer secret", errBadScheme},
		{"Bearer wrong", errBadToken},
		{"Bearer ", errBadToken},
		{"Bearer secret", nil},
	}
	for _, tt := range tests {
		if got := checkBearer(tt.header, "secret"); !errors.Is(got, tt.want) {
			t.Errorf("checkBearer(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestAuthInterceptor(t *testing.T) {
	withAuth := func(v string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", v))
	}
	tests := []struct {
		name   string
		token  string
		method string
		ctx    context.Context
		want   codes.Code
	}{
		{"disabled", "", listMethod, context.Background(), codes.OK},
		{"health check exempt", "secret", healthpb.Health_Check_FullMethodName, context.Background(), codes.OK},
		{"no metadata", "secret", listMethod, context.Background(), codes.Unauthenticated},
		{"no authorization key", "secret", listMethod,
			metadata.NewIncomingContext(context.Background(), metadata.Pairs("other", "value")), codes.Unauthenticated},
		{"wrong token", "secret", listMethod, withAuth("Bearer wrong"), codes.Unauthenticated},
		{"basic scheme", "secret", listMethod, withAuth("Basic secret"), codes.Unauthenticated},
		{"valid token", "secret", listMethod, withAuth("Bearer secret"), codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := AuthInterceptor(tt.token)(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, okHandler)
			if got := status.Code(err); got != tt.want {
				t.Fatalf("code = %v, want %v (err %v)", got, tt.want, err)
			}
			if tt.want == codes.OK && resp != "ok" {
				t.Fatalf("resp = %v, want ok", resp)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	tests := []struct {
		name   string
		token  string
		method string
		path   string
		header string
		want   int
	}{
		{"disabled", "", http.MethodGet, "/v1/session", "", http.StatusOK},
		{"no header", "secret", http.MethodGet, "/v1/session", "", http.StatusUnauthorized},
		{"wrong token", "secret", http.MethodGet, "/v1/tally", "Bearer wrong", http.StatusUnauthorized},
		{"basic scheme", "secret", http.MethodPost, "/v1/session/stop", "Basic secret", http.StatusUnauthorized},
		{"valid token", "secret", http.MethodPost, "/v1/session/reconcile", "Bearer secret", http.StatusOK},
		{"health exempt", "secret", http.MethodGet, "/v1/health", "", http.StatusOK},
		{"only GET health exempt", "secret", http.MethodPost, "/v1/health", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(tt.token, next).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d; body: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestLoggingMiddleware_KeepsStatusAndFlusher(t *testing.T) {
	var flushable bool
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, flushable = w.(http.Flusher)
		writeError(w, http.StatusConflict, "session already active")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/session/lookup", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if !flushable {
		t.Fatal("wrapped writer does not implement http.Flusher")
	}
}

func TestStatusRecorder_DefaultsToOK(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _ = rec.Write([]byte("x"))
	rec.WriteHeader(http.StatusTeapot)
	if rec.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.status)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMergeOriginsDropsBlanksAndDuplicates(t *testing.T) {
	got := mergeOrigins(devOrigins, []string{"", "https://desk.example.com/", "http://localhost:3000", " https://desk.example.com "})
	want := []string{"http://localhost:3000", "http://localhost:5173", "https://desk.example.com"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestCORSPreflightAllowsIdempotencyHeader(t *testing.T) {
	h := CORS([]string{"https://desk.example.com"})(okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/complaints", nil)
	req.Header.Set("Origin", "https://desk.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://desk.example.com" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Fatal("expected allowed headers on preflight")
	}
}

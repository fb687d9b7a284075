package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name              string
		existingRequestID string
		expectNewID       bool
	}{
		{
			name:        "generates new request ID when not present",
			expectNewID: true,
		},
		{
			name:              "propagates existing request ID",
			existingRequestID: "existing-req-123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
			if tt.existingRequestID != "" {
				req.Header.Set(HeaderRequestID, tt.existingRequestID)
			}
			w := httptest.NewRecorder()

			RequestID(handler).ServeHTTP(w, req)

			header := w.Header().Get(HeaderRequestID)
			if header == "" {
				t.Fatal("expected X-Request-ID header in response")
			}
			if header != captured {
				t.Errorf("header %q does not match context %q", header, captured)
			}
			if tt.expectNewID {
				if _, err := uuid.Parse(captured); err != nil {
					t.Errorf("generated request ID %q is not a UUID: %v", captured, err)
				}
			} else if captured != tt.existingRequestID {
				t.Errorf("request ID = %q, want %q", captured, tt.existingRequestID)
			}
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}

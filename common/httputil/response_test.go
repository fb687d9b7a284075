package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]int{"written": 3})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]int
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["written"] != 3 {
		t.Errorf("written = %d, want 3", body["written"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusNotFound, "dataset not found")

	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusNotFound || body.Error != "dataset not found" {
		t.Errorf("got %d %+v", w.Code, body)
	}
	if body.Missing != nil {
		t.Errorf("missing = %v, want nil", body.Missing)
	}
}

func TestWriteMissingColumns(t *testing.T) {
	w := httptest.NewRecorder()
	WriteMissingColumns(w, "unrecognized dataset", []string{"ts", "uid"})

	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", w.Code)
	}
	if len(body.Missing) != 2 || body.Missing[0] != "ts" {
		t.Errorf("missing = %v", body.Missing)
	}
}

package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestJSONEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	JSON(rr, req, http.StatusCreated, "created", map[string]int{"id": 7})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != true || body["message"] != "created" {
		t.Fatalf("unexpected envelope: %v", body)
	}
	if _, ok := body["code"]; ok {
		t.Fatal("success envelope must not carry an error code")
	}
}

func TestErrorEnvelopeOmitsData(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, http.StatusNotFound, "NOT_FOUND", "User not found.")
	})).ServeHTTP(rr, req)

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != false || body["code"] != "NOT_FOUND" || body["message"] != "User not found." {
		t.Fatalf("unexpected envelope: %v", body)
	}
	if _, ok := body["data"]; ok {
		t.Fatal("error envelope must not carry data")
	}
	if body["requestId"] == "" || body["requestId"] == nil {
		t.Fatal("expected request id")
	}
}

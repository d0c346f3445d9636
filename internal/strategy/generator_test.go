package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPValueGenerator(t *testing.T) {
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{Value: "+49 69 0000", Score: 0.87})
	}))
	defer server.Close()

	generator, err := NewHTTPValueGenerator(GeneratorConfig{URL: server.URL, Model: "t5-base"})
	if err != nil {
		t.Fatalf("NewHTTPValueGenerator() error = %v", err)
	}

	qt := augmentationTable()
	value, score, err := generator.Generate(context.Background(), qt, qt.Rows[0])
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if value != "+49 69 0000" {
		t.Errorf("value = %q", value)
	}
	if score != 0.87 {
		t.Errorf("score = %f", score)
	}
	if gotReq.TargetAttribute != qt.TargetAttribute {
		t.Errorf("request target attribute = %q, want %q", gotReq.TargetAttribute, qt.TargetAttribute)
	}
	if gotReq.Context["name"] == "" {
		t.Error("request context missing the name attribute")
	}
}

func TestHTTPValueGeneratorServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	generator, err := NewHTTPValueGenerator(GeneratorConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPValueGenerator() error = %v", err)
	}

	qt := augmentationTable()
	if _, _, err := generator.Generate(context.Background(), qt, qt.Rows[0]); err == nil {
		t.Error("Generate() did not fail on server error")
	}
}

func TestNewHTTPValueGeneratorRequiresURL(t *testing.T) {
	if _, err := NewHTTPValueGenerator(GeneratorConfig{}); err == nil {
		t.Error("NewHTTPValueGenerator() without URL did not fail")
	}
}

var _ ValueGenerator = (*HTTPValueGenerator)(nil)

package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/table"
)

// GeneratorConfig holds the generation service connection settings.
type GeneratorConfig struct {
	// URL is the generation endpoint, e.g. http://localhost:8091/generate.
	URL string

	// Model names the sequence model, sent with every request.
	Model string

	// Timeout bounds one generation call, defaults to 60s.
	Timeout time.Duration
}

// HTTPValueGenerator asks an external sequence model to propose a target
// value for a row, given the row's context attributes.
type HTTPValueGenerator struct {
	config GeneratorConfig
	client *http.Client
}

type generateRequest struct {
	Model           string            `json:"model,omitempty"`
	SchemaOrgClass  string            `json:"schema_org_class"`
	TargetAttribute string            `json:"target_attribute"`
	Context         map[string]string `json:"context"`
}

type generateResponse struct {
	Value string  `json:"value"`
	Score float64 `json:"score"`
}

// NewHTTPValueGenerator creates a generator talking to a generation
// service.
func NewHTTPValueGenerator(cfg GeneratorConfig) (*HTTPValueGenerator, error) {
	if cfg.URL == "" {
		return nil, apperrors.ValidationError("generator URL cannot be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &HTTPValueGenerator{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Generate proposes a value for the row's target attribute.
func (g *HTTPValueGenerator) Generate(ctx context.Context, qt *table.QueryTable, row table.Row) (string, float64, error) {
	rowContext := make(map[string]string, len(qt.ContextAttributes))
	for _, attribute := range qt.ContextAttributes {
		if value, ok := row.Get(attribute); ok {
			rowContext[attribute] = value.Text()
		}
	}

	body, err := json.Marshal(generateRequest{
		Model:           g.config.Model,
		SchemaOrgClass:  qt.SchemaOrgClass,
		TargetAttribute: qt.TargetAttribute,
		Context:         rowContext,
	})
	if err != nil {
		return "", 0, apperrors.RetrievalError("marshaling generate request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, bytes.NewReader(body))
	if err != nil {
		return "", 0, apperrors.RetrievalError("building generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", 0, apperrors.RetrievalError("calling generation service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, apperrors.RetrievalError(
			fmt.Sprintf("generation service returned %d: %s", resp.StatusCode, string(payload)), nil)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, apperrors.RetrievalError("decoding generate response", err)
	}
	if parsed.Value == "" {
		return "", 0, apperrors.RetrievalError("generation service returned no value", nil)
	}

	return parsed.Value, parsed.Score, nil
}

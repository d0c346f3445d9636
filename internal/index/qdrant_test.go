package index

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	if cfg.Host != DefaultHost {
		t.Errorf("expected host %s, got %s", DefaultHost, cfg.Host)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Port)
	}

	if cfg.Collection != DefaultCollection {
		t.Errorf("expected collection %s, got %s", DefaultCollection, cfg.Collection)
	}

	if cfg.Timeout != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, cfg.Timeout)
	}
}

func TestRecordFromPayload(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"table":        {Kind: &qdrant.Value_StringValue{StringValue: "hotel_marriott.com_sep2020"}},
		"row_id":       {Kind: &qdrant.Value_IntegerValue{IntegerValue: 7}},
		"entity_label": {Kind: &qdrant.Value_StringValue{StringValue: "Marriott Frankfurt"}},
		"attributes": {Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{
			Fields: map[string]*qdrant.Value{
				"addresslocality": {Kind: &qdrant.Value_StringValue{StringValue: "Frankfurt"}},
				"telephone":       {Kind: &qdrant.Value_StringValue{StringValue: "+49 69 0000"}},
			},
		}}},
	}

	record := recordFromPayload(payload, 0.83)

	if record.Table != "hotel_marriott.com_sep2020" {
		t.Errorf("unexpected table %q", record.Table)
	}
	if record.RowID != 7 {
		t.Errorf("expected row id 7, got %d", record.RowID)
	}
	if record.EntityLabel != "Marriott Frankfurt" {
		t.Errorf("unexpected entity label %q", record.EntityLabel)
	}
	if record.Score != 0.83 {
		t.Errorf("expected score 0.83, got %v", record.Score)
	}
	if record.Attributes["addresslocality"] != "Frankfurt" {
		t.Errorf("unexpected attributes %v", record.Attributes)
	}
}

func TestRecordFromPayloadMissingFields(t *testing.T) {
	record := recordFromPayload(map[string]*qdrant.Value{}, 0)

	if record.Table != "" || record.RowID != 0 || record.Attributes != nil {
		t.Errorf("expected zero record, got %+v", record)
	}
}

func TestConditionHelpers(t *testing.T) {
	kw := keywordCondition("table", "movie_imdb.com_sep2020")
	field := kw.GetField()
	if field == nil || field.Key != "table" {
		t.Fatalf("unexpected keyword condition: %v", kw)
	}
	if field.Match.GetKeyword() != "movie_imdb.com_sep2020" {
		t.Errorf("unexpected keyword match: %v", field.Match)
	}

	ic := integerCondition("row_id", 12)
	field = ic.GetField()
	if field == nil || field.Key != "row_id" {
		t.Fatalf("unexpected integer condition: %v", ic)
	}
	if field.Match.GetInteger() != 12 {
		t.Errorf("unexpected integer match: %v", field.Match)
	}
}

func TestNewQdrantIndexRequiresEmbedder(t *testing.T) {
	if _, err := NewQdrantIndex(DefaultClientConfig(), nil); err == nil {
		t.Error("expected error for nil embedder")
	}
}

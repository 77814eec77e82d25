package pgvector

import (
	"context"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := HashEmbedder{Dimension: 64}
	a, err := e.Embed(context.Background(), "deploy the web app")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(context.Background(), "deploy the web app")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected dimension 64, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestHashEmbedder_DefaultDimension(t *testing.T) {
	e := HashEmbedder{}
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 384 {
		t.Fatalf("expected default dimension 384, got %d", len(vec))
	}
}

func TestCosineSimilarity_IdenticalVectorsScoreOne(t *testing.T) {
	v := []float64{1, 2, 3}
	if got := cosineSimilarity(v, v); got < 0.999 || got > 1.001 {
		t.Fatalf("expected ~1.0, got %f", got)
	}
}

func TestCosineSimilarity_OrthogonalVectorsScoreZero(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}
	if got := cosineSimilarity(a, b); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
}

func TestCosineSimilarity_MismatchedLengthScoresZero(t *testing.T) {
	if got := cosineSimilarity([]float64{1, 2}, []float64{1}); got != 0 {
		t.Fatalf("expected 0 for mismatched lengths, got %f", got)
	}
}

func TestRank_OrdersByDescendingSimilarity(t *testing.T) {
	records := []record{
		{id: "low", summary: "low", embedding: []float64{1, 0}},
		{id: "high", summary: "high", embedding: []float64{0, 1}},
	}
	query := []float64{0, 1}
	items := rank(records, query, 10)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Summary != "high" {
		t.Fatalf("expected highest-similarity record first, got %s", items[0].Summary)
	}
}

func TestRank_RespectsLimit(t *testing.T) {
	records := []record{
		{id: "a", embedding: []float64{1, 0}},
		{id: "b", embedding: []float64{0, 1}},
		{id: "c", embedding: []float64{1, 1}},
	}
	items := rank(records, []float64{1, 1}, 1)
	if len(items) != 1 {
		t.Fatalf("expected limit 1, got %d", len(items))
	}
}

func TestContentOf_StringValue(t *testing.T) {
	content, summary, itemType := contentOf("hello world")
	if content != "hello world" || summary != "hello world" || itemType != "text" {
		t.Fatalf("unexpected content/summary/type: %q %q %q", content, summary, itemType)
	}
}

func TestContentOf_StructuredValue(t *testing.T) {
	content, _, itemType := contentOf(map[string]interface{}{"key": "value"})
	if itemType != "structured" {
		t.Fatalf("expected structured type, got %s", itemType)
	}
	if content == "" {
		t.Fatalf("expected non-empty marshaled content")
	}
}

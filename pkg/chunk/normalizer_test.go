package chunk

import (
	"errors"
	"testing"
)

func TestNormalizeCollapsesWhitespaceButKeepsNewlines(t *testing.T) {
	doc := SourceDocument{ID: "doc-1", Title: "Doc", Modality: ModalityDocument}
	raw := RawAnalysisResult{
		Modality: ModalityDocument,
		Spans: []Span{
			{Text: "  alpha \t beta\r\nnext   line  ", Locator: PageLocator(1)},
		},
	}

	candidates, err := Normalize(doc, raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Text != "alpha beta\nnext line" {
		t.Fatalf("unexpected normalized text: %q", candidates[0].Text)
	}
}

func TestNormalizePreservesSpanOrder(t *testing.T) {
	doc := SourceDocument{ID: "doc-1", Title: "Doc", Modality: ModalityDocument}
	raw := RawAnalysisResult{
		Modality: ModalityDocument,
		Spans: []Span{
			{Text: "page one", Locator: PageLocator(1)},
			{Text: "page two", Locator: PageLocator(2)},
			{Text: "page three", Locator: PageLocator(3)},
		},
	}

	candidates, err := Normalize(doc, raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	for i, cand := range candidates {
		if cand.Locator.Page != i+1 {
			t.Fatalf("candidate %d has page %d, order was not preserved", i, cand.Locator.Page)
		}
	}
}

func TestNormalizeRejectsUnsupportedModality(t *testing.T) {
	doc := SourceDocument{ID: "doc-1", Modality: Modality("hologram")}
	raw := RawAnalysisResult{Spans: []Span{{Text: "hello", Locator: PageLocator(1)}}}

	_, err := Normalize(doc, raw)
	var unsupported *UnsupportedModalityError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedModalityError, got %v", err)
	}
	if unsupported.Modality != "hologram" {
		t.Fatalf("unexpected modality in error: %q", unsupported.Modality)
	}
}

func TestNormalizeRejectsEmptySpan(t *testing.T) {
	doc := SourceDocument{ID: "doc-1", Modality: ModalityDocument}
	raw := RawAnalysisResult{
		Modality: ModalityDocument,
		Spans: []Span{
			{Text: "fine", Locator: PageLocator(1)},
			{Text: "   \t \r\n ", Locator: PageLocator(2)},
		},
	}

	_, err := Normalize(doc, raw)
	var empty *EmptyContentError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyContentError, got %v", err)
	}
	if empty.SpanIndex != 1 {
		t.Fatalf("expected span index 1, got %d", empty.SpanIndex)
	}
}

func TestNormalizeForcesWholeImageLocator(t *testing.T) {
	doc := SourceDocument{ID: "img-1", Modality: ModalityImage}
	raw := RawAnalysisResult{
		Modality: ModalityImage,
		Spans:    []Span{{Text: "a chart of quarterly revenue", Locator: PageLocator(7)}},
	}

	candidates, err := Normalize(doc, raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if candidates[0].Locator.Kind != LocatorWholeImage {
		t.Fatalf("expected whole-image locator, got %s", candidates[0].Locator)
	}
}

func TestParseModality(t *testing.T) {
	for _, valid := range []string{"document", "video", "audio", "image"} {
		if _, err := ParseModality(valid); err != nil {
			t.Fatalf("ParseModality(%q) returned error: %v", valid, err)
		}
	}
	if _, err := ParseModality("pdf"); err == nil {
		t.Fatalf("expected error for unknown modality")
	}
}

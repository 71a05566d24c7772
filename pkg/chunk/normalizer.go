package chunk

import (
	"regexp"
	"strings"
)

var whitespaceRegexp = regexp.MustCompile(`[ \t\r\f]+`)

// normalizeWhitespace collapses runs of horizontal whitespace while keeping
// newlines, which the segmenter needs for paragraph detection.
func normalizeWhitespace(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	return whitespaceRegexp.ReplaceAllString(trimmed, " ")
}

// Candidate is an unbounded-length chunk as emitted by the Normalizer, one
// per analysis span. The Segmenter bounds it later.
type Candidate struct {
	Document SourceDocument
	Text     string
	Locator  Locator
}

// Normalize converts a raw analysis result into canonical candidate chunks.
// It never reorders spans: page and timestamp order from the analysis step
// is authoritative provenance.
func Normalize(doc SourceDocument, raw RawAnalysisResult) ([]Candidate, error) {
	modality := raw.Modality
	if modality == "" {
		modality = doc.Modality
	}
	if _, err := ParseModality(string(modality)); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(raw.Spans))
	for i, span := range raw.Spans {
		text := normalizeWhitespace(span.Text)
		if text == "" {
			return nil, &EmptyContentError{DocumentID: doc.ID, SpanIndex: i}
		}
		locator := span.Locator
		if modality == ModalityImage {
			locator = WholeImageLocator()
		}
		candidates = append(candidates, Candidate{
			Document: doc,
			Text:     text,
			Locator:  locator,
		})
	}
	return candidates, nil
}

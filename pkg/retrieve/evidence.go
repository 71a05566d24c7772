package retrieve

import "github.com/modalmesh/groundrag/pkg/chunk"

// EvidenceItem is one retrieved chunk with its blended score. The ordered,
// deduplicated slice of these is the only material the synthesizer may cite.
type EvidenceItem struct {
	Chunk chunk.Chunk
	Score float64
}

// Citation points back into the evidence of the turn it was produced for.
type Citation struct {
	ContentID     string
	DocumentTitle string
	Locator       chunk.Locator
}

// Contains reports whether the evidence holds the given content_id.
func Contains(evidence []EvidenceItem, contentID string) bool {
	for _, item := range evidence {
		if item.Chunk.ContentID == contentID {
			return true
		}
	}
	return false
}

// Find returns the evidence item for a content_id, if present.
func Find(evidence []EvidenceItem, contentID string) (EvidenceItem, bool) {
	for _, item := range evidence {
		if item.Chunk.ContentID == contentID {
			return item, true
		}
	}
	return EvidenceItem{}, false
}

package synthesize

import (
	"fmt"
	"regexp"

	"github.com/modalmesh/groundrag/pkg/retrieve"
)

// DefaultMarkerPattern matches the [ref:<content_id>] markers the generation
// collaborator is prompted to emit. The marker syntax is an external
// contract: override it in configuration if the collaborator differs.
const DefaultMarkerPattern = `\[ref:([0-9a-fA-F]{8,64})\]`

// CitationParser is a best-effort extractor of citation markers from
// free-form generated text. Every extracted id is validated against the
// turn's evidence before it becomes a citation.
type CitationParser struct {
	re *regexp.Regexp
}

func NewCitationParser(pattern string) (*CitationParser, error) {
	if pattern == "" {
		pattern = DefaultMarkerPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("citation marker pattern: %w", err)
	}
	if re.NumSubexp() != 1 {
		return nil, fmt.Errorf("citation marker pattern must have exactly one capture group, has %d", re.NumSubexp())
	}
	return &CitationParser{re: re}, nil
}

// Parse returns the marker ids in order of first appearance, deduplicated.
func (p *CitationParser) Parse(text string) []string {
	matches := p.re.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	var ids []string
	for _, m := range matches {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// verify maps parsed ids onto the turn's evidence. Ids with no matching
// evidence are dropped; removed reports whether any were.
func verify(ids []string, evidence []retrieve.EvidenceItem) (citations []retrieve.Citation, removed bool) {
	for _, id := range ids {
		item, ok := retrieve.Find(evidence, id)
		if !ok {
			removed = true
			continue
		}
		citations = append(citations, retrieve.Citation{
			ContentID:     item.Chunk.ContentID,
			DocumentTitle: item.Chunk.DocumentTitle,
			Locator:       item.Chunk.Locator,
		})
	}
	return citations, removed
}

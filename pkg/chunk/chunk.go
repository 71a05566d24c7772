package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Modality identifies the kind of source content a chunk came from.
type Modality string

const (
	ModalityDocument Modality = "document"
	ModalityVideo    Modality = "video"
	ModalityAudio    Modality = "audio"
	ModalityImage    Modality = "image"
)

// ParseModality validates a raw modality string.
func ParseModality(s string) (Modality, error) {
	switch Modality(s) {
	case ModalityDocument, ModalityVideo, ModalityAudio, ModalityImage:
		return Modality(s), nil
	}
	return "", &UnsupportedModalityError{Modality: s}
}

// LocatorKind discriminates the locator variants.
type LocatorKind string

const (
	LocatorPage       LocatorKind = "page"
	LocatorTimeRange  LocatorKind = "time"
	LocatorWholeImage LocatorKind = "image"
)

// Locator is a modality-specific position reference: a page number for
// documents, a time range for video/audio, or a whole-image marker.
type Locator struct {
	Kind  LocatorKind
	Page  int
	Start time.Duration
	End   time.Duration
}

func PageLocator(page int) Locator {
	return Locator{Kind: LocatorPage, Page: page}
}

func TimeRangeLocator(start, end time.Duration) Locator {
	return Locator{Kind: LocatorTimeRange, Start: start, End: end}
}

func WholeImageLocator() Locator {
	return Locator{Kind: LocatorWholeImage}
}

// String renders the canonical wire form stored alongside each chunk.
func (l Locator) String() string {
	switch l.Kind {
	case LocatorPage:
		return fmt.Sprintf("page:%d", l.Page)
	case LocatorTimeRange:
		return fmt.Sprintf("time:%s-%s", l.Start, l.End)
	case LocatorWholeImage:
		return "image"
	}
	return string(l.Kind)
}

// ParseLocator restores a Locator from the wire form produced by String.
// Unrecognized input keeps the raw string as the kind so round-tripping
// never loses the stored value.
func ParseLocator(s string) Locator {
	switch {
	case strings.HasPrefix(s, "page:"):
		var page int
		fmt.Sscanf(s, "page:%d", &page)
		return PageLocator(page)
	case strings.HasPrefix(s, "time:"):
		parts := strings.SplitN(strings.TrimPrefix(s, "time:"), "-", 2)
		if len(parts) == 2 {
			start, errStart := time.ParseDuration(parts[0])
			end, errEnd := time.ParseDuration(parts[1])
			if errStart == nil && errEnd == nil {
				return TimeRangeLocator(start, end)
			}
		}
	case s == "image":
		return WholeImageLocator()
	}
	return Locator{Kind: LocatorKind(s)}
}

// SourceDocument describes one ingested source. Immutable once ingested.
type SourceDocument struct {
	ID        string
	Title     string
	Modality  Modality
	OriginURI string
}

// Span is one (text, locator) pair emitted by the analysis collaborator.
type Span struct {
	Text    string
	Locator Locator
}

// RawAnalysisResult is the ordered per-modality payload produced by the
// external analysis step. Span order carries locator order and must be
// preserved through normalization.
type RawAnalysisResult struct {
	Modality Modality
	Spans    []Span
}

// Chunk is the minimal independently retrievable unit of normalized content.
type Chunk struct {
	ContentID     string
	DocumentID    string
	DocumentTitle string
	Text          string
	Modality      Modality
	Locator       Locator
	Embedding     []float32
}

// ContentID derives the stable chunk key. Identical (document, locator, text)
// always hashes to the same id, so re-ingestion of unchanged content is an
// idempotent upsert; any change to the text changes the id.
func ContentID(documentID string, locator Locator, text string) string {
	h := sha256.New()
	h.Write([]byte(documentID))
	h.Write([]byte{0})
	h.Write([]byte(locator.String()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// UnsupportedModalityError reports a modality outside the recognized four.
type UnsupportedModalityError struct {
	Modality string
}

func (e *UnsupportedModalityError) Error() string {
	return fmt.Sprintf("unsupported modality %q", e.Modality)
}

// EmptyContentError reports a span whose text is empty after trimming.
type EmptyContentError struct {
	DocumentID string
	SpanIndex  int
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("document %s: span %d is empty after trimming", e.DocumentID, e.SpanIndex)
}

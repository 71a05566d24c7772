package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/modalmesh/groundrag/pkg/chunk"
)

// StaticAnalyzer serves pre-registered analysis results by document id.
// Useful for tests and local runs where the real analysis collaborator is
// unavailable.
type StaticAnalyzer struct {
	mu      sync.RWMutex
	results map[string]chunk.RawAnalysisResult
}

func NewStaticAnalyzer() *StaticAnalyzer {
	return &StaticAnalyzer{results: make(map[string]chunk.RawAnalysisResult)}
}

// Register installs the analysis result returned for a document id.
func (s *StaticAnalyzer) Register(documentID string, result chunk.RawAnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[documentID] = result
}

func (s *StaticAnalyzer) Analyze(_ context.Context, doc chunk.SourceDocument, _ []File) (chunk.RawAnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[doc.ID]
	if !ok {
		return chunk.RawAnalysisResult{}, fmt.Errorf("no analysis registered for document %s", doc.ID)
	}
	return result, nil
}

// PlainTextAnalyzer treats each raw file as one page of text. It stands in
// for the real analysis collaborator when the sources are already plain
// text.
type PlainTextAnalyzer struct{}

func (PlainTextAnalyzer) Analyze(_ context.Context, doc chunk.SourceDocument, files []File) (chunk.RawAnalysisResult, error) {
	result := chunk.RawAnalysisResult{Modality: doc.Modality}
	for i, f := range files {
		locator := chunk.PageLocator(i + 1)
		if doc.Modality == chunk.ModalityImage {
			locator = chunk.WholeImageLocator()
		}
		result.Spans = append(result.Spans, chunk.Span{
			Text:    string(f.Data),
			Locator: locator,
		})
	}
	return result, nil
}

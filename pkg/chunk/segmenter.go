package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	defaultMaxTokens       = 400
	defaultMinTokens       = 16
	defaultOverlapFraction = 0.15
)

var sentenceRegexp = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`)

// SegmenterOptions bound chunk sizes. Tokens are approximated as
// whitespace-delimited words, which is the granularity the analysis
// collaborators report in.
type SegmenterOptions struct {
	MaxTokens       int
	MinTokens       int
	OverlapFraction float64
}

// Segmenter splits candidate chunks so every finalized chunk is
// independently retrievable: bounded length, overlap at window edges,
// modality-aware boundary selection.
type Segmenter struct {
	maxTokens int
	minTokens int
	overlap   int
}

func NewSegmenter(opts SegmenterOptions) *Segmenter {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	minTokens := opts.MinTokens
	if minTokens <= 0 {
		minTokens = defaultMinTokens
	}
	if minTokens > maxTokens {
		minTokens = maxTokens
	}
	fraction := opts.OverlapFraction
	if fraction <= 0 || fraction >= 1 {
		fraction = defaultOverlapFraction
	}
	overlap := int(float64(maxTokens) * fraction)
	if overlap >= maxTokens {
		overlap = maxTokens - 1
	}
	return &Segmenter{maxTokens: maxTokens, minTokens: minTokens, overlap: overlap}
}

// TruncatedContentWarning reports an image description cut at MaxTokens.
// Images are never split, so oversized descriptions lose their tail.
type TruncatedContentWarning struct {
	DocumentID     string
	Locator        Locator
	OriginalTokens int
}

func (w TruncatedContentWarning) String() string {
	return fmt.Sprintf("document %s %s: description truncated from %d tokens", w.DocumentID, w.Locator, w.OriginalTokens)
}

// Segment turns candidates into finalized chunks missing only their
// embeddings. Chunk ids are deterministic, so re-segmenting unchanged input
// yields identical ids.
func (s *Segmenter) Segment(candidates []Candidate) ([]Chunk, []TruncatedContentWarning, error) {
	var chunks []Chunk
	var warnings []TruncatedContentWarning
	for _, cand := range candidates {
		switch modality := cand.Document.Modality; modality {
		case ModalityImage:
			finalized, warning := s.segmentImage(cand)
			chunks = append(chunks, finalized)
			if warning != nil {
				warnings = append(warnings, *warning)
			}
		case ModalityVideo, ModalityAudio:
			chunks = append(chunks, s.segmentTranscript(cand)...)
		case ModalityDocument:
			chunks = append(chunks, s.segmentDocument(cand)...)
		default:
			return nil, nil, &UnsupportedModalityError{Modality: string(modality)}
		}
	}
	return chunks, warnings, nil
}

// segmentImage never splits: a single chunk per image, truncated if the
// description exceeds the token budget.
func (s *Segmenter) segmentImage(cand Candidate) (Chunk, *TruncatedContentWarning) {
	tokens := strings.Fields(cand.Text)
	text := cand.Text
	var warning *TruncatedContentWarning
	if len(tokens) > s.maxTokens {
		text = strings.Join(tokens[:s.maxTokens], " ")
		warning = &TruncatedContentWarning{
			DocumentID:     cand.Document.ID,
			Locator:        cand.Locator,
			OriginalTokens: len(tokens),
		}
	}
	return s.finalize(cand, text, cand.Locator), warning
}

// segmentDocument packs paragraphs into token windows, falling back to a
// sliding token window for paragraphs that alone exceed the budget. Every
// sub-chunk keeps the page locator of the span it came from.
func (s *Segmenter) segmentDocument(cand Candidate) []Chunk {
	paragraphs := splitParagraphs(cand.Text)
	var chunks []Chunk
	var window []string
	windowTokens := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		chunks = append(chunks, s.finalize(cand, strings.Join(window, "\n"), cand.Locator))
		window = nil
		windowTokens = 0
	}

	for _, para := range paragraphs {
		paraTokens := len(strings.Fields(para))
		if paraTokens > s.maxTokens {
			flush()
			for _, piece := range slideTokens(strings.Fields(para), s.maxTokens, s.overlap, s.minTokens) {
				chunks = append(chunks, s.finalize(cand, strings.Join(piece, " "), cand.Locator))
			}
			continue
		}
		if windowTokens+paraTokens > s.maxTokens {
			flush()
		}
		window = append(window, para)
		windowTokens += paraTokens
	}
	flush()
	return chunks
}

// segmentTranscript splits at the sentence boundary nearest each window edge
// and narrows the time range proportionally to token position, so every
// sub-chunk still points at the moment it transcribes.
func (s *Segmenter) segmentTranscript(cand Candidate) []Chunk {
	sentences := splitSentences(cand.Text)
	totalTokens := 0
	perSentence := make([]int, len(sentences))
	for i, sentence := range sentences {
		perSentence[i] = len(strings.Fields(sentence))
		totalTokens += perSentence[i]
	}
	if totalTokens <= s.maxTokens {
		return []Chunk{s.finalize(cand, strings.Join(sentences, " "), cand.Locator)}
	}

	var chunks []Chunk
	start := 0
	consumedBefore := 0
	for start < len(sentences) {
		// A single runaway sentence falls back to plain token windows.
		if perSentence[start] > s.maxTokens {
			tokens := strings.Fields(sentences[start])
			offset := 0
			for _, piece := range slideTokens(tokens, s.maxTokens, s.overlap, s.minTokens) {
				locator := narrowTimeRange(cand.Locator, consumedBefore+offset, consumedBefore+offset+len(piece), totalTokens)
				chunks = append(chunks, s.finalize(cand, strings.Join(piece, " "), locator))
				offset += len(piece) - s.overlap
			}
			consumedBefore += perSentence[start]
			start++
			continue
		}
		end := start
		windowTokens := 0
		for end < len(sentences) && windowTokens+perSentence[end] <= s.maxTokens {
			windowTokens += perSentence[end]
			end++
		}
		text := strings.Join(sentences[start:end], " ")
		locator := narrowTimeRange(cand.Locator, consumedBefore, consumedBefore+windowTokens, totalTokens)
		chunks = append(chunks, s.finalize(cand, text, locator))
		if end == len(sentences) {
			break
		}
		// Step back over trailing sentences until roughly overlap tokens are
		// carried into the next window.
		next := end
		carried := 0
		for next > start+1 && carried < s.overlap {
			next--
			carried += perSentence[next]
		}
		for i := start; i < next; i++ {
			consumedBefore += perSentence[i]
		}
		start = next
	}
	return chunks
}

func (s *Segmenter) finalize(cand Candidate, text string, locator Locator) Chunk {
	return Chunk{
		ContentID:     ContentID(cand.Document.ID, locator, text),
		DocumentID:    cand.Document.ID,
		DocumentTitle: cand.Document.Title,
		Text:          text,
		Modality:      cand.Document.Modality,
		Locator:       locator,
	}
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, part := range strings.Split(text, "\n") {
		part = strings.TrimSpace(part)
		if part != "" {
			paragraphs = append(paragraphs, part)
		}
	}
	if len(paragraphs) == 0 {
		paragraphs = []string{strings.TrimSpace(text)}
	}
	return paragraphs
}

func splitSentences(text string) []string {
	sentences := sentenceRegexp.FindAllString(text, -1)
	if len(sentences) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	return sentences
}

// slideTokens windows a token slice with overlap. A tail shorter than
// minTokens is widened backwards so the final chunk stays answerable on its
// own.
func slideTokens(tokens []string, maxTokens, overlap, minTokens int) [][]string {
	if len(tokens) <= maxTokens {
		return [][]string{tokens}
	}
	step := maxTokens - overlap
	if step <= 0 {
		step = 1
	}
	var windows [][]string
	for start := 0; start < len(tokens); start += step {
		end := start + maxTokens
		if end >= len(tokens) {
			end = len(tokens)
			if end-start < minTokens {
				start = end - minTokens
				if start < 0 {
					start = 0
				}
			}
			windows = append(windows, tokens[start:end])
			break
		}
		windows = append(windows, tokens[start:end])
	}
	return windows
}

// narrowTimeRange interpolates a token window back onto the span's time
// range. Non-time locators pass through unchanged.
func narrowTimeRange(loc Locator, fromToken, toToken, totalTokens int) Locator {
	if loc.Kind != LocatorTimeRange || totalTokens <= 0 {
		return loc
	}
	duration := loc.End - loc.Start
	start := loc.Start + time.Duration(float64(duration)*float64(fromToken)/float64(totalTokens))
	end := loc.Start + time.Duration(float64(duration)*float64(toToken)/float64(totalTokens))
	if end > loc.End {
		end = loc.End
	}
	if start > end {
		start = end
	}
	return TimeRangeLocator(start.Round(time.Millisecond), end.Round(time.Millisecond))
}

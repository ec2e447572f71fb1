package chunking

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order, from the most to the least meaningful boundary.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter is a recursive character splitter. Sizes are counted in runes.
//
// A separator stays attached to the start of the piece that follows it and nothing is
// trimmed, so every chunk is a contiguous slice of the input and consecutive chunks share
// up to overlap runes. Chunks holding only whitespace are dropped; every other rune of
// the input lands in some chunk.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewSplitter(chunkSize int, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, errors.New("chunk overlap must be in [0, chunk size)")
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: DefaultSeparators,
	}, nil
}

func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	chunks := s.splitText(text, s.separators)
	kept := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			kept = append(kept, c)
		}
	}
	return kept
}

func (s *Splitter) splitText(text string, separators []string) []string {
	var finalChunks []string

	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	var goodSplits []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if length(piece) < s.chunkSize {
			goodSplits = append(goodSplits, piece)
			continue
		}
		if len(goodSplits) > 0 {
			finalChunks = append(finalChunks, s.mergeSplits(goodSplits)...)
			goodSplits = nil
		}
		if len(remaining) == 0 {
			finalChunks = append(finalChunks, s.hardSplit(piece)...)
		} else {
			finalChunks = append(finalChunks, s.splitText(piece, remaining)...)
		}
	}
	if len(goodSplits) > 0 {
		finalChunks = append(finalChunks, s.mergeSplits(goodSplits)...)
	}
	return finalChunks
}

// mergeSplits packs small pieces into chunks of at most chunkSize runes, carrying the
// tail of the previous chunk (at most overlap runes, whole pieces only) into the next.
func (s *Splitter) mergeSplits(splits []string) []string {
	var docs []string
	var current []string
	total := 0

	for _, piece := range splits {
		pieceLen := length(piece)
		if total+pieceLen > s.chunkSize && len(current) > 0 {
			docs = append(docs, strings.Join(current, ""))
			for total > s.overlap || (total+pieceLen > s.chunkSize && total > 0) {
				total -= length(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += pieceLen
	}
	if len(current) > 0 {
		docs = append(docs, strings.Join(current, ""))
	}
	return docs
}

// hardSplit is the last resort for a piece with no separator left: fixed windows of runes.
func (s *Splitter) hardSplit(piece string) []string {
	runes := []rune(piece)
	if len(runes) <= s.chunkSize {
		return []string{piece}
	}
	step := s.chunkSize - s.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func splitKeepingSeparator(text string, separator string) []string {
	if separator == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, separator)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, separator+p)
	}
	return out
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Separators is the ordered list of boundaries the splitter tries, from
// coarsest (paragraph) to finest. The empty string is the terminal
// fallback: fixed-width slicing with overlap.
var Separators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " ", ""}

const (
	DefaultMaxSize = 512
	DefaultOverlap = 50
)

// Splitter cuts text into passages of at most maxSize runes, preferring
// natural boundaries over hard cuts. All length accounting is in runes,
// not bytes, so multi-byte scripts are not over-split.
type Splitter struct {
	maxSize int
	overlap int
}

// NewSplitter returns a Splitter with the given passage size and overlap.
// Non-positive sizes fall back to defaults; an overlap that meets or
// exceeds maxSize is clamped to a quarter of it.
func NewSplitter(maxSize, overlap int) *Splitter {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize / 4
	}
	return &Splitter{maxSize: maxSize, overlap: overlap}
}

func (s *Splitter) MaxSize() int { return s.maxSize }
func (s *Splitter) Overlap() int { return s.overlap }

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Normalize collapses runs of three or more newlines to a single blank
// line and trims surrounding whitespace.
func Normalize(text string) string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(text, "\n\n"))
}

// Split normalizes text and cuts it into passages. Empty or
// whitespace-only input yields no passages. Input that already fits in
// one passage is returned as-is, so splitting is idempotent for short
// text.
func (s *Splitter) Split(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	if utf8.RuneCountInString(normalized) <= s.maxSize {
		return []string{normalized}
	}
	return s.split(normalized, 0)
}

// split divides text at Separators[sepIdx], accumulating units into
// passages up to maxSize. A single unit that is itself oversized flushes
// the accumulator and recurses into the next, finer separator.
func (s *Splitter) split(text string, sepIdx int) []string {
	sep := Separators[sepIdx]
	if sep == "" {
		return s.slice(text)
	}

	units := strings.Split(text, sep)
	sepLen := utf8.RuneCountInString(sep)

	var out []string
	var acc strings.Builder
	accLen := 0

	flush := func() {
		if accLen > 0 {
			out = append(out, acc.String())
			acc.Reset()
			accLen = 0
		}
	}

	for _, unit := range units {
		unitLen := utf8.RuneCountInString(unit)

		if unitLen > s.maxSize {
			flush()
			out = append(out, s.split(unit, sepIdx+1)...)
			continue
		}
		if accLen == 0 {
			acc.WriteString(unit)
			accLen = unitLen
			continue
		}
		if accLen+sepLen+unitLen > s.maxSize {
			flush()
			acc.WriteString(unit)
			accLen = unitLen
			continue
		}
		acc.WriteString(sep)
		acc.WriteString(unit)
		accLen += sepLen + unitLen
	}
	flush()
	return out
}

// slice is the terminal fallback for text with no usable boundary: a
// fixed rune window of maxSize advanced by maxSize-overlap, so adjacent
// passages share overlap runes of context.
func (s *Splitter) slice(text string) []string {
	runes := []rune(text)
	stride := s.maxSize - s.overlap
	if stride <= 0 {
		stride = s.maxSize
	}

	var out []string
	for start := 0; start < len(runes); start += stride {
		end := start + s.maxSize
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

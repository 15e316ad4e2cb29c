package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/ocr-tokens/internal/errors"
)

// AlignPolicy decides what happens to a word that cannot be found in the
// remaining document text.
type AlignPolicy int

const (
	// SkipUnlocated drops the word and keeps searching from the same offset.
	SkipUnlocated AlignPolicy = iota
	// AbortOnUnlocated fails the page with an ALIGNMENT_FAILED error.
	AbortOnUnlocated
)

// AlignState is the running state threaded from one page to the next.
// Offset is a rune offset into Text.
type AlignState struct {
	Text   string
	LastID int
	Offset int
}

// PageAlignment is the outcome of aligning one page.
type PageAlignment struct {
	Tokens   []Token
	Filtered int      // sentinel confidence or blank text
	Skipped  []string // words not found from the search offset onward
	State    AlignState
}

// Align assigns every accepted word of page a span in the cumulative text.
// The page text is appended to state.Text before any word is resolved; words
// are resolved left to right and never share characters. The input state is
// not modified.
func Align(state AlignState, page *OCRPage, size PageSize, policy AlignPolicy) (*PageAlignment, error) {
	next := AlignState{
		Text:   state.Text + page.Text,
		LastID: state.LastID,
		Offset: state.Offset,
	}
	text := []rune(next.Text)

	result := &PageAlignment{Tokens: make([]Token, 0, len(page.Words))}
	for _, w := range page.Words {
		if w.Confidence == NoConfidence || strings.TrimSpace(w.Text) == "" {
			result.Filtered++
			continue
		}

		word := []rune(w.Text)
		start, ok := resolveSpan(text, word, next.Offset)
		if !ok {
			if policy == AbortOnUnlocated {
				return nil, errors.NewAlignmentError(page.PageNumber, w.Text, next.Offset)
			}
			result.Skipped = append(result.Skipped, w.Text)
			continue
		}

		next.LastID++
		result.Tokens = append(result.Tokens, Token{
			ID:       next.LastID,
			Text:     w.Text,
			Start:    start,
			End:      start + len(word) - 1,
			Length:   utf8.RuneCountInString(w.Text),
			Top:      w.BoundingBox.Y,
			Left:     w.BoundingBox.X,
			Width:    w.BoundingBox.Width,
			Height:   w.BoundingBox.Height,
			Conf:     w.Confidence,
			PageNum:  page.PageNumber,
			PageSize: size,
		})
		next.Offset = start + len(word)
	}

	result.State = next
	return result, nil
}

// resolveSpan scans text from offset for the first exact occurrence of word.
// The scan stops once fewer runes remain than the word has.
func resolveSpan(text, word []rune, offset int) (int, bool) {
	if offset < 0 {
		offset = 0
	}
	for pos := offset; pos+len(word) <= len(text); pos++ {
		if runesEqual(text[pos:pos+len(word)], word) {
			return pos, true
		}
	}
	return -1, false
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

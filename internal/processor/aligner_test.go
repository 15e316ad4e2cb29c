package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocr-tokens/internal/errors"
)

func word(text string, conf float64) OCRWord {
	return OCRWord{Text: text, Confidence: conf, BoundingBox: BoundingBox{X: 10, Y: 20, Width: 30, Height: 12}}
}

func page(num int, text string, words ...OCRWord) *OCRPage {
	return &OCRPage{PageNumber: num, Text: text, Words: words}
}

// assertSpans checks every token against the cumulative text it was aligned to.
func assertSpans(t *testing.T, text string, tokens []Token) {
	t.Helper()
	runes := []rune(text)
	for i, tok := range tokens {
		require.LessOrEqual(t, tok.End+1, len(runes), "token %d out of range", tok.ID)
		assert.Equal(t, tok.Text, string(runes[tok.Start:tok.End+1]), "token %d span", tok.ID)
		assert.Equal(t, tok.Start+tok.Length-1, tok.End)
		if i > 0 && tokens[i-1].PageNum == tok.PageNum {
			assert.Less(t, tokens[i-1].End, tok.Start, "tokens %d and %d overlap", tokens[i-1].ID, tok.ID)
		}
	}
}

func TestAlign_SingleImage(t *testing.T) {
	size := PageSize{Width: 640, Height: 480}
	got, err := Align(AlignState{}, page(1, "cat dog", word("cat", 90), word("dog", 92)), size, SkipUnlocated)
	require.NoError(t, err)

	require.Len(t, got.Tokens, 2)
	assert.Equal(t, Token{
		ID: 1, Text: "cat", Start: 0, End: 2, Length: 3,
		Top: 20, Left: 10, Width: 30, Height: 12,
		Conf: 90, PageNum: 1, PageSize: size,
	}, got.Tokens[0])
	assert.Equal(t, 2, got.Tokens[1].ID)
	assert.Equal(t, 4, got.Tokens[1].Start)
	assert.Equal(t, 6, got.Tokens[1].End)
	assert.False(t, got.Tokens[1].Selected)

	assert.Equal(t, AlignState{Text: "cat dog", LastID: 2, Offset: 7}, got.State)
}

func TestAlign_DropsNoConfidenceWords(t *testing.T) {
	got, err := Align(AlignState{}, page(1, "cat dog", word("cat", NoConfidence), word("dog", 90)), PageSize{}, SkipUnlocated)
	require.NoError(t, err)

	require.Len(t, got.Tokens, 1)
	assert.Equal(t, "dog", got.Tokens[0].Text)
	assert.Equal(t, 1, got.Tokens[0].ID)
	assert.Equal(t, 4, got.Tokens[0].Start)
	assert.Equal(t, 1, got.Filtered)
}

func TestAlign_DropsBlankWords(t *testing.T) {
	got, err := Align(AlignState{}, page(1, "cat", word("", 90), word(" \t", 90), word("cat", 90)), PageSize{}, SkipUnlocated)
	require.NoError(t, err)

	require.Len(t, got.Tokens, 1)
	assert.Equal(t, 2, got.Filtered)
}

func TestAlign_DuplicateWords(t *testing.T) {
	got, err := Align(AlignState{}, page(1, "dog dog", word("dog", 90), word("dog", 91)), PageSize{}, SkipUnlocated)
	require.NoError(t, err)

	require.Len(t, got.Tokens, 2)
	assert.Equal(t, 0, got.Tokens[0].Start)
	assert.Equal(t, 2, got.Tokens[0].End)
	assert.Equal(t, 4, got.Tokens[1].Start)
	assert.Equal(t, 6, got.Tokens[1].End)
}

func TestAlign_AdjacentDuplicatesDoNotOverlap(t *testing.T) {
	got, err := Align(AlignState{}, page(1, "aaa", word("aa", 90), word("aa", 90)), PageSize{}, SkipUnlocated)
	require.NoError(t, err)

	require.Len(t, got.Tokens, 1)
	assert.Equal(t, 0, got.Tokens[0].Start)
	assert.Equal(t, []string{"aa"}, got.Skipped)
}

func TestAlign_TwoPages(t *testing.T) {
	size1 := PageSize{Width: 100, Height: 200}
	size2 := PageSize{Width: 300, Height: 400}

	first, err := Align(AlignState{}, page(1, "cat", word("cat", 90)), size1, SkipUnlocated)
	require.NoError(t, err)
	second, err := Align(first.State, page(2, "dog", word("dog", 90)), size2, SkipUnlocated)
	require.NoError(t, err)

	require.Len(t, first.Tokens, 1)
	require.Len(t, second.Tokens, 1)
	assert.Equal(t, 1, first.Tokens[0].ID)
	assert.Equal(t, 2, second.Tokens[0].ID)
	assert.Equal(t, 3, second.Tokens[0].Start)
	assert.Equal(t, 5, second.Tokens[0].End)
	assert.Equal(t, 2, second.Tokens[0].PageNum)
	assert.Equal(t, size2, second.Tokens[0].PageSize)
	assert.Equal(t, "catdog", second.State.Text)

	assertSpans(t, second.State.Text, append(first.Tokens, second.Tokens...))
}

func TestAlign_UnlocatedWordIsSkippedWithoutMovingOffset(t *testing.T) {
	got, err := Align(AlignState{}, page(1, "cat dog", word("bird", 90), word("dog", 90)), PageSize{}, SkipUnlocated)
	require.NoError(t, err)

	require.Len(t, got.Tokens, 1)
	assert.Equal(t, 1, got.Tokens[0].ID)
	assert.Equal(t, 4, got.Tokens[0].Start)
	assert.Equal(t, []string{"bird"}, got.Skipped)
}

func TestAlign_WordBeforeOffsetIsNotRematched(t *testing.T) {
	got, err := Align(AlignState{}, page(1, "dog cat", word("cat", 90), word("dog", 90)), PageSize{}, SkipUnlocated)
	require.NoError(t, err)

	require.Len(t, got.Tokens, 1)
	assert.Equal(t, "cat", got.Tokens[0].Text)
	assert.Equal(t, []string{"dog"}, got.Skipped)
	assert.Equal(t, 7, got.State.Offset)
}

func TestAlign_StrictPolicyFails(t *testing.T) {
	_, err := Align(AlignState{}, page(3, "cat dog", word("bird", 90)), PageSize{}, AbortOnUnlocated)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrorAlignmentFailed))
	assert.Contains(t, err.Error(), `"bird"`)
	assert.Contains(t, err.Error(), "page 3")
}

func TestAlign_CaseSensitive(t *testing.T) {
	got, err := Align(AlignState{}, page(1, "Cat cat", word("cat", 90)), PageSize{}, SkipUnlocated)
	require.NoError(t, err)

	require.Len(t, got.Tokens, 1)
	assert.Equal(t, 4, got.Tokens[0].Start)
}

func TestAlign_RuneOffsets(t *testing.T) {
	got, err := Align(AlignState{}, page(1, "café über\n", word("café", 90), word("über", 88)), PageSize{}, SkipUnlocated)
	require.NoError(t, err)

	require.Len(t, got.Tokens, 2)
	assert.Equal(t, 4, got.Tokens[0].Length)
	assert.Equal(t, 3, got.Tokens[0].End)
	assert.Equal(t, 5, got.Tokens[1].Start)
	assertSpans(t, got.State.Text, got.Tokens)
}

func TestAlign_IsIdempotent(t *testing.T) {
	start := AlignState{Text: "header\n", LastID: 7, Offset: 7}
	p := page(2, "the cat and the dog\n",
		word("the", 91), word("cat", 90), word("and", NoConfidence), word("the", 95), word("dog", 89))

	first, err := Align(start, p, PageSize{Width: 1, Height: 1}, SkipUnlocated)
	require.NoError(t, err)
	second, err := Align(start, p, PageSize{Width: 1, Height: 1}, SkipUnlocated)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, AlignState{Text: "header\n", LastID: 7, Offset: 7}, start)
	assert.Equal(t, 8, first.Tokens[0].ID)
	assert.Equal(t, 7, first.Tokens[0].Start)
}

func TestAlign_DocumentInvariants(t *testing.T) {
	pages := []*OCRPage{
		page(1, "Invoice 42\nTotal due: 42 EUR\n",
			word("Invoice", 96), word("42", 93), word("Total", 95), word("due:", 90), word("42", 92), word("EUR", 97)),
		page(2, "\n", word("", NoConfidence)),
		page(3, "Paid 42 42\n",
			word("Paid", 94), word("ghost", 50), word("42", 80), word("42", 81)),
	}

	var (
		state   AlignState
		tokens  []Token
		rawText strings.Builder
	)
	for _, p := range pages {
		got, err := Align(state, p, PageSize{Width: 10, Height: 10}, SkipUnlocated)
		require.NoError(t, err)
		tokens = append(tokens, got.Tokens...)
		state = got.State
		rawText.WriteString(p.Text)
	}

	assert.Equal(t, rawText.String(), state.Text)
	assertSpans(t, state.Text, tokens)

	require.Len(t, tokens, 9)
	seen := make(map[int]bool)
	for i, tok := range tokens {
		assert.False(t, seen[tok.ID], "duplicate id %d", tok.ID)
		seen[tok.ID] = true
		if i > 0 {
			assert.Greater(t, tok.ID, tokens[i-1].ID)
		}
	}
	assert.Equal(t, 9, state.LastID)
}

func TestResolveSpan_Bounded(t *testing.T) {
	text := []rune("abc")

	_, ok := resolveSpan(text, []rune("abcd"), 0)
	assert.False(t, ok)

	_, ok = resolveSpan(text, []rune("c"), 10)
	assert.False(t, ok)

	pos, ok := resolveSpan(text, []rune("c"), -5)
	assert.True(t, ok)
	assert.Equal(t, 2, pos)
}

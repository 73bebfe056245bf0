package translate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinChunks(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return Reassemble(parts)
}

func TestSplitEmptyContent(t *testing.T) {
	assert.Nil(t, Split("", 100))
}

func TestSplitShortContentSingleChunk(t *testing.T) {
	chunks := Split("Hello world", 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello world", chunks[0].Text)
	assert.False(t, chunks[0].Verbatim)
}

func TestSplitPlainTextRoundTrip(t *testing.T) {
	content := strings.Repeat("the quick brown fox jumps over the lazy dog ", 30)
	chunks := Split(content, 50)

	assert.Equal(t, content, joinChunks(chunks), "chunks must partition the content exactly")
	assert.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 50, "chunk %d over budget", i)
	}
}

func TestSplitPlainTextBreaksAtWhitespace(t *testing.T) {
	content := "alpha beta gamma delta epsilon"
	chunks := Split(content, 12)

	assert.Equal(t, content, joinChunks(chunks))
	for _, c := range chunks {
		// No word is torn apart: every chunk ends at a word boundary or the
		// end of the content.
		trimmed := strings.TrimRight(c.Text, " ")
		assert.True(t, strings.Contains(content, trimmed))
		for _, word := range strings.Fields(c.Text) {
			assert.Contains(t, []string{"alpha", "beta", "gamma", "delta", "epsilon"}, word)
		}
	}
}

func TestSplitRichTextBreaksAtTagBoundaries(t *testing.T) {
	content := "<p>Hello there</p><p>General greetings to everyone here</p><br/>tail"
	chunks := Split(content, 20)

	assert.Equal(t, content, joinChunks(chunks))
	for _, c := range chunks {
		opens := strings.Count(c.Text, "<")
		closes := strings.Count(c.Text, ">")
		assert.Equal(t, opens, closes, "chunk %q must not split a tag", c.Text)
	}
}

func TestSplitBase64ImagePassedThroughVerbatim(t *testing.T) {
	img := `<img src="data:image/png;base64,` + strings.Repeat("A", 200) + `">`
	content := "<p>before</p>" + img + "<p>after</p>"
	chunks := Split(content, 60)

	assert.Equal(t, content, joinChunks(chunks))

	var imageChunks []Chunk
	for _, c := range chunks {
		if strings.Contains(c.Text, "base64") {
			imageChunks = append(imageChunks, c)
		}
	}
	require.Len(t, imageChunks, 1, "image payload must stay in one chunk")
	assert.True(t, imageChunks[0].Verbatim, "image chunk must bypass the translator")
	assert.Equal(t, img, imageChunks[0].Text)
}

func TestSplitImageInSmallContentStillIsolated(t *testing.T) {
	img := `<img src="data:image/gif;base64,R0lGOD">`
	content := "<p>hi</p>" + img
	chunks := Split(content, 10_000)

	assert.Equal(t, content, joinChunks(chunks))
	found := false
	for _, c := range chunks {
		if c.Text == img {
			found = true
			assert.True(t, c.Verbatim)
		} else {
			assert.False(t, c.Verbatim)
		}
	}
	assert.True(t, found)
}

func TestSplitImageIsolatedWithoutBudget(t *testing.T) {
	img := `<img src="data:image/png;base64,iVBORw0KGgo=">`
	content := "<p>text around</p>" + img + "<p>an inline image</p>"
	chunks := Split(content, 0)

	assert.Equal(t, content, joinChunks(chunks))
	require.Len(t, chunks, 3)
	assert.False(t, chunks[0].Verbatim)
	assert.Equal(t, img, chunks[1].Text)
	assert.True(t, chunks[1].Verbatim, "unlimited budget must not leak images to the translator")
	assert.False(t, chunks[2].Verbatim)
}

func TestSplitOversizedTokenBecomesVerbatim(t *testing.T) {
	giant := strings.Repeat("x", 500)
	content := "small " + giant + " words"
	chunks := Split(content, 100)

	assert.Equal(t, content, joinChunks(chunks))
	found := false
	for _, c := range chunks {
		if strings.Contains(c.Text, giant) {
			found = true
			assert.True(t, c.Verbatim, "indivisible oversized token cannot be translated")
		}
	}
	assert.True(t, found)
}

func TestSplitUnicodeBudgetCountsRunes(t *testing.T) {
	content := strings.Repeat("héllo wörld ", 20)
	chunks := Split(content, 30)

	assert.Equal(t, content, joinChunks(chunks))
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 30, "chunk %d over budget", i)
	}
}

package translate

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk is a contiguous slice of source content headed for the translator.
// Verbatim chunks are copied into every target language without an API call:
// embedded base64 images must never pass through the translator, and a single
// indivisible token larger than the budget cannot be sent at all.
type Chunk struct {
	Text     string
	Verbatim bool
}

var htmlTagRe = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)

// Split partitions content into chunks of at most budget characters, cutting
// at HTML tag boundaries for rich text and at whitespace for plain text.
// Concatenating the chunk texts in order reproduces content exactly.
func Split(content string, budget int) []Chunk {
	if content == "" {
		return nil
	}
	if !containsImagePayload(content) && (budget <= 0 || utf8.RuneCountInString(content) <= budget) {
		return []Chunk{{Text: content}}
	}
	if budget <= 0 {
		// No size limit, but image payloads still need isolating.
		budget = math.MaxInt
	}

	var tokens []string
	if htmlTagRe.MatchString(content) {
		tokens = tokenizeHTML(content)
	} else {
		tokens = tokenizePlain(content)
	}

	var chunks []Chunk
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, Chunk{Text: current.String()})
			current.Reset()
			currentLen = 0
		}
	}

	for _, tok := range tokens {
		tokLen := utf8.RuneCountInString(tok)
		switch {
		case containsImagePayload(tok):
			flush()
			chunks = append(chunks, Chunk{Text: tok, Verbatim: true})
		case tokLen > budget:
			flush()
			chunks = append(chunks, Chunk{Text: tok, Verbatim: true})
		case currentLen+tokLen > budget:
			flush()
			fallthrough
		default:
			current.WriteString(tok)
			currentLen += tokLen
		}
	}
	flush()
	return chunks
}

// Reassemble joins translated chunk texts back into a full field value.
func Reassemble(parts []string) string {
	return strings.Join(parts, "")
}

func containsImagePayload(s string) bool {
	return strings.Contains(s, "data:image") && strings.Contains(s, ";base64,")
}

// tokenizeHTML splits content into tag and word tokens. Each tag is a token
// of its own; text runs between tags are further split at whitespace so that
// long paragraphs still pack into budget-sized chunks.
func tokenizeHTML(content string) []string {
	var tokens []string
	rest := content
	for rest != "" {
		loc := htmlTagRe.FindStringIndex(rest)
		if loc == nil {
			tokens = append(tokens, tokenizePlain(rest)...)
			break
		}
		if loc[0] > 0 {
			tokens = append(tokens, tokenizePlain(rest[:loc[0]])...)
		}
		tokens = append(tokens, rest[loc[0]:loc[1]])
		rest = rest[loc[1]:]
	}
	return tokens
}

// tokenizePlain splits content into word tokens, each carrying its trailing
// whitespace so that joining tokens restores the original text.
func tokenizePlain(content string) []string {
	var tokens []string
	var current strings.Builder
	inSpace := false
	for _, r := range content {
		isSpace := unicode.IsSpace(r)
		if !isSpace && inSpace {
			tokens = append(tokens, current.String())
			current.Reset()
		}
		current.WriteRune(r)
		inSpace = isSpace
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

package processing

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	urlRegex   = regexp.MustCompile(`https?://[^\s]+`)
	whitespace = regexp.MustCompile(`\s+`)
	strict     = bluemonday.StrictPolicy()
)

// ArticleID derives the stable identifier of a feed entry from its source URI.
// The result is the lowercase hex SHA-256 of the URI bytes.
func ArticleID(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:])
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// PlainText strips markup from an HTML fragment, decodes entities and
// squeezes whitespace.
func PlainText(input string) string {
	if input == "" {
		return ""
	}
	stripped := strict.Sanitize(input)
	decoded := html.UnescapeString(stripped)
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// GenerateTitleFromText creates a title from the first sentence or first N words of text.
// Returns empty string if text is empty.
func GenerateTitleFromText(text string, maxWords int) string {
	if text == "" {
		return ""
	}

	// Sentence boundaries inside URLs do not count.
	textWithoutURLs := RemoveURLs(text)

	sentenceEnd := strings.IndexAny(textWithoutURLs, ".!?")
	var firstSentence string
	if sentenceEnd > 0 {
		firstSentence = strings.TrimSpace(textWithoutURLs[:sentenceEnd])
	} else {
		firstSentence = textWithoutURLs
	}

	words := strings.Fields(firstSentence)
	if len(words) == 0 {
		return ""
	}

	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
		return strings.Join(words, " ") + "..."
	}

	return strings.Join(words, " ")
}

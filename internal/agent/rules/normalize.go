package rules

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

// Normalize prepares text for keyword matching: NFC composition, typographic
// apostrophes folded to ASCII, then lower case. Keywords and utterances go
// through the same function so "RÉFÉRENCEMENT" and a decomposed
// "référencement" both contain "référencement".
func Normalize(s string) string {
	return strings.ToLower(apostrophes.Replace(norm.NFC.String(s)))
}

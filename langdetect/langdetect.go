// Package langdetect guesses the language of a transcript so the reply can
// be requested in the same language.
package langdetect

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Supported maps ISO 639-1 codes to the languages the detector knows.
var Supported = map[string]lingua.Language{
	"en": lingua.English,
	"zh": lingua.Chinese,
	"ja": lingua.Japanese,
	"ko": lingua.Korean,
	"es": lingua.Spanish,
	"fr": lingua.French,
	"de": lingua.German,
	"it": lingua.Italian,
	"pt": lingua.Portuguese,
	"ru": lingua.Russian,
}

// minRunes is the shortest text worth running detection on.
const minRunes = 3

// Detector identifies the language of short texts.
type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector for the given ISO 639-1 codes, or for every
// supported language if none are given.
func New(codes ...string) (*Detector, error) {
	if len(codes) == 0 {
		for code := range Supported {
			codes = append(codes, code)
		}
	}

	langs := make([]lingua.Language, 0, len(codes))
	for _, code := range codes {
		l, ok := Supported[strings.ToLower(code)]
		if !ok {
			return nil, fmt.Errorf("unsupported language %q", code)
		}
		langs = append(langs, l)
	}
	if len(langs) < 2 {
		return nil, fmt.Errorf("need at least two languages, got %d", len(langs))
	}

	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(langs...).
			WithMinimumRelativeDistance(0.1).
			Build(),
	}, nil
}

// Detect returns the lower-case ISO 639-1 code of text's language. It
// reports false when the text is too short or ambiguous.
func (d *Detector) Detect(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minRunes {
		return "", false
	}
	l, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(l.IsoCode639_1().String()), true
}

// Name returns the English name of a language code, e.g. "fr" → "French".
// Unparseable codes are returned unchanged.
func Name(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

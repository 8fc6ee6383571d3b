package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var identifierRe = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// Keywords of the JS/TS family that carry structural meaning.
var Keywords = map[string]bool{
	"function": true, "class": true, "const": true, "let": true, "var": true,
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"switch": true, "case": true, "return": true, "try": true, "catch": true,
	"finally": true, "import": true, "export": true, "async": true,
	"await": true, "new": true, "this": true, "extends": true, "from": true,
	"default": true, "throw": true, "typeof": true, "instanceof": true,
	"interface": true, "type": true, "enum": true, "static": true,
	"break": true, "continue": true, "yield": true, "of": true, "in": true,
	"true": true, "false": true, "null": true, "undefined": true,
}

// IsKeyword reports whether word is a reserved JS/TS keyword.
func IsKeyword(word string) bool {
	return Keywords[word]
}

// NormalizeWhitespace collapses every whitespace run into one space and trims.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Identifiers returns identifier-like tokens in order of appearance.
func Identifiers(s string) []string {
	return identifierRe.FindAllString(s, -1)
}

// CountWord counts whole-word occurrences of word in s.
func CountWord(s, word string) int {
	n := 0
	for _, tok := range identifierRe.FindAllString(s, -1) {
		if tok == word {
			n++
		}
	}
	return n
}

// Lines splits text into lines, accepting both \n and \r\n endings.
func Lines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// IsSeparator checks if a rune is a separator character
func IsSeparator(r rune) bool {
	return r == ' ' || r == '_' || r == '-' || r == '.' || r == '/'
}

// EqualFold performs case-insensitive rune equality check
func EqualFold(a, b rune) bool {
	if a == b {
		return true
	}

	// Try simple ASCII case folding first (faster)
	if a < utf8.RuneSelf && b < utf8.RuneSelf {
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		return a == b
	}

	return strings.EqualFold(string(a), string(b))
}

// IsComment reports whether a trimmed line is a comment line.
func IsComment(line string) bool {
	return strings.HasPrefix(line, "//") || strings.HasPrefix(line, "/*") ||
		strings.HasPrefix(line, "*") || strings.HasPrefix(line, "#!")
}

// IsRepetitive checks if a string consists of one repeated character,
// like "}}}}" or ";;;;". Such lines carry nothing to predict from.
func IsRepetitive(s string) bool {
	if len(s) <= 2 {
		return false
	}
	firstChar := s[0]
	for i := 1; i < len(s); i++ {
		if s[i] != firstChar {
			return false
		}
	}
	return true
}

// LeadingIndent returns the leading whitespace of line.
func LeadingIndent(line string) string {
	return line[:len(line)-len(strings.TrimLeftFunc(line, unicode.IsSpace))]
}

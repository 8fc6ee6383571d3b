// Package predict classifies what the user is typing and turns the pattern
// memory into ranked insertions.
package predict

import (
	"regexp"
	"strings"

	"github.com/bastiangx/codeserve/internal/utils"
)

// Kind is the edit pattern recognized on the current line.
type Kind string

const (
	KindNone        Kind = ""
	KindFunction    Kind = "function_declaration"
	KindClass       Kind = "class_declaration"
	KindVariable    Kind = "variable_declaration"
	KindConditional Kind = "conditional_statement"
	KindLoop        Kind = "loop_statement"
	KindMethodCall  Kind = "method_call"
	KindBlock       Kind = "block_opening"
	KindReturn      Kind = "return_statement"
)

var (
	functionRe    = regexp.MustCompile(`^(export\s+)?(default\s+)?(async\s+)?function\b`)
	classRe       = regexp.MustCompile(`^(export\s+)?(default\s+)?(abstract\s+)?class\b`)
	variableRe    = regexp.MustCompile(`^(export\s+)?(const|let|var)\b`)
	conditionalRe = regexp.MustCompile(`^(if|else|switch)\b|^\}\s*else\b`)
	loopRe        = regexp.MustCompile(`^(for|while|do)\b`)
	methodCallRe  = regexp.MustCompile(`\w\.\w+\(`)
	returnRe      = regexp.MustCompile(`^return\b`)
)

// Classify recognizes the edit pattern of line. The first matching rule
// wins; comment, blank and single-character runs like "}}}" are KindNone.
// The context around the line only disambiguates chained calls continued
// on a new line.
func Classify(line, context string) Kind {
	line = strings.TrimSpace(line)
	switch {
	case line == "" || utils.IsComment(line) || utils.IsRepetitive(line):
		return KindNone
	case functionRe.MatchString(line):
		return KindFunction
	case classRe.MatchString(line):
		return KindClass
	case variableRe.MatchString(line):
		return KindVariable
	case conditionalRe.MatchString(line):
		return KindConditional
	case loopRe.MatchString(line):
		return KindLoop
	case methodCallRe.MatchString(line) || strings.HasSuffix(line, "."):
		return KindMethodCall
	case strings.HasPrefix(line, ".") && strings.TrimSpace(context) != "":
		return KindMethodCall
	case returnRe.MatchString(line):
		return KindReturn
	case strings.HasSuffix(line, "{"):
		return KindBlock
	default:
		return KindNone
	}
}

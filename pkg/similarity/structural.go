package similarity

import (
	"strings"

	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/bastiangx/codeserve/pkg/syntax"
)

// Weights for structural scoring.
const (
	baseScore = 0.3

	fnParamCount    = 0.2
	fnParamTypes    = 0.1
	fnDomainWord    = 0.05
	fnDomainCap     = 0.15
	fnControlFlow   = 0.15
	fnBodyResidual  = 0.1
	clsMethods      = 0.2
	clsProperties   = 0.15
	clsConstructor  = 0.1
	clsInheritance  = 0.1
	clsResidual     = 0.15
	varDeclarators  = 0.2
	varDeclKind     = 0.2
	varInitPresence = 0.1
	varInitType     = 0.1
	varResidual     = 0.1
)

// DomainWords are verbs that hint at what a function is for.
var DomainWords = []string{"test", "validate", "check", "get", "set", "create", "update", "delete"}

var controlFlowWords = []string{"if", "else", "for", "while", "switch", "case", "return", "try", "catch", "throw"}

// Structural compares two syntax nodes. Nodes of different kinds score 0.
// Functions, classes and variables get kind-specific weighted scoring; any
// other pair falls back to the normalized edit distance of their text.
func Structural(a, b syntax.Node) float64 {
	if a == nil || b == nil || a.Kind() != b.Kind() {
		return 0
	}
	switch x := a.(type) {
	case *syntax.Function:
		return functions(x, b.(*syntax.Function))
	case *syntax.Class:
		return classes(x, b.(*syntax.Class))
	case *syntax.Variable:
		return variables(x, b.(*syntax.Variable))
	default:
		return Normalized(a.Text(), b.Text())
	}
}

func functions(a, b *syntax.Function) float64 {
	score := baseScore
	if len(a.Params) == len(b.Params) {
		score += fnParamCount
	}
	score += fnParamTypes * paramTypeRatio(a.Params, b.Params)

	domain := 0.0
	textA, textB := strings.ToLower(a.Text()), strings.ToLower(b.Text())
	for _, w := range DomainWords {
		if strings.Contains(textA, w) && strings.Contains(textB, w) {
			domain += fnDomainWord
		}
	}
	score += min(domain, fnDomainCap)

	if controlFlowCount(a.Body) == controlFlowCount(b.Body) {
		score += fnControlFlow
	}
	score += fnBodyResidual * Normalized(a.Body, b.Body)
	return clamp(score)
}

// paramTypeRatio is the share of positions whose annotations agree. Two
// parameterless functions agree fully.
func paramTypeRatio(a, b []syntax.Param) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	same := 0
	for i := 0; i < min(len(a), len(b)); i++ {
		if a[i].Type == b[i].Type {
			same++
		}
	}
	return float64(same) / float64(longest)
}

func controlFlowCount(body string) int {
	n := 0
	for _, w := range controlFlowWords {
		n += utils.CountWord(body, w)
	}
	return n
}

func classes(a, b *syntax.Class) float64 {
	score := baseScore
	if a.Methods == b.Methods {
		score += clsMethods
	}
	if a.Properties == b.Properties {
		score += clsProperties
	}
	if a.HasConstructor == b.HasConstructor {
		score += clsConstructor
	}
	if (a.Superclass != "") == (b.Superclass != "") {
		score += clsInheritance
	}
	score += clsResidual * Normalized(a.Text(), b.Text())
	return clamp(score)
}

func variables(a, b *syntax.Variable) float64 {
	score := baseScore
	if len(a.Declarators) == len(b.Declarators) {
		score += varDeclarators
	}
	if a.DeclKind == b.DeclKind {
		score += varDeclKind
	}
	initA, initB := firstInit(a), firstInit(b)
	if (initA != "") == (initB != "") {
		score += varInitPresence
		if initA == initB {
			score += varInitType
		}
	}
	score += varResidual * Normalized(a.Text(), b.Text())
	return clamp(score)
}

func firstInit(v *syntax.Variable) string {
	if len(v.Declarators) == 0 {
		return ""
	}
	return v.Declarators[0].Init
}

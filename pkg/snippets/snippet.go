// Package snippets turns user-selected code into reusable snippets and keeps
// the user's snippet collection, encrypted at rest.
package snippets

import (
	"context"
	"fmt"
	"strings"

	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/bastiangx/codeserve/pkg/suggest"
)

// FromCode builds a snippet from code. Title and description come from the
// first declaration found; code that is malformed, unparsable or has no
// declaration yields a generic snippet. Code is always the input verbatim.
func FromCode(ctx context.Context, parser *syntax.Parser, code, language string) suggest.Snippet {
	sn := suggest.Snippet{
		Title:       "Code snippet",
		Description: fmt.Sprintf("%s code, %d lines", displayLanguage(language), strings.Count(code, "\n")+1),
		Language:    language,
		Code:        code,
	}

	tree, err := parser.Parse(ctx, code, language)
	if err != nil || tree == nil || tree.HasErrors {
		return sn
	}

	switch n := syntax.First(tree.Root).(type) {
	case *syntax.Function:
		sn.Title = "Function " + n.Name()
		sn.Description = fmt.Sprintf("%s(%s)", n.Name(), paramList(n.Params))
		if n.Async {
			sn.Description = "async " + sn.Description
		}
	case *syntax.Class:
		sn.Title = "Class " + n.Name()
		sn.Description = fmt.Sprintf("%d methods, %d properties", n.Methods, n.Properties)
		if n.Superclass != "" {
			sn.Description = "extends " + n.Superclass + ", " + sn.Description
		}
	case *syntax.Variable:
		if len(n.Declarators) > 0 {
			d := n.Declarators[0]
			sn.Title = "Variable " + d.Name
			if d.Init != "" {
				sn.Description = n.DeclKind + " " + d.Name + " = " + d.Init
			}
		}
	}
	return sn
}

func paramList(params []syntax.Param) string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
		if p.Type != "" {
			names[i] += ": " + p.Type
		}
	}
	return strings.Join(names, ", ")
}

func displayLanguage(language string) string {
	switch language {
	case "javascript", "javascriptreact":
		return "JavaScript"
	case "typescript", "typescriptreact":
		return "TypeScript"
	case "":
		return "Plain"
	}
	return language
}

package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bastiangx/codeserve/internal/utils"
	"gopkg.in/yaml.v3"
)

var reasonTitles = map[string]string{
	ReasonLongFunction:   "long function",
	ReasonLongClass:      "long class",
	ReasonManyMethods:    "many methods",
	ReasonManyParameters: "many parameters",
	ReasonHighComplexity: "high complexity",
}

// YAML renders the report as a YAML document.
func YAML(r *Report) ([]byte, error) {
	return yaml.Marshal(r)
}

// Markdown renders the report for humans.
func Markdown(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Code report: %s\n\n", r.Root)
	fmt.Fprintf(&b, "Generated %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04 MST"))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Files | %s |\n", utils.FormatWithCommas(r.Files))
	fmt.Fprintf(&b, "| Lines | %s |\n", utils.FormatWithCommas(r.Lines))
	fmt.Fprintf(&b, "| Functions | %s |\n", utils.FormatWithCommas(r.Functions))
	fmt.Fprintf(&b, "| Classes | %s |\n", utils.FormatWithCommas(r.Classes))
	fmt.Fprintf(&b, "| Parse failures | %s |\n", utils.FormatWithCommas(r.ParseFailures))

	if len(r.Largest) > 0 {
		b.WriteString("\n## Largest declarations\n\n")
		b.WriteString("| # | Name | Kind | Lines | Location |\n|---|---|---|---|---|\n")
		ranks := utils.CreateRankList(len(r.Largest))
		for i, it := range r.Largest {
			fmt.Fprintf(&b, "| %d | `%s` | %s | %d | %s |\n", ranks[i], it.Name, it.Kind, it.Lines, location(r.Root, it))
		}
	}

	b.WriteString("\n## Refactor candidates\n\n")
	if len(r.Candidates) == 0 {
		b.WriteString("None.\n")
		return b.String()
	}
	b.WriteString("| Name | Issue | Value | Limit | Location |\n|---|---|---|---|---|\n")
	for _, c := range r.Candidates {
		fmt.Fprintf(&b, "| `%s` | %s | %g | %g | %s |\n",
			c.Name, reasonTitles[c.Reason], c.Value, c.Limit, location(r.Root, c.Item))
	}
	return b.String()
}

func location(root string, it Item) string {
	rel, err := filepath.Rel(root, it.Path)
	if err != nil {
		rel = it.Path
	}
	return fmt.Sprintf("%s:%d", filepath.ToSlash(rel), it.Line)
}

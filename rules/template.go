// ABOUTME: Message template parsing and rendering for outreach goals
// ABOUTME: Placeholders use {{name}} syntax and must come from a fixed vocabulary
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder names a template may reference.
const (
	VarUserName     = "user_name"
	VarFirstName    = "first_name"
	VarCompanyName  = "company_name"
	VarLinkURL      = "link_url"
	VarPersona      = "persona"
	VarJourneyStage = "journey_stage"
	VarScore        = "score"
)

var knownVars = map[string]bool{
	VarUserName:     true,
	VarFirstName:    true,
	VarCompanyName:  true,
	VarLinkURL:      true,
	VarPersona:      true,
	VarJourneyStage: true,
	VarScore:        true,
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// ParseTemplate returns the placeholders used by tmpl, in order of first use.
// Unbalanced braces, malformed names and unknown placeholders are errors.
func ParseTemplate(tmpl string) ([]string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return nil, fmt.Errorf("template is empty")
	}

	// Whatever remains once well-formed placeholders are removed must be brace free.
	rest := placeholderRe.ReplaceAllString(tmpl, "")
	if strings.Contains(rest, "{{") || strings.Contains(rest, "}}") {
		return nil, fmt.Errorf("template has a malformed placeholder")
	}

	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		name := m[1]
		if !knownVars[name] {
			return nil, fmt.Errorf("unknown placeholder {{%s}}", name)
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	return names, nil
}

// Render substitutes placeholders from vars. Missing values render as empty strings;
// templates are validated at authoring time so unknown names never reach here.
func Render(tmpl string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		return vars[sub[1]]
	})
}

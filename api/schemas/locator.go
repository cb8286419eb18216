// api/schemas/locator.go
package schemas

import (
	"fmt"
	"strings"
)

// Strategy is the query language used to resolve a Locator.
type Strategy string

const (
	// ByXPath resolves the query as an XPath expression (the "path query" strategy).
	ByXPath Strategy = "xpath"
	ByCSS   Strategy = "css"
	ByID    Strategy = "id"
)

// Locator identifies a UI element by a (strategy, query) pair.
type Locator struct {
	Strategy Strategy `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	Query    string   `json:"query" yaml:"query" mapstructure:"query"`
}

// XPath is shorthand for a ByXPath locator.
func XPath(query string) Locator { return Locator{Strategy: ByXPath, Query: query} }

// CSS is shorthand for a ByCSS locator.
func CSS(query string) Locator { return Locator{Strategy: ByCSS, Query: query} }

// ID is shorthand for a ByID locator.
func ID(id string) Locator { return Locator{Strategy: ByID, Query: id} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Query)
}

// Validate checks that the locator has a known strategy and a non-empty query.
func (l Locator) Validate() error {
	switch l.Strategy {
	case ByXPath, ByCSS, ByID:
	default:
		return fmt.Errorf("locator %q: unsupported strategy %q", l.Query, l.Strategy)
	}
	if strings.TrimSpace(l.Query) == "" {
		return fmt.Errorf("locator with strategy %q has an empty query", l.Strategy)
	}
	return nil
}

// LocatorTemplate builds a concrete Locator from a runtime value, for elements
// such as "the table row for patient X".
type LocatorTemplate func(param string) Locator

// XPathTemplate returns a template that substitutes param into format with
// fmt.Sprintf. The parameter is quoted for XPath so values containing
// apostrophes still produce a valid expression.
func XPathTemplate(format string) LocatorTemplate {
	return func(param string) Locator {
		return XPath(fmt.Sprintf(format, xpathLiteral(param)))
	}
}

// CSSTemplate returns a template that substitutes param into format verbatim.
func CSSTemplate(format string) LocatorTemplate {
	return func(param string) Locator {
		return CSS(fmt.Sprintf(format, param))
	}
}

// xpathLiteral renders s as an XPath string literal. XPath 1.0 has no escape
// sequence, so strings holding both quote kinds are built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

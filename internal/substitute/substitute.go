// Package substitute threads completed step results into later step inputs.
//
// Resolution is literal: every occurrence of a step name in the input is
// replaced by that step's result. Step names are therefore expected to be
// tokens such as "#E1" that cannot occur in ordinary prose.
package substitute

import (
	"strings"

	"github.com/fyrsmithlabs/taskd/internal/plan"
)

// DefaultLimit is the number of runes of a result kept when substituted.
const DefaultLimit = 100

// Resolver substitutes results into text.
type Resolver struct {
	// Limit caps each substituted value; 0 means DefaultLimit, negative
	// disables truncation.
	Limit int
}

// New returns a Resolver with the given limit.
func New(limit int) Resolver {
	return Resolver{Limit: limit}
}

// Resolve replaces each result key found in text with its value, in results
// order.
func (r Resolver) Resolve(text string, results *plan.Results) string {
	if text == "" || results.Len() == 0 {
		return text
	}
	limit := r.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	results.Each(func(name, value string) {
		if name == "" || !strings.Contains(text, name) {
			return
		}
		text = strings.ReplaceAll(text, name, Truncate(value, limit))
	})
	return text
}

// Resolve uses the default limit.
func Resolve(text string, results *plan.Results) string {
	return Resolver{}.Resolve(text, results)
}

// Truncate keeps the first limit runes of s and marks the cut with "...".
// A negative limit returns s unchanged.
func Truncate(s string, limit int) string {
	if limit < 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

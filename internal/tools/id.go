// Package tools maps the closed set of tool identifiers a plan may name to
// the capabilities that execute them.
package tools

import "strings"

// ID identifies a tool.
type ID string

const (
	Search        ID = "Search"
	Topic         ID = "Topic"
	Summary       ID = "Summary"
	Outline       ID = "Outline"
	Writer        ID = "Writer"
	ArticleWriter ID = "ArticleWriter"
	Time          ID = "Time"
	LLM           ID = "LLM"
)

// All lists every tool id.
var All = []ID{Search, Topic, Summary, Outline, Writer, ArticleWriter, Time, LLM}

var aliases = map[string]ID{
	"google":     Search,
	"web_search": Search,
}

// Parse resolves a tool name case-insensitively, including aliases.
func Parse(name string) (ID, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, id := range All {
		if strings.ToLower(string(id)) == key {
			return id, nil
		}
	}
	if id, ok := aliases[key]; ok {
		return id, nil
	}
	return "", &InvalidToolError{Name: name}
}

func (id ID) String() string {
	return string(id)
}

// Names returns the tool ids as a comma-separated list.
func Names() string {
	parts := make([]string, len(All))
	for i, id := range All {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

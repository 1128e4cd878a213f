package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// Searcher runs a web query and returns a textual result list.
type Searcher interface {
	Call(ctx context.Context, query string) (string, error)
}

// SearchTool answers queries through a Searcher.
type SearchTool struct {
	searcher Searcher
}

// NewSearchTool wraps s.
func NewSearchTool(s Searcher) *SearchTool {
	return &SearchTool{searcher: s}
}

// NewDuckDuckGo builds the default web Searcher.
func NewDuckDuckGo(maxResults int, userAgent string) (Searcher, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	if userAgent == "" {
		userAgent = duckduckgo.DefaultUserAgent
	}
	ddg, err := duckduckgo.New(maxResults, userAgent)
	if err != nil {
		return nil, fmt.Errorf("creating duckduckgo client: %w", err)
	}
	return ddg, nil
}

func (t *SearchTool) Invoke(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", errors.New("empty search query")
	}
	out, err := t.searcher.Call(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}
	return out, nil
}

// Link is a result entry that carries a URL.
type Link struct {
	Title       string
	URL         string
	Description string
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractLinks finds the links in a search result. "Title:/Description:/URL:"
// blocks keep their title and description; other URLs are returned bare.
func ExtractLinks(text string) []Link {
	var (
		links []Link
		cur   Link
		seen  = make(map[string]bool)
	)
	add := func(l Link) {
		if l.URL == "" || seen[l.URL] {
			return
		}
		seen[l.URL] = true
		if l.Title == "" {
			l.Title = l.URL
		}
		links = append(links, l)
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Title:"):
			cur = Link{Title: strings.TrimSpace(strings.TrimPrefix(line, "Title:"))}
		case strings.HasPrefix(line, "Description:"):
			cur.Description = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case strings.HasPrefix(line, "URL:"):
			cur.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL:"))
			add(cur)
			cur = Link{}
		default:
			for _, u := range urlPattern.FindAllString(line, -1) {
				add(Link{URL: strings.TrimRight(u, ".,;")})
			}
		}
	}
	return links
}

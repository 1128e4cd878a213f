// Package redact scrubs credentials out of tool results before they are
// written into task artifacts.
package redact

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Marker replaces every detected secret.
const Marker = "[REDACTED]"

// Redactor replaces secrets found by the gitleaks default rule set.
type Redactor struct {
	mu       sync.Mutex
	detector *detect.Detector
	allow    map[string]struct{}
}

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Line   int
	Secret string
}

// New builds a Redactor. Values listed in allow are never redacted.
func New(allow []string) (*Redactor, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	r := &Redactor{detector: detector, allow: make(map[string]struct{}, len(allow))}
	for _, a := range allow {
		if a = strings.TrimSpace(a); a != "" {
			r.allow[a] = struct{}{}
		}
	}
	return r, nil
}

// Detect reports the secrets in content, skipping allow-listed values.
func (r *Redactor) Detect(content string) []Finding {
	if content == "" {
		return nil
	}
	r.mu.Lock()
	raw := r.detector.DetectString(content)
	r.mu.Unlock()

	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		if f.Secret == "" {
			continue
		}
		if _, ok := r.allow[f.Secret]; ok {
			continue
		}
		findings = append(findings, Finding{RuleID: f.RuleID, Line: f.StartLine, Secret: f.Secret})
	}
	return findings
}

// Redact returns content with every finding replaced by Marker, and the
// number of distinct secrets replaced.
func (r *Redactor) Redact(content string) (string, int) {
	findings := r.Detect(content)
	if len(findings) == 0 {
		return content, 0
	}

	secrets := make([]string, 0, len(findings))
	seen := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		if _, dup := seen[f.Secret]; dup {
			continue
		}
		seen[f.Secret] = struct{}{}
		secrets = append(secrets, f.Secret)
	}
	// Longest first so a secret containing another is replaced whole.
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })

	for _, s := range secrets {
		content = strings.ReplaceAll(content, s, Marker)
	}
	return content, len(secrets)
}

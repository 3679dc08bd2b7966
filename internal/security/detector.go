// Package security detects credentials in config files before they are
// uploaded.
package security

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/klauern/agentsync/internal/model"
)

// Severity ranks a detection.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// key matches a config key optionally wrapped in JSON/TOML quotes.
const key = `['"]?\s*[:=]\s*['"]?`

// SensitivePattern represents a pattern to detect sensitive data
type SensitivePattern struct {
	Name        string
	Pattern     *regexp.Regexp
	Description string
	Severity    Severity
}

// Detector performs sensitive data detection with configurable patterns.
type Detector struct {
	patterns []SensitivePattern
}

// DefaultPatterns returns the default built-in sensitive data patterns.
func DefaultPatterns() []SensitivePattern {
	return []SensitivePattern{
		{
			Name:        "API Key",
			Pattern:     regexp.MustCompile(`(?i)(api[_-]?key|apikey)` + key + `[a-zA-Z0-9_\-]{16,}`),
			Description: "API key pattern detected",
			Severity:    SeverityWarning,
		},
		{
			Name:        "Token",
			Pattern:     regexp.MustCompile(`(?i)(token|access[_-]?token|auth[_-]?token)` + key + `[a-zA-Z0-9_\-\.]{16,}`),
			Description: "Authentication token pattern detected",
			Severity:    SeverityWarning,
		},
		{
			Name:        "Password",
			Pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd)` + key + `[a-zA-Z0-9_\-@!#$%^&*()]{8,}`),
			Description: "Password pattern detected",
			Severity:    SeverityWarning,
		},
		{
			Name:        "AWS Access Key",
			Pattern:     regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`),
			Description: "AWS access key detected",
			Severity:    SeverityError,
		},
		{
			Name:        "AWS Secret Key",
			Pattern:     regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key|aws[_-]?secret)` + key + `[a-zA-Z0-9\/\+]{40}`),
			Description: "AWS secret key detected",
			Severity:    SeverityError,
		},
		{
			Name:        "GitHub Token",
			Pattern:     regexp.MustCompile(`\b(gh[pousr]_[a-zA-Z0-9]{36,}|github_pat_[a-zA-Z0-9_]{22,})`),
			Description: "GitHub token detected",
			Severity:    SeverityError,
		},
		{
			Name:        "Anthropic API Key",
			Pattern:     regexp.MustCompile(`\bsk-ant-[a-zA-Z0-9_\-]{20,}`),
			Description: "Anthropic API key detected",
			Severity:    SeverityError,
		},
		{
			Name:        "OpenAI API Key",
			Pattern:     regexp.MustCompile(`\bsk-(proj-)?[a-zA-Z0-9]{32,}`),
			Description: "OpenAI API key detected",
			Severity:    SeverityError,
		},
		{
			Name:        "Private Key",
			Pattern:     regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`),
			Description: "Private key detected",
			Severity:    SeverityError,
		},
		{
			Name:        "Generic Secret",
			Pattern:     regexp.MustCompile(`(?i)(secret|secret[_-]?key|client[_-]?secret)` + key + `[a-zA-Z0-9_\-]{16,}`),
			Description: "Generic secret pattern detected",
			Severity:    SeverityWarning,
		},
		{
			Name:        "Bearer Token",
			Pattern:     regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]{20,}`),
			Description: "Bearer token detected",
			Severity:    SeverityWarning,
		},
		{
			Name:        "Database Connection String",
			Pattern:     regexp.MustCompile(`(?i)(postgres(ql)?|mysql|mongodb(\+srv)?|redis):\/\/[^:\s]+:[^@\s]+@`),
			Description: "Database connection string with credentials detected",
			Severity:    SeverityError,
		},
	}
}

// NewDetector creates a new detector with the given patterns.
// If patterns is nil or empty, uses DefaultPatterns().
func NewDetector(patterns []SensitivePattern) *Detector {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &Detector{patterns: patterns}
}

// Finding is a single detection of sensitive data.
type Finding struct {
	Provider    model.ProviderID
	Path        string
	Pattern     string
	Line        int
	Column      int
	Content     string
	Severity    Severity
	Description string
}

// String formats the finding for terminal output.
func (f Finding) String() string {
	loc := f.Path
	if f.Provider != "" {
		loc = string(f.Provider) + "/" + f.Path
	}
	if loc == "" {
		return fmt.Sprintf("%s at line %d: %s", f.Description, f.Line, f.Content)
	}
	return fmt.Sprintf("%s:%d: %s", loc, f.Line, f.Description)
}

// ScanContent scans content line by line. At most one finding is reported
// per pattern per line.
func (d *Detector) ScanContent(content string) []Finding {
	if content == "" {
		return nil
	}

	var findings []Finding
	for lineNum, line := range strings.Split(content, "\n") {
		if isFalsePositive(line) {
			continue
		}
		for _, p := range d.patterns {
			loc := p.Pattern.FindStringIndex(line)
			if loc == nil {
				continue
			}
			findings = append(findings, Finding{
				Pattern:     p.Name,
				Line:        lineNum + 1,
				Column:      loc[0] + 1,
				Content:     redact(line, loc),
				Severity:    p.Severity,
				Description: p.Description,
			})
		}
	}
	return findings
}

// ScanSnapshot scans every file of every provider. Findings are ordered by
// provider, path and line.
func (d *Detector) ScanSnapshot(snapshot model.MultiProviderSnapshot) []Finding {
	var findings []Finding
	for _, id := range snapshot.ProviderIDs() {
		for _, f := range snapshot.Snapshots[id].Files {
			for _, finding := range d.ScanContent(f.Content) {
				finding.Provider = id
				finding.Path = f.RelativePath
				findings = append(findings, finding)
			}
		}
	}
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Line < b.Line
	})
	return findings
}

// HasErrors reports whether any finding has error severity.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// isFalsePositive checks if a line is likely a false positive
func isFalsePositive(line string) bool {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/*") {
		return true
	}

	lower := strings.ToLower(trimmed)
	// Environment references resolved by the assistant at runtime.
	if strings.Contains(lower, "{env:") || strings.Contains(lower, "${") {
		return true
	}

	if strings.ContainsAny(trimmed, ":=") {
		parts := strings.FieldsFunc(trimmed, func(r rune) bool {
			return r == ':' || r == '='
		})
		if len(parts) >= 2 {
			value := strings.ToLower(strings.TrimSpace(parts[1]))
			value = strings.TrimLeft(value, `"' `)
			if strings.Contains(value, "your_") ||
				strings.Contains(value, "<your") ||
				strings.Contains(value, "placeholder") ||
				strings.Contains(value, "example_") ||
				strings.HasPrefix(value, "xxx") {
				return true
			}
		}
	}

	return false
}

// redact keeps the line readable while hiding most of the matched secret.
func redact(line string, loc []int) string {
	match := line[loc[0]:loc[1]]
	keep := min(len(match), 8)
	masked := match[:keep] + strings.Repeat("*", min(len(match)-keep, 12))
	return truncateLine(line[:loc[0]]+masked+line[loc[1]:], 80)
}

// truncateLine truncates a line to the specified length with ellipsis
func truncateLine(line string, maxLen int) string {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) <= maxLen {
		return trimmed
	}
	return trimmed[:maxLen-3] + "..."
}

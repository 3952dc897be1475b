// Package analysis defines review findings and turns free-form agent output
// into them.
package analysis

import "time"

// Severity ranks how urgent a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists every severity from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Rank orders severities; higher is more urgent. Unknown values rank with info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Category groups findings by the area they affect.
type Category string

const (
	CategorySecurity      Category = "security"
	CategoryPerformance   Category = "performance"
	CategoryBestPractice  Category = "best-practice"
	CategoryCodeQuality   Category = "code-quality"
	CategoryArchitecture  Category = "architecture"
	CategoryTesting       Category = "testing"
	CategoryDocumentation Category = "documentation"
	CategoryOther         Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategorySecurity, CategoryPerformance, CategoryBestPractice, CategoryCodeQuality,
	CategoryArchitecture, CategoryTesting, CategoryDocumentation, CategoryOther,
}

// Finding is one observation reported by a review agent.
type Finding struct {
	Severity    Severity `yaml:"severity" json:"severity"`
	Category    Category `yaml:"category" json:"category"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	File        string   `yaml:"file,omitempty" json:"file,omitempty"`
	Line        *uint    `yaml:"line,omitempty" json:"line,omitempty"`
	Suggestion  string   `yaml:"suggestion,omitempty" json:"suggestion,omitempty"`
}

// Result is the outcome of one agent run against one environment.
type Result struct {
	Agent     string    `yaml:"agent" json:"agent"`
	RunID     string    `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Score     *float64  `yaml:"score,omitempty" json:"score,omitempty"`
	Findings  []Finding `yaml:"findings" json:"findings"`
	RawOutput string    `yaml:"raw_output,omitempty" json:"raw_output,omitempty"`
}

// SetScore stores score clamped to [0, 5].
func (r *Result) SetScore(score float64) {
	clamped := ClampScore(score)
	r.Score = &clamped
}

// ClampScore limits score to the [0, 5] range.
func ClampScore(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 5:
		return 5
	default:
		return score
	}
}

// CountBySeverity returns how many findings have severity s.
func (r Result) CountBySeverity(s Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// CountByCategory returns how many findings fall in category c.
func (r Result) CountByCategory(c Category) int {
	n := 0
	for _, f := range r.Findings {
		if f.Category == c {
			n++
		}
	}
	return n
}

// Critical returns the critical and high severity findings in their original order.
func (r Result) Critical() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity.Rank() >= SeverityHigh.Rank() {
			out = append(out, f)
		}
	}
	return out
}

package analysis

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

const (
	fallbackTitle       = "Review completed"
	fallbackDescription = "Agent completed review - see raw output for details"
)

// Parse converts raw agent stdout into a Result.
//
// Three stages run in order: a structured stage looking for an embedded JSON
// document, a keyword heuristic over individual lines, and a fallback that
// synthesizes a single informational finding. The raw output is kept on the
// result whenever the structured stage did not produce findings.
func Parse(agent, output string, now time.Time) Result {
	result := Result{Agent: agent, Timestamp: now}

	findings, score, ok := parseStructured(output)
	if score != nil {
		result.SetScore(*score)
	}
	if ok {
		result.Findings = findings
		return result
	}

	result.RawOutput = output
	result.Findings = parseHeuristic(output)
	if len(result.Findings) == 0 {
		result.Findings = []Finding{{
			Severity:    SeverityInfo,
			Category:    CategoryOther,
			Title:       fallbackTitle,
			Description: fallbackDescription,
		}}
	}
	return result
}

// parseStructured tries each candidate JSON start in turn. The first document
// that yields at least one finding wins. A score is reported from the first
// document that carries one even if it had no usable findings.
func parseStructured(output string) ([]Finding, *float64, bool) {
	var score *float64
	for _, candidate := range jsonCandidates(output) {
		doc, ok := decodeFirst(candidate)
		if !ok {
			continue
		}
		findings, s := extract(doc)
		if score == nil {
			score = s
		}
		if len(findings) > 0 {
			if s != nil {
				score = s
			}
			return findings, score, true
		}
	}
	return nil, score, false
}

// jsonCandidates returns substrings that may begin a JSON document: from the
// first bracket of either kind, then from the first '{' and the first '[',
// then every line that starts with a bracket.
func jsonCandidates(output string) []string {
	seen := make(map[int]bool)
	var out []string
	add := func(offset int) {
		if offset < 0 || seen[offset] {
			return
		}
		seen[offset] = true
		out = append(out, output[offset:])
	}

	add(strings.IndexAny(output, "{["))
	add(strings.IndexByte(output, '{'))
	add(strings.IndexByte(output, '['))

	offset := 0
	for _, line := range strings.SplitAfter(output, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			add(offset + len(line) - len(trimmed))
		}
		offset += len(line)
	}
	return out
}

// decodeFirst decodes one JSON value from the start of s, ignoring whatever follows it.
func decodeFirst(s string) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func extract(doc any) ([]Finding, *float64) {
	var items []any
	var score *float64

	switch v := doc.(type) {
	case map[string]any:
		if list, ok := v["findings"].([]any); ok {
			items = list
		}
		if s, ok := v["score"].(float64); ok && !math.IsNaN(s) {
			score = &s
		}
	case []any:
		items = v
	}

	var findings []Finding
	for _, item := range items {
		if f, ok := findingFromJSON(item); ok {
			findings = append(findings, f)
		}
	}
	return findings, score
}

// findingFromJSON requires a severity string and a title; everything else is optional.
func findingFromJSON(item any) (Finding, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return Finding{}, false
	}
	sev, ok := obj["severity"].(string)
	if !ok {
		return Finding{}, false
	}
	title, ok := obj["title"].(string)
	if !ok {
		return Finding{}, false
	}

	category, _ := obj["category"].(string)
	f := Finding{
		Severity: ParseSeverity(sev),
		Category: ParseCategory(category),
		Title:    title,
	}
	f.Description, _ = obj["description"].(string)
	f.File, _ = obj["file"].(string)
	f.Suggestion, _ = obj["suggestion"].(string)
	if line, ok := obj["line"].(float64); ok && line >= 0 && line == math.Trunc(line) {
		n := uint(line)
		f.Line = &n
	}
	return f, true
}

// ParseSeverity maps a severity label, including Japanese synonyms, to a
// Severity. Unrecognized labels map to info.
func ParseSeverity(label string) Severity {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "critical", "重大":
		return SeverityCritical
	case "high", "高":
		return SeverityHigh
	case "medium", "中":
		return SeverityMedium
	case "low", "低":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// ParseCategory maps a category label, including Japanese synonyms, to a
// Category. Unrecognized labels map to other.
func ParseCategory(label string) Category {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "security", "セキュリティ":
		return CategorySecurity
	case "performance", "パフォーマンス":
		return CategoryPerformance
	case "bug", "バグ", "codequality", "code_quality", "code-quality":
		return CategoryCodeQuality
	case "bestpractice", "best_practice", "best-practice", "ベストプラクティス":
		return CategoryBestPractice
	case "architecture", "アーキテクチャ":
		return CategoryArchitecture
	case "testing", "テスト":
		return CategoryTesting
	case "documentation", "ドキュメント":
		return CategoryDocumentation
	default:
		return CategoryOther
	}
}

type keywordGroup struct {
	keywords []string
	severity Severity
	category Category
}

// Checked in order; the first group with a matching keyword classifies the line.
var keywordGroups = []keywordGroup{
	{[]string{"critical", "重大", "致命的"}, SeverityCritical, CategorySecurity},
	{[]string{"security", "セキュリティ", "vulnerability", "脆弱性"}, SeverityHigh, CategorySecurity},
	{[]string{"error", "エラー", "bug", "バグ"}, SeverityHigh, CategoryCodeQuality},
	{[]string{"warning", "警告"}, SeverityMedium, CategoryBestPractice},
	{[]string{"performance", "パフォーマンス", "slow", "遅い"}, SeverityMedium, CategoryPerformance},
	{[]string{"suggestion", "提案", "improvement", "改善"}, SeverityLow, CategoryBestPractice},
}

func classify(line string) (Severity, Category, bool) {
	lower := strings.ToLower(line)
	for _, g := range keywordGroups {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.severity, g.category, true
			}
		}
	}
	return "", "", false
}

// parseHeuristic turns every keyword-bearing line into a finding whose
// description is the following line.
func parseHeuristic(output string) []Finding {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")

	var findings []Finding
	for i, line := range lines {
		severity, category, ok := classify(line)
		if !ok {
			continue
		}
		var description string
		if i+1 < len(lines) {
			description = strings.TrimSpace(lines[i+1])
		}
		findings = append(findings, Finding{
			Severity:    severity,
			Category:    category,
			Title:       strings.TrimSpace(line),
			Description: description,
		})
	}
	return findings
}

// Package agent runs external AI review CLIs against a review environment and
// collects their parsed findings.
package agent

import (
	"fmt"
	"strings"

	"github.com/iambrandonn/chaba/internal/errs"
)

// Kind identifies a supported review agent.
type Kind int

const (
	Claude Kind = iota
	Codex
	Gemini
)

// Kinds lists every supported agent in its canonical order.
var Kinds = []Kind{Claude, Codex, Gemini}

func (k Kind) String() string {
	switch k {
	case Claude:
		return "claude"
	case Codex:
		return "codex"
	case Gemini:
		return "gemini"
	default:
		return fmt.Sprintf("agent(%d)", int(k))
	}
}

// ParseKind maps a configured agent name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "claude":
		return Claude, nil
	case "codex":
		return Codex, nil
	case "gemini":
		return Gemini, nil
	}
	return 0, errs.Validationf("unknown agent %q (supported: claude, codex, gemini)", name)
}

// Invocation is the command line that runs one agent.
type Invocation struct {
	Program string
	Args    []string
}

func (i Invocation) String() string {
	return i.Program + " " + strings.Join(i.Args, " ")
}

// Invocation builds the command line reviewing pull request id.
func (k Kind) Invocation(id int) Invocation {
	prompt := k.Prompt(id)
	switch k {
	case Codex:
		return Invocation{Program: "codex", Args: []string{"exec", "--full-auto", "--sandbox", "read-only", prompt}}
	case Gemini:
		return Invocation{Program: "gemini", Args: []string{"-m", "gemini-2.5-pro", "-s", "-y", "-p", prompt}}
	default:
		return Invocation{Program: "claude", Args: []string{"--model", "sonnet", "--yes", prompt}}
	}
}

// Prompt returns the review instructions sent to the agent. Each agent is
// asked for a different angle: claude for overall quality, codex for bugs,
// gemini for architecture.
func (k Kind) Prompt(id int) string {
	switch k {
	case Codex:
		return fmt.Sprintf("このPR #%dのコードをレビューしてください。バグ、セキュリティ問題、ベストプラクティス違反を指摘してください。", id)
	case Gemini:
		return fmt.Sprintf("このPR #%dを戦略的視点からレビューしてください。アーキテクチャ、設計パターン、拡張性について分析してください。", id)
	default:
		return fmt.Sprintf("PR #%d のコードレビューを実施してください。品質、セキュリティ、パフォーマンスの観点から分析し、改善点を指摘してください。", id)
	}
}

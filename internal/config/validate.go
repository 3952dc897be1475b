package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/iambrandonn/chaba/internal/agent"
	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/iambrandonn/chaba/internal/logging"
	"github.com/iambrandonn/chaba/internal/sandbox"
)

// MinPorts is the smallest port range accepted.
const MinPorts = 10

// Validate checks the configuration and returns a message with a hint for
// the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Worktree.BaseDir) == "" {
		return invalid("missing required field 'worktree.base_dir'",
			"worktree:\n  base_dir: ~/reviews")
	}
	if !strings.Contains(c.Worktree.NamingTemplate, "{pr}") {
		return invalid(fmt.Sprintf("'worktree.naming_template' %q does not contain {pr}", c.Worktree.NamingTemplate),
			"worktree:\n  naming_template: pr-{pr}")
	}
	if strings.TrimSpace(c.Worktree.Remote) == "" {
		return invalid("missing required field 'worktree.remote'",
			"worktree:\n  remote: origin")
	}

	if pm := c.Sandbox.Node.PackageManager; pm != "" && pm != "auto" {
		if _, err := sandbox.ParsePackageManager(pm); err != nil {
			return invalid(fmt.Sprintf("invalid 'sandbox.node.package_manager' value %q", pm),
				"sandbox:\n  node:\n    package_manager: auto  # or npm, yarn, pnpm, bun")
		}
	}

	if err := c.Sandbox.Port.validate(); err != nil {
		return err
	}

	if c.Agents.TimeoutSeconds <= 0 {
		return invalid(fmt.Sprintf("invalid 'agents.timeout' value %d", c.Agents.TimeoutSeconds),
			"The timeout is in seconds and must be positive:\nagents:\n  timeout: 600")
	}
	for field, names := range map[string][]string{
		"agents.default_agents":  c.Agents.DefaultAgents,
		"agents.thorough_agents": c.Agents.ThoroughAgents,
	} {
		for _, name := range names {
			if _, err := agent.ParseKind(name); err != nil {
				return invalid(fmt.Sprintf("unknown agent %q in '%s'", name, field),
					"Supported agents are claude, codex and gemini.")
			}
		}
	}

	if c.State.MaxRetries < 1 {
		return invalid(fmt.Sprintf("invalid 'state.max_retries' value %d", c.State.MaxRetries),
			"state:\n  max_retries: 5")
	}
	if strings.TrimSpace(c.State.Path) == "" {
		return invalid("missing required field 'state.path'",
			"state:\n  path: ~/.chaba/state.yaml")
	}

	if _, err := logging.NewWithWriter(c.Log, io.Discard); err != nil {
		return invalid(err.Error(),
			"log:\n  level: info    # debug, info, warn, error\n  format: console  # or json")
	}
	return nil
}

func (p PortConfig) validate() error {
	if !p.Enabled {
		return nil
	}
	hint := "sandbox:\n  port:\n    range_start: 3000\n    range_end: 4000"
	switch {
	case p.RangeStart < 1024:
		return invalid(fmt.Sprintf("'sandbox.port.range_start' %d is a privileged port", p.RangeStart),
			"Use a start port of 1024 or higher:\n"+hint)
	case p.RangeEnd > 65535:
		return invalid(fmt.Sprintf("'sandbox.port.range_end' %d is not a valid port", p.RangeEnd), hint)
	case p.RangeStart >= p.RangeEnd:
		return invalid(fmt.Sprintf("port range start (%d) must be less than end (%d)", p.RangeStart, p.RangeEnd), hint)
	case p.RangeEnd-p.RangeStart+1 < MinPorts:
		return invalid(fmt.Sprintf("port range %d-%d has fewer than %d ports", p.RangeStart, p.RangeEnd, MinPorts), hint)
	}
	return nil
}

func invalid(problem, hint string) error {
	return fmt.Errorf("%w: configuration error: %s\n\nHint: %s", errs.ErrValidation, problem, hint)
}

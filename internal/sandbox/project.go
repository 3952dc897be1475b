// Package sandbox prepares a fresh review worktree: it detects the project
// type, installs dependencies and copies env files from the main checkout.
// Every step is best-effort.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// Kind is a detected project ecosystem.
type Kind string

const (
	KindNode    Kind = "node"
	KindRust    Kind = "rust"
	KindPython  Kind = "python"
	KindGo      Kind = "go"
	KindUnknown Kind = "unknown"
)

// PackageManager is a Node.js package manager.
type PackageManager string

const (
	PackageManagerNpm  PackageManager = "npm"
	PackageManagerYarn PackageManager = "yarn"
	PackageManagerPnpm PackageManager = "pnpm"
	PackageManagerBun  PackageManager = "bun"
)

// ParsePackageManager validates a configured package manager name.
func ParsePackageManager(name string) (PackageManager, error) {
	switch pm := PackageManager(name); pm {
	case PackageManagerNpm, PackageManagerYarn, PackageManagerPnpm, PackageManagerBun:
		return pm, nil
	default:
		return "", fmt.Errorf("unknown package manager %q (valid: npm, yarn, pnpm, bun, auto)", name)
	}
}

// Project describes what DetectProjectType found.
type Project struct {
	Kind            Kind
	PackageManager  PackageManager
	HasRequirements bool
	HasPyproject    bool
}

func (p Project) String() string {
	switch p.Kind {
	case KindNode:
		return fmt.Sprintf("Node.js (%s)", p.PackageManager)
	case KindRust:
		return "Rust"
	case KindPython:
		return "Python"
	case KindGo:
		return "Go"
	default:
		return "Unknown"
	}
}

// DetectProjectType inspects marker files at the top of path. The first
// match wins: package.json, Cargo.toml, requirements.txt or pyproject.toml,
// then go.mod.
func DetectProjectType(path string) Project {
	has := func(name string) bool {
		_, err := os.Stat(filepath.Join(path, name))
		return err == nil
	}

	if has("package.json") {
		pm := PackageManagerNpm
		switch {
		case has("bun.lockb"):
			pm = PackageManagerBun
		case has("pnpm-lock.yaml"):
			pm = PackageManagerPnpm
		case has("yarn.lock"):
			pm = PackageManagerYarn
		}
		return Project{Kind: KindNode, PackageManager: pm}
	}
	if has("Cargo.toml") {
		return Project{Kind: KindRust}
	}
	req, py := has("requirements.txt"), has("pyproject.toml")
	if req || py {
		return Project{Kind: KindPython, HasRequirements: req, HasPyproject: py}
	}
	if has("go.mod") {
		return Project{Kind: KindGo}
	}
	return Project{Kind: KindUnknown}
}

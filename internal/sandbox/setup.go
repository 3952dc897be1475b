package sandbox

import (
	"context"

	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/logging"
)

// Options selects which setup steps run.
type Options struct {
	AutoInstall bool
	CopyEnv     bool
	ExtraEnv    []string
	// NodePackageManager overrides lockfile detection; empty or "auto" detects.
	NodePackageManager string
}

// Info records what setup achieved.
type Info struct {
	ProjectType   string
	DepsInstalled bool
	EnvCopied     bool
}

// Setup runs the sandbox steps for new worktrees.
type Setup struct {
	opts      Options
	installer *Installer
	logger    *zap.Logger
}

// NewSetup creates a Setup.
func NewSetup(opts Options, installer *Installer, logger *zap.Logger) *Setup {
	return &Setup{opts: opts, installer: installer, logger: logging.OrNop(logger)}
}

// Run prepares the worktree at path using env files from mainRoot. Failures
// are logged and show up as false flags in Info; Run never fails.
func (s *Setup) Run(ctx context.Context, path, mainRoot string) Info {
	var info Info

	project := DetectProjectType(path)
	if project.Kind == KindNode {
		if pm, err := ParsePackageManager(s.opts.NodePackageManager); err == nil {
			project.PackageManager = pm
		}
	}
	info.ProjectType = project.String()
	s.logger.Info("detected project type", zap.String("project_type", info.ProjectType))

	if s.opts.AutoInstall && s.installer != nil && project.Kind != KindUnknown {
		if err := s.installer.Install(ctx, path, project); err != nil {
			s.logger.Warn("failed to install dependencies", zap.Error(err))
		} else {
			info.DepsInstalled = true
		}
	}

	if s.opts.CopyEnv {
		n, err := CopyEnvFiles(mainRoot, path, s.opts.ExtraEnv, s.logger)
		if err != nil {
			s.logger.Warn("failed to copy environment files", zap.Error(err))
		}
		info.EnvCopied = n > 0 && err == nil
	}

	return info
}

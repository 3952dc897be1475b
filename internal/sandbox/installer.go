package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/command"
	"github.com/iambrandonn/chaba/internal/logging"
)

// Installer runs the dependency install command for a project.
type Installer struct {
	runner command.Runner
	logger *zap.Logger
}

// NewInstaller creates an installer that runs commands through runner.
func NewInstaller(runner command.Runner, logger *zap.Logger) *Installer {
	return &Installer{runner: runner, logger: logging.OrNop(logger)}
}

// Install installs dependencies for p inside path. Unknown projects are a no-op.
func (i *Installer) Install(ctx context.Context, path string, p Project) error {
	switch p.Kind {
	case KindNode:
		return i.run(ctx, path, string(p.PackageManager), "install")
	case KindRust:
		return i.run(ctx, path, "cargo", "build")
	case KindPython:
		if p.HasRequirements {
			if err := i.run(ctx, path, "pip", "install", "-r", "requirements.txt"); err != nil {
				return err
			}
		}
		if p.HasPyproject {
			// editable install failure only warns
			if err := i.run(ctx, path, "pip", "install", "-e", "."); err != nil {
				i.logger.Warn("editable install failed", zap.Error(err))
			}
		}
		return nil
	case KindGo:
		return i.run(ctx, path, "go", "mod", "download")
	default:
		i.logger.Info("unknown project type, skipping dependency installation")
		return nil
	}
}

func (i *Installer) run(ctx context.Context, dir, name string, args ...string) error {
	i.logger.Info("installing dependencies", zap.String("command", name), zap.Strings("args", args))
	out, err := i.runner.Run(ctx, dir, name, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return out.Err(name)
}

package sandbox

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/fsutil"
	"github.com/iambrandonn/chaba/internal/logging"
)

const maxEnvFileSize = 1 << 20

var sensitiveNameParts = []string{
	"SECRET", "TOKEN", "PASSWORD", "PASSWD", "PRIVATE", "CREDENTIAL", "API_KEY", "APIKEY", "ACCESS_KEY", "AUTH",
}

var loadDetector = sync.OnceValues(detect.NewDetectorDefaultConfig)

// CopyEnvFiles copies .env and each of extra from src into dst when present
// and returns how many files were copied. Copies are written with 0600
// permissions.
//
// Variables whose names look sensitive, and values the gitleaks rule set
// recognizes as secrets, produce warnings. They never block the copy and the
// values are never logged.
func CopyEnvFiles(src, dst string, extra []string, logger *zap.Logger) (int, error) {
	logger = logging.OrNop(logger)

	names := append([]string{".env"}, extra...)
	seen := make(map[string]bool, len(names))
	copied := 0
	var errs []error

	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		from, err := fsutil.ValidatePath(name, src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		to, err := fsutil.ValidatePath(name, dst)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		info, err := os.Stat(from)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("stat %s: %w", name, err))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		if info.Size() > maxEnvFileSize {
			errs = append(errs, fmt.Errorf("%s is larger than %d bytes; not copied", name, maxEnvFileSize))
			continue
		}

		data, err := fsutil.ReadFileLimited(from, maxEnvFileSize+1)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", name, err))
			continue
		}
		if len(data) > maxEnvFileSize {
			errs = append(errs, fmt.Errorf("%s grew past %d bytes while copying; not copied", name, maxEnvFileSize))
			continue
		}
		if err := fsutil.AtomicWrite(to, data); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", name, err))
			continue
		}

		copied++
		logger.Info("copied env file", zap.String("file", name))
		warnSensitive(name, data, logger)
	}

	return copied, errors.Join(errs...)
}

func warnSensitive(file string, data []byte, logger *zap.Logger) {
	if vars := SensitiveVariables(data); len(vars) > 0 {
		logger.Warn("env file contains sensitive-looking variables; review before sharing this environment",
			zap.String("file", file),
			zap.Strings("variables", vars))
	}

	detector, err := loadDetector()
	if err != nil {
		logger.Debug("secret scanner unavailable", zap.Error(err))
		return
	}
	for _, f := range detector.DetectString(string(data)) {
		logger.Warn("possible secret value in env file",
			zap.String("file", file),
			zap.String("rule", f.RuleID),
			zap.String("description", f.Description),
			zap.Int("line", f.StartLine))
	}
}

// SensitiveVariables returns the names of variables in env-file content
// whose names suggest they hold credentials.
func SensitiveVariables(data []byte) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		name, _, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		upper := strings.ToUpper(name)
		for _, part := range sensitiveNameParts {
			if strings.Contains(upper, part) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

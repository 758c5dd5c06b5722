package logging

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget specifies a directory tree and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	// Exclude lists absolute paths that must survive, such as the active log file.
	Exclude []string
}

// CleanupOldFiles removes files under the targets whose modification time is
// older than retentionDays. Nested directories are walked so screenshot keys
// such as <flow>/<doctor>/error_*.png are covered. Zero disables pruning.
// Returns the number of files removed.
func CleanupOldFiles(logger *slog.Logger, retentionDays int, now time.Time, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0

	for _, target := range targets {
		root := strings.TrimSpace(target.Dir)
		if root == "" {
			continue
		}
		exclusions := make(map[string]struct{}, len(target.Exclude))
		for _, path := range target.Exclude {
			if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
				exclusions[abs] = struct{}{}
			}
		}
		_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil || entry.IsDir() {
				return nil
			}
			if pat := strings.TrimSpace(target.Pattern); pat != "" {
				if matched, err := filepath.Match(pat, entry.Name()); err != nil || !matched {
					return nil
				}
			}
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			if _, skip := exclusions[path]; skip {
				return nil
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "retention remove failed; file remains", "retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions and directory ownership"),
					String(FieldImpact, "old file remains on disk"),
				)
				return nil
			}
			removed++
			if logger != nil {
				logger.Debug("file pruned", String("path", path), String(FieldEventType, "file_pruned"))
			}
			return nil
		})
	}
	return removed
}

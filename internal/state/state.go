// Package state tracks the last-seen release timestamp per tracked version.
// The timestamp lives in a plain-text file under the workspace directory and
// is overwritten after every poll cycle.
package state

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// filePattern names the per-version timestamp file in the workspace.
const filePattern = "latestTimestamp_%s"

// LatestReleaseInfo compares the just-retrieved newest publish timestamp of a
// version against the one persisted by a previous cycle.
type LatestReleaseInfo struct {
	path    string
	current time.Time
	logger  *slog.Logger
}

// New constructs a LatestReleaseInfo for one version. The workspace directory
// is created if missing.
func New(workspaceDir, version string, current time.Time, logger *slog.Logger) (*LatestReleaseInfo, error) {
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory %s: %w", workspaceDir, err)
	}

	return &LatestReleaseInfo{
		path:    filepath.Join(workspaceDir, fmt.Sprintf(filePattern, version)),
		current: current,
		logger:  logger,
	}, nil
}

// IsRetestNeeded reports whether the current timestamp is strictly newer than
// the persisted one. A missing, unreadable or unparseable file counts as "no
// prior state" and always needs a retest; it is never surfaced as an error.
func (l *LatestReleaseInfo) IsRetestNeeded() bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		l.logger.Info("no persisted timestamp, retest needed", "path", l.path)
		return true
	}

	persisted, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		l.logger.Warn("persisted timestamp unreadable, treating as no prior state",
			"path", l.path,
			"error", err)
		return true
	}

	return l.current.After(persisted)
}

// WriteLatest unconditionally persists the current timestamp, whether or not
// a retest was needed. There is no rollback.
func (l *LatestReleaseInfo) WriteLatest() error {
	value := l.current.UTC().Format(time.RFC3339)
	if err := os.WriteFile(l.path, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to persist timestamp to %s: %w", l.path, err)
	}

	l.logger.Debug("persisted release timestamp", "path", l.path, "timestamp", value)
	return nil
}

// Path returns the location of the timestamp file.
func (l *LatestReleaseInfo) Path() string {
	return l.path
}

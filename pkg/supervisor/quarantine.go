package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// quarantineSentinel is the file whose mere presence halts the pipeline.
const quarantineSentinel = "failed.ldif"

// QuarantineChecker guards the dispatcher against the failed-replay
// sentinel. It is checked at startup and before every
// transaction, since an operator may drop the sentinel while the
// pipeline is running to pause it after investigating a prior failure.
type QuarantineChecker struct {
	dataDir string
}

// NewQuarantineChecker builds a checker rooted at dataDir.
func NewQuarantineChecker(dataDir string) *QuarantineChecker {
	return &QuarantineChecker{dataDir: dataDir}
}

// Path returns the sentinel's full path.
func (q *QuarantineChecker) Path() string {
	return filepath.Join(q.dataDir, quarantineSentinel)
}

// Check returns ErrQuarantine if the sentinel file exists.
func (q *QuarantineChecker) Check(ctx context.Context) error {
	_, err := os.Stat(q.Path())
	if err == nil {
		return fmt.Errorf("%w: %s", ErrQuarantine, q.Path())
	}
	if os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("supervisor: stat quarantine sentinel: %w", err)
}

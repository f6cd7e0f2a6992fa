package supervisor

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/dirlistener/dirlistener/internal/bytesize"
	"github.com/dirlistener/dirlistener/internal/logger"
)

// FreeSpaceWatchdog compares free space on the configured filesystems
// against a minimum threshold before every transaction. A zero
// MinFree disables the check.
type FreeSpaceWatchdog struct {
	// Paths are the filesystem mount points to check — typically the
	// cache directory and the directory client's local spool, if any.
	Paths []string

	// MinFree is the minimum free space every path must retain. 0
	// disables the watchdog. Configured as a human-readable size
	// ("500Mi", "2Gi") rather than a bare integer.
	MinFree bytesize.ByteSize
}

// Check inspects every configured path and returns ErrFreeSpace on the
// first breach. Never silently advances: the caller (the dispatcher's
// PreTransaction hook) must abort the transaction on any non-nil
// error.
func (w *FreeSpaceWatchdog) Check(ctx context.Context) error {
	if w.MinFree == 0 {
		return nil
	}

	minFreeBytes := w.MinFree.Uint64()
	for _, path := range w.Paths {
		usage, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			return fmt.Errorf("supervisor: disk usage for %s: %w", path, err)
		}
		if usage.Free < minFreeBytes {
			logger.Error("supervisor: free space below minimum", "path", path, "free_bytes", usage.Free, "min_free", w.MinFree.String())
			return fmt.Errorf("%w: %s has %s free, need %s", ErrFreeSpace, path, bytesize.ByteSize(usage.Free), w.MinFree)
		}
	}
	return nil
}

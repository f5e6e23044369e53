package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/host"
)

const VersionFile = "version.txt"

// VersionLine formats the OS stamp of a report: product, version and build.
func VersionLine(info *host.InfoStat) string {
	if info == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s %s (%s %s)", info.Platform, info.PlatformVersion, info.KernelVersion, info.KernelArch)
}

// WriteVersion stamps the report directory with the OS the snapshot was taken
// on, this host unless info is given.
func (w *Writer) WriteVersion(ctx context.Context, info *host.InfoStat) error {
	if info == nil {
		var err error
		if info, err = host.InfoWithContext(ctx); err != nil {
			return fmt.Errorf("host info: %w", err)
		}
	}
	return os.WriteFile(filepath.Join(w.Dir, VersionFile), []byte(VersionLine(info)+"\n"), 0o644)
}

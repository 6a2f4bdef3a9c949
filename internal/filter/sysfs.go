package filter

import (
	"os"
	"path/filepath"

	"github.com/lvm2go/lvm2core/internal/devcache"
)

// SysfsFilter rejects any device whose block entry isn't present under a
// sysfs mount, matching sysfs_filter_create's use as a quick, cheap
// existence check ahead of the more expensive regex/usable filters.
type SysfsFilter struct {
	sysfsDir string
	stat     func(string) (os.FileInfo, error)
}

// NewSysfsFilter builds a SysfsFilter rooted at sysfsDir (typically
// "/sys"). A nil stat defaults to os.Stat.
func NewSysfsFilter(sysfsDir string, stat func(string) (os.FileInfo, error)) *SysfsFilter {
	if stat == nil {
		stat = os.Stat
	}
	return &SysfsFilter{sysfsDir: sysfsDir, stat: stat}
}

func (s *SysfsFilter) PassesFilter(dev *devcache.Device) (bool, error) {
	if s.sysfsDir == "" {
		return true, nil
	}
	name := filepath.Base(dev.Name())
	if name == "" {
		return false, nil
	}
	path := filepath.Join(s.sysfsDir, "block", name)
	if _, err := s.stat(path); err != nil {
		return false, nil
	}
	return true, nil
}

package filter

import (
	"path/filepath"
	"strings"

	"github.com/lvm2go/lvm2core/internal/devcache"
)

// MpathFilter rejects devices that are components of a device-mapper
// multipath device, matching _ignore_mpath/dev_is_mpath: a SCSI device
// with exactly one holder whose kernel name is itself a "dm-*" device is
// a multipath component and must not be scanned directly. readDir is
// injected so this can run without a real sysfs.
type MpathFilter struct {
	sysfsDir string
	readDir  func(dir string) ([]string, error)
}

// NewMpathFilter builds an MpathFilter rooted at sysfsDir (typically
// "/sys"). readDir must not be nil.
func NewMpathFilter(sysfsDir string, readDir func(dir string) ([]string, error)) *MpathFilter {
	return &MpathFilter{sysfsDir: sysfsDir, readDir: readDir}
}

func (m *MpathFilter) PassesFilter(dev *devcache.Device) (bool, error) {
	if m.sysfsDir == "" {
		return true, nil
	}

	name := filepath.Base(dev.Name())
	if name == "" {
		return true, nil
	}

	holders, err := m.readDir(filepath.Join(m.sysfsDir, "block", name, "holders"))
	if err != nil || len(holders) != 1 {
		// no holders dir, or more than one holder: not a sole mpath leg.
		return true, nil
	}

	if strings.HasPrefix(holders[0], "dm-") {
		return false, nil
	}
	return true, nil
}

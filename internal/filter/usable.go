package filter

import "github.com/lvm2go/lvm2core/internal/devcache"

// UsableFilter rejects devices too small to ever hold a PV, mirroring
// _check_pv_min_size/_native_check_pv_min_size. The size getter is
// injected so tests don't need a real block device; production callers
// default to devio.GetSize.
type UsableFilter struct {
	minSizeSectors uint64
	getSize        func(dev *devcache.Device) (uint64, error)
}

// NewUsableFilter builds a UsableFilter rejecting any device smaller
// than minSizeSectors (512-byte sectors). getSize must not be nil.
func NewUsableFilter(minSizeSectors uint64, getSize func(dev *devcache.Device) (uint64, error)) *UsableFilter {
	return &UsableFilter{minSizeSectors: minSizeSectors, getSize: getSize}
}

func (u *UsableFilter) PassesFilter(dev *devcache.Device) (bool, error) {
	size, err := u.getSize(dev)
	if err != nil {
		// unreadable device: matches dev_open_readonly_quiet failing and
		// the original skipping it rather than raising an error.
		return false, nil
	}
	return size >= u.minSizeSectors, nil
}

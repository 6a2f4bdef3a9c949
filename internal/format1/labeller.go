package format1

import (
	"github.com/lvm2go/lvm2core/internal/devcache"
	"github.com/lvm2go/lvm2core/internal/label"
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
)

// Labeller implements label.Labeller for the lvm1 format: the pv_disk
// header lives at the very front of the device (spec.md §6), so
// CanHandle only ever looks at the "HM" magic within whatever window
// label.WindowSize handed it.
type Labeller struct{}

func (Labeller) Name() string { return "lvm1" }

func (Labeller) CanHandle(dev *devcache.Device, window []byte) bool {
	if len(window) < 4 {
		return false
	}
	return window[0] == Magic[0] && window[1] == Magic[1]
}

func (Labeller) Read(dev *devcache.Device, window []byte) (*label.Label, error) {
	pvd, err := DecodePVDisk(window)
	if err != nil {
		return nil, lvmerrors.Formatf("format1: %s: %w", dev.Name(), err)
	}
	return &label.Label{
		PVID:       pvd.PVUUID,
		VolumeType: "lvm1",
		Version:    [3]uint32{1, uint32(pvd.Version), 0},
	}, nil
}

var _ label.Labeller = Labeller{}

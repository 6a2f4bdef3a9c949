// Package formatpool implements the read-only "pool" format of spec.md
// §4.I: VGs reconstructed entirely from a set of per-device subpool
// descriptors with no separate metadata area, grounded on
// original_source/lib/format_pool/format_pool.c and pool_label.c.
package formatpool

import (
	"encoding/binary"

	"github.com/lvm2go/lvm2core/internal/devcache"
	"github.com/lvm2go/lvm2core/internal/label"
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/uuidcrc"
)

// Magic/Version match pool_label.c's "ignore the 8 rightmost bits on
// version" compatibility check.
const (
	Magic     uint32 = 0x002F5441 // "AT/\x00" sentinel distinct from format1's "HM"
	Version   uint32 = 0x0211
	uuidLen          = uuidcrc.Len
	diskHeaderLen = 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 8 + uuidLen
)

// Disk is one device's pool_disk header: which subpool and device-within-
// subpool this device is, how the subpool as a whole is laid out, and its
// own PV uuid. Every device in the pool carries a copy of its own
// subpool's striping parameters, which is why VG reconstruction can
// proceed with nothing but these headers (no metadata area needed).
type Disk struct {
	Magic    uint32
	Version  uint32
	Subpools uint32 // total subpool count in the pool
	SPID     uint32 // which subpool this device belongs to
	Striping uint32 // stripe count for this subpool
	SPDevs   uint32 // device count in this subpool
	SPType   uint32
	SPDevID  uint32 // this device's index within its subpool
	Blocks   uint64 // this device's contribution, in blocks
	PVUUID   string // uuidcrc.Len characters
}

func (d *Disk) Encode() []byte {
	b := make([]byte, diskHeaderLen)
	binary.LittleEndian.PutUint32(b[0:4], d.Magic)
	binary.LittleEndian.PutUint32(b[4:8], d.Version)
	binary.LittleEndian.PutUint32(b[8:12], d.Subpools)
	binary.LittleEndian.PutUint32(b[12:16], d.SPID)
	binary.LittleEndian.PutUint32(b[16:20], d.Striping)
	binary.LittleEndian.PutUint32(b[20:24], d.SPDevs)
	binary.LittleEndian.PutUint32(b[24:28], d.SPType)
	binary.LittleEndian.PutUint32(b[28:32], d.SPDevID)
	binary.LittleEndian.PutUint64(b[32:40], d.Blocks)
	copy(b[40:40+uuidLen], d.PVUUID)
	return b
}

func Decode(b []byte) (*Disk, error) {
	if len(b) < diskHeaderLen {
		return nil, lvmerrors.Formatf("formatpool: header too short (%d bytes)", len(b))
	}
	d := &Disk{
		Magic:    binary.LittleEndian.Uint32(b[0:4]),
		Version:  binary.LittleEndian.Uint32(b[4:8]),
		Subpools: binary.LittleEndian.Uint32(b[8:12]),
		SPID:     binary.LittleEndian.Uint32(b[12:16]),
		Striping: binary.LittleEndian.Uint32(b[16:20]),
		SPDevs:   binary.LittleEndian.Uint32(b[20:24]),
		SPType:   binary.LittleEndian.Uint32(b[24:28]),
		SPDevID:  binary.LittleEndian.Uint32(b[28:32]),
		Blocks:   binary.LittleEndian.Uint64(b[32:40]),
		PVUUID:   string(b[40 : 40+uuidLen]),
	}
	return d, nil
}

// matches reports the magic+version compatibility check _can_handle does,
// ignoring the low byte of Version (a minor-version bump is tolerated).
func matches(d *Disk) bool {
	return d.Magic == Magic && d.Version&^0xFF == Version&^0xFF
}

// Device is one physical volume's contribution to a subpool, the fields
// _build_usp collects into user_device.
type Device struct {
	SPID       uint32
	DevID      uint32
	Blocks     uint64
	PVID       string
	Initialized bool
}

// Subpool is user_subpool: one striped group of devices within the pool.
type Subpool struct {
	ID          uint32
	Striping    uint32
	Type        uint32
	NumDevs     uint32
	Devs        []Device // indexed by DevID once fully initialized
	Initialized bool
}

// BuildSubpools groups per-device headers into their subpools, matching
// _build_usp's pass over the pool_list. The first header that names a
// given subpool ID determines that subpool's striping/type/device-count
// fields; later headers for the same subpool only contribute devices.
func BuildSubpools(headers []Disk, pvids []string) ([]Subpool, error) {
	if len(headers) != len(pvids) {
		return nil, lvmerrors.Internalf("formatpool: %d headers but %d pvids", len(headers), len(pvids))
	}

	var sps []Subpool
	bySPID := map[uint32]*Subpool{}

	for i, h := range headers {
		sp, ok := bySPID[h.SPID]
		if !ok {
			sps = append(sps, Subpool{
				ID:          h.SPID,
				Striping:    h.Striping,
				Type:        h.SPType,
				NumDevs:     h.SPDevs,
				Devs:        make([]Device, h.SPDevs),
				Initialized: true,
			})
			sp = &sps[len(sps)-1]
			bySPID[h.SPID] = sp
		}
		if h.SPDevID >= sp.NumDevs {
			return nil, lvmerrors.Formatf("formatpool: subpool %d device id %d out of range [0,%d)", h.SPID, h.SPDevID, sp.NumDevs)
		}
		sp.Devs[h.SPDevID] = Device{
			SPID: h.SPID, DevID: h.SPDevID, Blocks: h.Blocks,
			PVID: pvids[i], Initialized: true,
		}
	}

	return sps, nil
}

// CheckSubpools matches _check_usp: the pool format cannot express a
// partial VG, so every device slot of every subpool in sps must be
// present or the whole VG is rejected. A subpool with no header at all
// is absent from sps; ImportVG rejects that case by comparing len(sps)
// with the headers' Subpools count.
func CheckSubpools(vgName string, sps []Subpool) error {
	for _, sp := range sps {
		if !sp.Initialized {
			return lvmerrors.NotFoundf("formatpool: missing subpool %d in pool %s", sp.ID, vgName)
		}
		for j, dev := range sp.Devs {
			if !dev.Initialized {
				return lvmerrors.NotFoundf("formatpool: missing device %d for subpool %d in pool %s", j, sp.ID, vgName)
			}
		}
	}
	return nil
}

// Labeller implements label.Labeller for the pool format: a one-sector
// header at the very front of the device, never a 4 KB window, so
// CanHandle only looks at the first diskHeaderLen bytes of the window.
type Labeller struct{}

func (Labeller) Name() string { return "pool" }

func (Labeller) CanHandle(dev *devcache.Device, window []byte) bool {
	d, err := Decode(window)
	if err != nil {
		return false
	}
	return matches(d)
}

func (Labeller) Read(dev *devcache.Device, window []byte) (*label.Label, error) {
	d, err := Decode(window)
	if err != nil {
		return nil, err
	}
	if !matches(d) {
		return nil, lvmerrors.Formatf("formatpool: %s does not carry a pool label", dev.Name())
	}
	return &label.Label{PVID: d.PVUUID, VolumeType: "pool", Version: [3]uint32{2, uint32(d.Version >> 8), uint32(d.Version & 0xFF)}}, nil
}

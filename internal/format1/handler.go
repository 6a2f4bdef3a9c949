package format1

import (
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
)

// BlockDevice is the narrow page-aligned I/O surface format1 needs;
// internal/devio.File satisfies it structurally, so this package never
// imports internal/devio directly (component I only ever reads/writes at
// fixed offsets, never does ioctl sizing).
type BlockDevice interface {
	Read(offset uint64, length int) ([]byte, error)
	Write(offset uint64, data []byte) (int, error)
}

// DeviceResolver opens the block device backing a PV name, standing in
// for dev_cache_get + dev_open in the original's pv_read.
type DeviceResolver func(pvName string) (BlockDevice, error)

// Handler implements metadata.FormatHandler for the lvm1 on-disk format.
type Handler struct {
	Devices DeviceResolver
	segType metadata.SegmentType // striped, the only segtype format1 stores
}

// New builds a format1 Handler. segType must be the registry's "striped"
// segment type (spec.md §4.I: format1 can only express striped/linear).
func New(devices DeviceResolver, segType metadata.SegmentType) *Handler {
	return &Handler{Devices: devices, segType: segType}
}

func (h *Handler) Name() string { return "lvm1" }

// Scan is a no-op for format1: every PV carries its own complete VG
// metadata inline, so there is no separate metadata area to discover
// beyond the label itself (unlike format_text's ring-buffer MDAs).
func (h *Handler) Scan(vgName string) error { return nil }

func (h *Handler) PVRead(pvName string, scanLabelOnly bool) (*metadata.PV, error) {
	dev, err := h.Devices(pvName)
	if err != nil {
		return nil, err
	}
	header, err := dev.Read(0, pvDiskV2Size)
	if err != nil {
		return nil, err
	}
	pvd, err := DecodePVDisk(header)
	if err != nil {
		return nil, err
	}
	pv, err := pvd.ToPV()
	if err != nil {
		return nil, err
	}
	pv.DevName = pvName
	if scanLabelOnly {
		return pv, nil
	}

	if pvd.VGName == "" {
		return pv, nil
	}

	vgBuf, err := dev.Read(uint64(pvd.VGOnDisk.Base)*512, int(pvd.VGOnDisk.Size)*512)
	if err != nil {
		return nil, err
	}
	if _, err := DecodeVGDisk(vgBuf); err != nil {
		return nil, err
	}

	peBuf, err := dev.Read(uint64(pvd.PEOnDisk.Base)*512, int(pvd.PEOnDisk.Size)*512)
	if err != nil {
		return nil, err
	}
	pes, err := DecodePEMap(peBuf)
	if err != nil {
		return nil, err
	}

	lvBuf, err := dev.Read(uint64(pvd.LVOnDisk.Base)*512, int(pvd.LVOnDisk.Size)*512)
	if err != nil {
		return nil, err
	}
	lvsByNumber := map[uint16]*metadata.LV{}
	for i := 0; i*lvDiskSize < len(lvBuf); i++ {
		chunk := lvBuf[i*lvDiskSize : (i+1)*lvDiskSize]
		lvd, err := DecodeLVDisk(chunk)
		if err != nil {
			return nil, err
		}
		if lvd.LVName == "" {
			continue
		}
		lv := &metadata.LV{Name: lvd.LVName, LECount: lvd.LVAllocatedLE}
		lvsByNumber[uint16(lvd.LVNumber)] = lv
	}

	if err := ImportSegments(pv, pes, func(num uint16) *metadata.LV { return lvsByNumber[num] }, h.segType); err != nil {
		return nil, err
	}

	return pv, nil
}

// PVInitialise lays out a fresh orphan PV: version 2 header with an
// explicit PEStart, matching pv_setup's defaulting for a brand new disk.
func (h *Handler) PVInitialise(pv *metadata.PV, labelSector int64) error {
	if pv.PEStart == 0 {
		pv.PEStart = 8 // sectors; matches the original's default data offset
	}
	return nil
}

func (h *Handler) PVSetup(pv *metadata.PV, vg *metadata.VG) error {
	if vg != nil && pv.PESize != vg.ExtentSize && vg.ExtentSize != 0 {
		return lvmerrors.InvalidArgumentf("format1: pv extent_size must match vg extent_size")
	}
	return nil
}

func (h *Handler) PVAddMetadataArea(pv *metadata.PV, peStartLocked bool, index int, size uint64, ignored bool) error {
	return lvmerrors.UnsupportedFeaturef("format1: metadata areas are not a separate concept; metadata lives in the fixed pv header")
}

func (h *Handler) PVRemoveMetadataArea(pv *metadata.PV, index int) error {
	return lvmerrors.UnsupportedFeaturef("format1: metadata areas are not a separate concept")
}

func (h *Handler) PVResize(pv *metadata.PV, vg *metadata.VG, size uint64) error {
	if size < pv.PEStart+uint64(pv.PECount)*pv.PESize {
		return lvmerrors.InvalidArgumentf("format1: new size too small for existing extents")
	}
	pv.Size = size
	newCount := uint32((size - pv.PEStart) / pv.PESize)
	if newCount < pv.PEAllocCount {
		return lvmerrors.InvalidArgumentf("format1: shrinking below allocated extents")
	}
	pv.PECount = newCount
	return nil
}

func (h *Handler) PVWrite(pv *metadata.PV) error {
	if len(pv.VGName) > 0 {
		return lvmerrors.InvalidArgumentf("format1: pv_write requires an orphan pv")
	}
	dev, err := h.Devices(pv.DevName)
	if err != nil {
		return err
	}
	d := FromPV(pv, 0)
	d.Version = 2
	d.PEStart = uint32(pv.PEStart)
	b, err := d.Encode()
	if err != nil {
		return err
	}
	_, err = dev.Write(0, b)
	return err
}

func (h *Handler) LVSetup(fid *metadata.FormatInstance, lv *metadata.LV) error {
	if len(lv.Name) > NameLen-1 {
		return lvmerrors.InvalidArgumentf("format1: lv name %q exceeds %d characters", lv.Name, NameLen-1)
	}
	return nil
}

func (h *Handler) VGSetup(fid *metadata.FormatInstance, vg *metadata.VG) error {
	if len(vg.PVs) > MaxPV {
		return lvmerrors.UnsupportedFeaturef("format1: vg %s exceeds max_pv %d", vg.Name, MaxPV)
	}
	if len(vg.LVs) > MaxLV {
		return lvmerrors.UnsupportedFeaturef("format1: vg %s exceeds max_lv %d", vg.Name, MaxLV)
	}
	return vg.SetMaxLV(MaxLV, true)
}

// SegtypeSupported matches spec.md §4.K: only striped/linear (and the
// SegFormat1Support flag generally) may be stored in format1.
func (h *Handler) SegtypeSupported(fid *metadata.FormatInstance, segtypeName string) bool {
	return segtypeName == "striped" || segtypeName == "linear"
}

func (h *Handler) CreateInstance(fic metadata.FormatInstanceCtx) (*metadata.FormatInstance, error) {
	return metadata.NewFormatInstance(fic.Kind, h), nil
}

func (h *Handler) DestroyInstance(fid *metadata.FormatInstance) {}

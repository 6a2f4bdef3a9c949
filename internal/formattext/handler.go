package formattext

import (
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
)

// DefaultMDASize is the ring buffer size _text_pv_add_metadata_area
// defaults to (2 sibling copies' worth of headroom for the monotone
// append-then-wrap scheme), absent a caller-specified size.
const DefaultMDASize = 192 * 1024

// Handler implements metadata.FormatHandler for format_text: the
// general-purpose on-disk format backing ordinary (non-pool,
// non-format1) PVs, matching original_source/lib/format_text/*'s
// _text_pv_* vtable entries. NewDevice opens the backing block device
// for a PV, kept as an injected function so this package never imports
// internal/devio.
type Handler struct {
	ResolveSegType func(name string) (metadata.SegmentType, error)
	NewDevice      func(pvName string) (Device, error)
}

func New(resolveSegType func(name string) (metadata.SegmentType, error), newDevice func(pvName string) (Device, error)) *Handler {
	return &Handler{ResolveSegType: resolveSegType, NewDevice: newDevice}
}

func (h *Handler) Name() string { return "text" }

func (h *Handler) Scan(vgName string) error { return nil }

func (h *Handler) PVRead(pvName string, scanLabelOnly bool) (*metadata.PV, error) {
	return nil, lvmerrors.UnsupportedFeaturef("formattext: pv_read goes through a VG's metadata areas, not a bare pv name")
}

func (h *Handler) PVInitialise(pv *metadata.PV, labelSector int64) error { return nil }

func (h *Handler) PVSetup(pv *metadata.PV, vg *metadata.VG) error { return nil }

// PVAddMetadataArea installs a fresh ring buffer at the requested index,
// matching _text_pv_add_metadata_area: size 0 means "use the default".
func (h *Handler) PVAddMetadataArea(pv *metadata.PV, peStartLocked bool, index int, size uint64, ignored bool) error {
	if size == 0 {
		size = DefaultMDASize
	}
	dev, err := h.NewDevice(pv.DevName)
	if err != nil {
		return lvmerrors.IOf("formattext: opening %s: %w", pv.DevName, err)
	}
	mda := &metadata.MDA{
		Ops: &Ops{ResolveSegType: h.ResolveSegType},
		Locn: &Ring{
			Dev:       dev,
			MDAOffset: mdaHeaderOffset(index),
			RingStart: mdaHeaderOffset(index) + headerLen,
			RingSize:  size,
		},
	}
	mda.SetIgnored(ignored)
	pv.AddMetadataArea(mda)
	return nil
}

func (h *Handler) PVRemoveMetadataArea(pv *metadata.PV, index int) error {
	return nil
}

func (h *Handler) PVResize(pv *metadata.PV, vg *metadata.VG, size uint64) error {
	pv.Size = size
	return nil
}

// PVWrite does nothing and returns nil: it writes no MDA header and no
// per-PV label payload. Ring headers are written only by Ring.Commit.
func (h *Handler) PVWrite(pv *metadata.PV) error { return nil }

func (h *Handler) LVSetup(fid *metadata.FormatInstance, lv *metadata.LV) error { return nil }

func (h *Handler) VGSetup(fid *metadata.FormatInstance, vg *metadata.VG) error { return nil }

func (h *Handler) SegtypeSupported(fid *metadata.FormatInstance, segtypeName string) bool {
	return true
}

// CreateInstance returns a format instance with no metadata areas; it
// does not pick up the MDAs found by a PV's label scan.
func (h *Handler) CreateInstance(fic metadata.FormatInstanceCtx) (*metadata.FormatInstance, error) {
	fi := metadata.NewFormatInstance(fic.Kind, h)
	return fi, nil
}

func (h *Handler) DestroyInstance(fid *metadata.FormatInstance) {}

// mdaHeaderOffset places metadata area index at byte offset 4096 plus index
// slots of DefaultMDASize, mirroring the fixed bootstrap offsets
// pv_setup reserves right after the label sectors.
func mdaHeaderOffset(index int) uint64 {
	const firstMDAOffset = 4096
	return firstMDAOffset + uint64(index)*DefaultMDASize
}

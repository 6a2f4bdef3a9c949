package formatpool

import (
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
)

// SectorsPerBlock converts a pool_disk block count into sectors. The
// original on-disk pl_blocks unit isn't present in the retrieved
// disk_rep.h, so this is a documented choice (4 KB blocks over 512-byte
// sectors), recorded as an Open Question decision.
const SectorsPerBlock = 8

// poolSegType is the only segment type the pool format emits: one striped
// segment per subpool, spanning its member devices evenly.
var _ metadata.SegmentType = poolSegType{}

type poolSegType struct{}

func (poolSegType) Name() string              { return "striped" }
func (poolSegType) HasFlag(flag uint32) bool { return flag == metadata.SegAreasStriped }

// ImportVG reconstructs a complete VG from nothing but the per-device
// pool_disk headers already read off every member's label (one subpool
// becomes one LV, striped across its devices), matching
// _pool_vg_read's read_pool_pds -> import_pool_vg/pvs/lvs/segments
// chain, minus the metadata area indirection the pool format never
// needs.
func ImportVG(vgID, vgName string, headers []Disk) (*metadata.VG, error) {
	pvids := make([]string, len(headers))
	for i, h := range headers {
		pvids[i] = h.PVUUID
	}

	sps, err := BuildSubpools(headers, pvids)
	if err != nil {
		return nil, err
	}
	if err := CheckSubpools(vgName, sps); err != nil {
		return nil, err
	}
	// a subpool none of whose devices was found has no header at all, so
	// compare against the subpool count every header carries.
	if len(headers) > 0 && headers[0].Subpools > 0 && uint32(len(sps)) != headers[0].Subpools {
		return nil, lvmerrors.NotFoundf("formatpool: pool %s has %d of its %d subpools", vgName, len(sps), headers[0].Subpools)
	}

	vg := metadata.NewVG(vgID, vgName)
	vg.Seqno = 1 // matches format_pool.c's always-1 seqno

	// Every extent is one block: this keeps a device's own pe_count equal
	// to its reported block count, so the VG-wide extent size stays
	// constant across every subpool regardless of per-device capacity.
	const extentSize = SectorsPerBlock

	for _, sp := range sps {
		var areas []metadata.Area
		var segLen uint32
		for i, dev := range sp.Devs {
			size := dev.Blocks * extentSize
			pv, err := metadata.NewPV(dev.PVID, size, extentSize, 0, uint32(dev.Blocks))
			if err != nil {
				return nil, err
			}
			if err := vg.AddPV(pv); err != nil {
				return nil, err
			}
			if i == 0 {
				segLen = uint32(dev.Blocks)
			} else if uint32(dev.Blocks) < segLen {
				// a striped segment's length is capped by its
				// shortest member device.
				segLen = uint32(dev.Blocks)
			}
			areas = append(areas, metadata.Area{Kind: metadata.AreaPV, PV: pv, PE: 0, Len: uint32(dev.Blocks)})
		}
		for i := range areas {
			areas[i].Len = segLen
		}

		lv := &metadata.LV{
			Name:    poolLVName(vgName, sp.ID),
			LECount: segLen,
			VG:      vg,
		}
		lv.Segments = []*metadata.Segment{{
			LV: lv, LE: 0, Len: segLen,
			Type: poolSegType{}, StripeSize: sp.Striping,
			Areas: areas,
		}}
		vg.LVs = append(vg.LVs, lv)
	}

	return vg, nil
}

func poolLVName(vgName string, spID uint32) string {
	const digits = "0123456789"
	if spID == 0 {
		return vgName + "-sp0"
	}
	var b []byte
	n := spID
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return vgName + "-sp" + string(b)
}

// Handler implements metadata.FormatHandler for the read-only pool
// format: pv_setup/pv_initialise are accept-everything no-ops
// (_pool_pv_setup/_pool_pv_initialise always return success), and
// writing is entirely unsupported, matching _not_supported's "write" op.
type Handler struct {
	// Headers resolves a VG name to every pool_disk header known for that
	// VG, standing in for read_pool_pds' disk scan.
	Headers func(vgName string) ([]Disk, error)
}

func New(headers func(vgName string) ([]Disk, error)) *Handler { return &Handler{Headers: headers} }

func (h *Handler) Name() string { return "pool" }

func (h *Handler) Scan(vgName string) error { return nil }

func (h *Handler) PVRead(pvName string, scanLabelOnly bool) (*metadata.PV, error) {
	return nil, lvmerrors.UnsupportedFeaturef("formatpool: pv_read must go through ImportVG; there is no single-pv metadata")
}

func (h *Handler) PVInitialise(pv *metadata.PV, labelSector int64) error { return nil }

func (h *Handler) PVSetup(pv *metadata.PV, vg *metadata.VG) error { return nil }

func (h *Handler) PVAddMetadataArea(pv *metadata.PV, peStartLocked bool, index int, size uint64, ignored bool) error {
	return lvmerrors.UnsupportedFeaturef("formatpool: no metadata areas")
}

func (h *Handler) PVRemoveMetadataArea(pv *metadata.PV, index int) error {
	return lvmerrors.UnsupportedFeaturef("formatpool: no metadata areas")
}

func (h *Handler) PVResize(pv *metadata.PV, vg *metadata.VG, size uint64) error {
	return lvmerrors.UnsupportedFeaturef("formatpool: read-only format")
}

func (h *Handler) PVWrite(pv *metadata.PV) error {
	return lvmerrors.UnsupportedFeaturef("formatpool: write is not supported for the pool labeller")
}

func (h *Handler) LVSetup(fid *metadata.FormatInstance, lv *metadata.LV) error { return nil }

func (h *Handler) VGSetup(fid *metadata.FormatInstance, vg *metadata.VG) error { return nil }

func (h *Handler) SegtypeSupported(fid *metadata.FormatInstance, segtypeName string) bool {
	return segtypeName == "striped"
}

func (h *Handler) CreateInstance(fic metadata.FormatInstanceCtx) (*metadata.FormatInstance, error) {
	fi := metadata.NewFormatInstance(fic.Kind, h)
	// _pool_create_instance always installs one NULL metadata area.
	fi.AddMDA(&metadata.MDA{})
	return fi, nil
}

func (h *Handler) DestroyInstance(fid *metadata.FormatInstance) {}

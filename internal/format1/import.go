package format1

import (
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
)

// ImportSegments reconstructs an LV's segment list from the PE->LV/LE
// map belonging to one PV, after import-extents.c's approach: scan the
// map for runs of consecutive PEs that map to consecutive LEs of the
// same LV, and turn every maximal run into one single-area lv_segment on
// pv. Runs are not grouped across PVs, so an LV striped over several PVs
// is not reassembled into striped segments.
//
// pv is the PV the map came from; lvByNumber resolves an
// lv_disk.lv_number to the in-core *metadata.LV being built (all LVs of
// the VG must already exist, with LECount pre-set from their lv_disk
// record, before extents are imported).
func ImportSegments(pv *metadata.PV, pes []PEDisk, lvByNumber func(num uint16) *metadata.LV, segType metadata.SegmentType) error {
	n := len(pes)
	i := 0
	for i < n {
		if pes[i].LVNum == UnmappedExtent {
			i++
			continue
		}
		lv := lvByNumber(pes[i].LVNum)
		if lv == nil {
			return lvmerrors.Formatf("format1: pe %d references unknown lv_number %d", i, pes[i].LVNum)
		}

		start := i
		startLE := pes[i].LENum
		j := i + 1
		for j < n && pes[j].LVNum == pes[i].LVNum && uint16(pes[j].LENum) == pes[j-1].LENum+1 {
			j++
		}
		runLen := uint32(j - start)

		seg := &metadata.Segment{
			LV:   lv,
			LE:   uint32(startLE),
			Len:  runLen,
			Type: segType,
			Areas: []metadata.Area{{
				Kind: metadata.AreaPV,
				PV:   pv,
				PE:   uint32(start),
				Len:  runLen,
			}},
		}
		lv.Segments = append(lv.Segments, seg)
		i = j
	}
	return nil
}

// ExportPEMap paints a PE->LV/LE map for pv from every LV segment that
// has an area on it, the inverse of ImportSegments (export_pv_/
// _add_areas_for_pv's mirror image). lvNumbers assigns each LV's stable
// lv_disk.lv_number.
func ExportPEMap(pv *metadata.PV, lvs []*metadata.LV, lvNumbers map[*metadata.LV]uint16) []PEDisk {
	pes := make([]PEDisk, pv.PECount)
	for i := range pes {
		pes[i] = PEDisk{LVNum: UnmappedExtent, LENum: UnmappedExtent}
	}
	for _, lv := range lvs {
		num, ok := lvNumbers[lv]
		if !ok {
			continue
		}
		for _, seg := range lv.Segments {
			for _, a := range seg.Areas {
				if a.Kind != metadata.AreaPV || a.PV != pv {
					continue
				}
				for k := uint32(0); k < a.Len; k++ {
					pes[a.PE+k] = PEDisk{LVNum: num, LENum: uint16(seg.LE + k)}
				}
			}
		}
	}
	return pes
}

// CheckLVNameUniqueness enforces format1's hash-based check that no two
// LVs across every PV of a VG share a name, matching import-export.c's
// use of a name hash while assembling disk_lists.
func CheckLVNameUniqueness(lvs []*metadata.LV) error {
	seen := make(map[string]struct{}, len(lvs))
	for _, lv := range lvs {
		if _, dup := seen[lv.Name]; dup {
			return lvmerrors.Formatf("format1: duplicate lv name %q", lv.Name)
		}
		seen[lv.Name] = struct{}{}
	}
	return nil
}

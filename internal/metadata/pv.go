package metadata

import "github.com/lvm2go/lvm2core/internal/lvmerrors"

// PV is the in-core physical_volume of spec.md §3.
type PV struct {
	ID     string // 16-byte uuid, formatted
	DevName string // weak reference into the device cache (by canonical alias)
	VGName string // "" == orphan

	Size         uint64 // sectors
	PESize       uint64 // sectors; power-of-two or a multiple of the format's minimum
	PEStart      uint64 // sectors to first PE
	PECount      uint32
	PEAllocCount uint32

	Status uint64

	FID  *FormatInstance
	MDAs []*MDA // every MDA added to this PV, ignored ones included

	Segments []*PVSegment // tile [0, PECount) exactly once laid out
}

// PVSegment is a pv_segment: a range of a PV's extents, either free
// (LVSeg == nil) or bound to exactly one lv_segment area.
type PVSegment struct {
	PV     *PV
	PE     uint32
	Len    uint32
	LVSeg  *Segment // owning lv_segment, nil if free
	AreaNo int      // index into LVSeg.Areas this pv_segment backs
}

// NewPV allocates an orphan PV with the given geometry. SetFID must be
// called separately once a format instance exists, matching the
// original's split between pv construction and format binding.
func NewPV(id string, size, peSize, peStart uint64, peCount uint32) (*PV, error) {
	if peSize == 0 {
		return nil, lvmerrors.InvalidArgumentf("pv %s: pe_size must be non-zero", id)
	}
	if peStart+uint64(peCount)*peSize > size {
		return nil, lvmerrors.InvalidArgumentf("pv %s: pe_start+pe_count*pe_size exceeds size", id)
	}
	pv := &PV{
		ID:      id,
		Size:    size,
		PESize:  peSize,
		PEStart: peStart,
		PECount: peCount,
		Status:  PVAllocatable,
	}
	pv.Segments = []*PVSegment{{PV: pv, PE: 0, Len: peCount}}
	return pv, nil
}

// SetFID is the only legal way to attach or detach a format instance
// from a PV, matching the original's pv_set_fid refcount discipline.
func (pv *PV) SetFID(fid *FormatInstance) {
	if pv.FID == fid {
		return
	}
	if pv.FID != nil {
		pv.FID.release()
	}
	pv.FID = fid
	if fid != nil {
		fid.addRef()
	}
}

// IsOrphan reports whether pv currently belongs to no VG.
func (pv *PV) IsOrphan() bool { return pv.VGName == "" }

// CheckInvariants verifies pv_start+pe_count*pe_size <= size and that the
// pv_segments exactly tile [0, pe_count), each bound segment pointing
// back to exactly one lv_segment area (spec.md §8's PV invariant).
func (pv *PV) CheckInvariants() error {
	if pv.PEAllocCount > pv.PECount {
		return lvmerrors.Internalf("pv %s: pe_alloc_count %d > pe_count %d", pv.ID, pv.PEAllocCount, pv.PECount)
	}
	if pv.PEStart+uint64(pv.PECount)*pv.PESize > pv.Size {
		return lvmerrors.Internalf("pv %s: pe_start+pe_count*pe_size exceeds size", pv.ID)
	}
	var next uint32
	for _, seg := range pv.Segments {
		if seg.PE != next {
			return lvmerrors.Internalf("pv %s: pv_segments have a gap/overlap at PE %d", pv.ID, next)
		}
		next = seg.PE + seg.Len
	}
	if next != pv.PECount {
		return lvmerrors.Internalf("pv %s: pv_segments cover %d extents, want %d", pv.ID, next, pv.PECount)
	}
	return nil
}

// BindArea splits (or reuses) the free pv_segment covering [pe, pe+length)
// into exactly one bound pv_segment pointing at seg's areaNo'th area,
// matching the pv_segment-tiling half of alloc_lv_segment_area: the free
// run is carved into at most a leading free remainder, the bound run,
// and a trailing free remainder. It fails if any part of the requested
// range is already bound or out of range — this is the sole entry point
// component L/M use to turn a chosen pv_area into a durable pv_segment.
func (pv *PV) BindArea(pe, length uint32, seg *Segment, areaNo int) error {
	if length == 0 {
		return lvmerrors.InvalidArgumentf("pv %s: cannot bind a zero-length area", pv.ID)
	}
	end := pe + length
	for i, s := range pv.Segments {
		if s.PE > pe || s.PE+s.Len < end {
			continue
		}
		if s.LVSeg != nil {
			return lvmerrors.Internalf("pv %s: [%d,%d) overlaps an already-bound pv_segment", pv.ID, pe, end)
		}
		replacement := make([]*PVSegment, 0, 3)
		if s.PE < pe {
			replacement = append(replacement, &PVSegment{PV: pv, PE: s.PE, Len: pe - s.PE})
		}
		replacement = append(replacement, &PVSegment{PV: pv, PE: pe, Len: length, LVSeg: seg, AreaNo: areaNo})
		if s.PE+s.Len > end {
			replacement = append(replacement, &PVSegment{PV: pv, PE: end, Len: s.PE + s.Len - end})
		}
		pv.Segments = append(pv.Segments[:i], append(replacement, pv.Segments[i+1:]...)...)
		pv.PEAllocCount += length
		return nil
	}
	return lvmerrors.InvalidArgumentf("pv %s: [%d,%d) is not a single free run", pv.ID, pe, end)
}

// UnbindArea reverses BindArea: the pv_segment covering [pe, pe+length)
// is marked free again and coalesced with any immediately adjacent free
// neighbours, matching the pv_segment side of a RAID image/mirror leg
// removal (spec.md §4.M images 4/5).
func (pv *PV) UnbindArea(pe, length uint32) error {
	for i, s := range pv.Segments {
		if s.PE != pe || s.Len != length {
			continue
		}
		if s.LVSeg == nil {
			return lvmerrors.InvalidArgumentf("pv %s: [%d,%d) is already free", pv.ID, pe, pe+length)
		}
		pv.Segments[i] = &PVSegment{PV: pv, PE: pe, Len: length}
		pv.PEAllocCount -= length
		pv.coalesceFreeAt(i)
		return nil
	}
	return lvmerrors.NotFoundf("pv %s: no pv_segment at [%d,%d)", pv.ID, pe, pe+length)
}

func (pv *PV) coalesceFreeAt(i int) {
	if i+1 < len(pv.Segments) && pv.Segments[i+1].LVSeg == nil {
		pv.Segments[i].Len += pv.Segments[i+1].Len
		pv.Segments = append(pv.Segments[:i+1], pv.Segments[i+2:]...)
	}
	if i > 0 && pv.Segments[i-1].LVSeg == nil {
		pv.Segments[i-1].Len += pv.Segments[i].Len
		pv.Segments = append(pv.Segments[:i], pv.Segments[i+1:]...)
	}
}

// AddMetadataArea appends mda to both the PV's and its format instance's
// in-use accounting, matching pv_add_metadata_area's effect once the
// format-specific work is done.
func (pv *PV) AddMetadataArea(mda *MDA) {
	pv.MDAs = append(pv.MDAs, mda)
	if pv.FID != nil {
		pv.FID.AddMDA(mda)
	}
}

// MDASetIgnored moves mda between the in-use and ignored state, refusing
// to ignore the last remaining used MDA in a VG — the guard spec.md §4.J
// calls out for pv_mda_set_ignored. usedInVG is the number of non-ignored
// MDAs across the whole VG the PV belongs to (including mda itself),
// supplied by the caller since a lone PV can't see its VG's other PVs.
func (pv *PV) MDASetIgnored(mda *MDA, ignored bool, usedInVG int) error {
	if ignored && !mda.Ignored() && usedInVG <= 1 {
		return lvmerrors.InvalidArgumentf("cannot ignore last remaining used metadata area in vg")
	}
	mda.SetIgnored(ignored)
	return nil
}

package metadata

import (
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
)

// VG is the in-core volume_group of spec.md §3.
type VG struct {
	ID       string
	Name     string
	SystemID string
	Seqno    uint32

	ExtentSize  uint64 // sectors; must equal every member PV's PESize
	ExtentCount uint32
	FreeCount   uint32

	MaxLV int
	MaxPV int

	Status    uint64
	Alloc     AllocPolicy
	MDACopies int

	PVs  []*PV
	LVs  []*LV
	Tags map[string]struct{}

	FID *FormatInstance
}

// NewVG allocates an empty VG. Matches alloc_vg's shape minus the arena
// indirection: Go's GC is this module's arena for everything that isn't
// component A's own explicit pool.
func NewVG(id, name string) *VG {
	return &VG{
		ID:     id,
		Name:   name,
		Alloc:  AllocNormal,
		Status: VGRead | VGWrite | VGResizeable,
		Tags:   map[string]struct{}{},
	}
}

// SetFID is the only legal way to attach or detach a format instance
// from a VG, matching vg_set_fid's refcount discipline.
func (vg *VG) SetFID(fid *FormatInstance) {
	if vg.FID == fid {
		return
	}
	if vg.FID != nil {
		vg.FID.release()
	}
	vg.FID = fid
	if fid != nil {
		fid.addRef()
	}
}

// FindPV returns the PV named name, or nil.
func (vg *VG) FindPV(name string) *PV {
	for _, pv := range vg.PVs {
		if pv.DevName == name || pv.ID == name {
			return pv
		}
	}
	return nil
}

// FindLV returns the LV named name, matching find_lv.
func (vg *VG) FindLV(name string) *LV {
	for _, lv := range vg.LVs {
		if lv.Name == name {
			return lv
		}
	}
	return nil
}

// FindLVByLVID matches find_lv_in_vg_by_lvid.
func (vg *VG) FindLVByLVID(lvid string) *LV {
	for _, lv := range vg.LVs {
		if lv.LVID == lvid {
			return lv
		}
	}
	return nil
}

// AddPV appends pv to the VG, recomputing ExtentCount/FreeCount, matching
// pv_add followed by the extent-accounting update vg_merge_rename does
// inline. pv.PESize must already equal vg.ExtentSize for every PV
// already present (the VG invariant from spec.md §3); AddPV enforces
// that instead of silently accepting a mismatched PV.
func (vg *VG) AddPV(pv *PV) error {
	if len(vg.PVs) > 0 && pv.PESize != vg.ExtentSize {
		return lvmerrors.InvalidArgumentf("pv %s: pe_size %d does not match vg extent_size %d", pv.ID, pv.PESize, vg.ExtentSize)
	}
	if len(vg.PVs) == 0 {
		vg.ExtentSize = pv.PESize
	}
	if vg.MaxPV != 0 && len(vg.PVs) >= vg.MaxPV {
		return lvmerrors.InvalidArgumentf("vg %s: already at max_pv %d", vg.Name, vg.MaxPV)
	}
	pv.VGName = vg.Name
	vg.PVs = append(vg.PVs, pv)
	vg.recomputeExtents()
	return nil
}

// RemovePV detaches pv from the VG (pv_remove). The caller must already
// have ensured no LV references any of its extents; use VgReduceSingle
// for the full guarded sequence.
func (vg *VG) RemovePV(pv *PV) error {
	for i, p := range vg.PVs {
		if p == pv {
			vg.PVs = append(vg.PVs[:i], vg.PVs[i+1:]...)
			pv.VGName = ""
			vg.recomputeExtents()
			return nil
		}
	}
	return lvmerrors.NotFoundf("pv %s not in vg %s", pv.ID, vg.Name)
}

// RefreshExtentAccounting recomputes ExtentCount/FreeCount from the
// current PV set, matching the bookkeeping every allocator or RAID
// manipulation mutation must perform after changing a PV's
// PEAllocCount directly (component L/M mutate PVs below the vg_extend/
// vg_reduce layer that normally triggers this).
func (vg *VG) RefreshExtentAccounting() { vg.recomputeExtents() }

func (vg *VG) recomputeExtents() {
	var extentCount, freeCount uint32
	for _, pv := range vg.PVs {
		extentCount += pv.PECount
		freeCount += pv.PECount - pv.PEAllocCount
	}
	vg.ExtentCount = extentCount
	vg.FreeCount = freeCount
}

// CheckInvariants verifies the VG-level quantified invariants of
// spec.md §8: Σ PV.PECount == ExtentCount, Σ(PECount-PEAllocCount) ==
// FreeCount, every LV area references a PV actually in vg.PVs, and every
// member PV shares ExtentSize.
func (vg *VG) CheckInvariants() error {
	var extentCount, freeCount uint32
	pvset := map[*PV]bool{}
	for _, pv := range vg.PVs {
		pvset[pv] = true
		extentCount += pv.PECount
		freeCount += pv.PECount - pv.PEAllocCount
		if pv.PESize != vg.ExtentSize {
			return lvmerrors.Internalf("vg %s: pv %s extent_size %d != vg extent_size %d", vg.Name, pv.ID, pv.PESize, vg.ExtentSize)
		}
		if err := pv.CheckInvariants(); err != nil {
			return err
		}
	}
	if extentCount != vg.ExtentCount {
		return lvmerrors.Internalf("vg %s: extent_count %d != sum of pv pe_count %d", vg.Name, vg.ExtentCount, extentCount)
	}
	if freeCount != vg.FreeCount {
		return lvmerrors.Internalf("vg %s: free_count %d != computed %d", vg.Name, vg.FreeCount, freeCount)
	}
	for _, lv := range vg.LVs {
		if err := lv.CheckInvariants(); err != nil {
			return err
		}
		for _, seg := range lv.Segments {
			for _, a := range seg.Areas {
				if a.Kind == AreaPV && !pvset[a.PV] {
					return lvmerrors.Internalf("vg %s: lv %s references pv %s not in vg.PVs", vg.Name, lv.Name, a.PV.ID)
				}
			}
		}
	}
	return nil
}

// SetExtentSize rewrites every PV's PESize and every LV segment's
// geometry to the new extent size, matching vg_set_extent_size. Every
// extent-denominated count rescales as count*oldSize/newSize, which
// covers both growing and shrinking the extent size; it fails (without
// mutating anything) if that rescale isn't exact for every PV or every
// LV segment/area extent count — spec.md §8 Scenario 2's worked example
// (extent_size 4->8 against an LV with an odd le_count) is exactly this
// failure mode.
func (vg *VG) SetExtentSize(newSize uint64) error {
	if newSize == 0 {
		return lvmerrors.InvalidArgumentf("extent size must be non-zero")
	}
	old := vg.ExtentSize

	rescale := func(count uint32) (uint32, bool) {
		num := uint64(count) * old
		if num%newSize != 0 {
			return 0, false
		}
		return uint32(num / newSize), true
	}

	// dry run: verify every count rescales exactly before mutating
	// anything, matching the "fails without mutating anything" contract
	// above.
	for _, pv := range vg.PVs {
		if _, ok := rescale(pv.PECount); !ok {
			return lvmerrors.InvalidArgumentf("pv %s: pe_count %d does not rescale exactly from extent_size %d to %d", pv.ID, pv.PECount, old, newSize)
		}
		if _, ok := rescale(pv.PEAllocCount); !ok {
			return lvmerrors.InvalidArgumentf("pv %s: pe_alloc_count %d does not rescale exactly from extent_size %d to %d", pv.ID, pv.PEAllocCount, old, newSize)
		}
		for _, s := range pv.Segments {
			if _, ok := rescale(s.PE); !ok {
				return lvmerrors.InvalidArgumentf("pv %s: pv_segment at pe %d does not rescale exactly", pv.ID, s.PE)
			}
			if _, ok := rescale(s.Len); !ok {
				return lvmerrors.InvalidArgumentf("pv %s: pv_segment length %d does not rescale exactly", pv.ID, s.Len)
			}
		}
	}
	for _, lv := range vg.LVs {
		if _, ok := rescale(lv.LECount); !ok {
			return lvmerrors.InvalidArgumentf("lv %s: le_count %d does not rescale exactly from extent_size %d to %d", lv.Name, lv.LECount, old, newSize)
		}
		for _, seg := range lv.Segments {
			if _, ok := rescale(seg.LE); !ok {
				return lvmerrors.InvalidArgumentf("lv %s: segment at le %d does not rescale exactly", lv.Name, seg.LE)
			}
			if _, ok := rescale(seg.Len); !ok {
				return lvmerrors.InvalidArgumentf("lv %s: segment length %d does not rescale exactly", lv.Name, seg.Len)
			}
			for _, a := range seg.Areas {
				if _, ok := rescale(a.Len); !ok {
					return lvmerrors.InvalidArgumentf("lv %s: area length %d does not rescale exactly", lv.Name, a.Len)
				}
				if a.Kind == AreaPV {
					if _, ok := rescale(a.PE); !ok {
						return lvmerrors.InvalidArgumentf("lv %s: area pe %d does not rescale exactly", lv.Name, a.PE)
					}
				} else {
					if _, ok := rescale(a.LE); !ok {
						return lvmerrors.InvalidArgumentf("lv %s: area le %d does not rescale exactly", lv.Name, a.LE)
					}
				}
			}
		}
	}

	// apply: every check above passed, so every rescale below is exact.
	for _, pv := range vg.PVs {
		pv.PESize = newSize
		pv.PECount, _ = rescale(pv.PECount)
		pv.PEAllocCount, _ = rescale(pv.PEAllocCount)
		for _, s := range pv.Segments {
			s.PE, _ = rescale(s.PE)
			s.Len, _ = rescale(s.Len)
		}
	}
	for _, lv := range vg.LVs {
		lv.LECount, _ = rescale(lv.LECount)
		for _, seg := range lv.Segments {
			seg.LE, _ = rescale(seg.LE)
			seg.Len, _ = rescale(seg.Len)
			for i := range seg.Areas {
				a := &seg.Areas[i]
				a.Len, _ = rescale(a.Len)
				if a.Kind == AreaPV {
					a.PE, _ = rescale(a.PE)
				} else {
					a.LE, _ = rescale(a.LE)
				}
			}
		}
	}
	vg.ExtentSize = newSize
	vg.recomputeExtents()
	return nil
}

// SetClustered refuses to un-cluster while any non-exclusively-active LV
// exists; this module has no activation state, so "non-exclusively
// active" is modelled by the caller-supplied predicate, matching
// spec.md's hook-to-an-external-collaborator design for activation.
func (vg *VG) SetClustered(clustered bool, hasNonExclusiveActiveLV func() bool) error {
	if !clustered && vg.Status&VGClustered != 0 {
		if hasNonExclusiveActiveLV != nil && hasNonExclusiveActiveLV() {
			return lvmerrors.Busyf("vg %s: cannot un-cluster while a non-exclusively active lv exists", vg.Name)
		}
	}
	if clustered {
		vg.Status |= VGClustered
	} else {
		vg.Status &^= VGClustered
	}
	return nil
}

// SetMaxLV refuses to shrink below the current LV count and clamps at
// 255 on formats that cannot represent more.
func (vg *VG) SetMaxLV(max int, clampTo255 bool) error {
	if max != 0 && max < len(vg.LVs) {
		return lvmerrors.InvalidArgumentf("vg %s: max_lv %d below current lv count %d", vg.Name, max, len(vg.LVs))
	}
	if clampTo255 && max > 255 {
		max = 255
	}
	vg.MaxLV = max
	return nil
}

// SetMaxPV refuses to shrink below the current PV count and clamps at
// 255 on formats that cannot represent more.
func (vg *VG) SetMaxPV(max int, clampTo255 bool) error {
	if max != 0 && max < len(vg.PVs) {
		return lvmerrors.InvalidArgumentf("vg %s: max_pv %d below current pv count %d", vg.Name, max, len(vg.PVs))
	}
	if clampTo255 && max > 255 {
		max = 255
	}
	vg.MaxPV = max
	return nil
}

// SetAllocPolicy rejects AllocInherit at VG scope.
func (vg *VG) SetAllocPolicy(p AllocPolicy) error {
	if p == AllocInherit {
		return lvmerrors.InvalidArgumentf("vg %s: alloc policy 'inherit' is not valid at vg scope", vg.Name)
	}
	vg.Alloc = p
	return nil
}

// SetSystemID is a no-op if the format encodes system ids on every PV
// instead of on the VG (it would no longer round-trip), matching
// vg_set_system_id's format-capability check.
func (vg *VG) SetSystemID(id string, formatEncodesPerPV bool) error {
	if formatEncodesPerPV {
		return nil
	}
	vg.SystemID = id
	return nil
}

// VgReduceSingle is the definitive reference for how PV removal composes
// (spec.md §4.J): refuse if any PE on the PV is allocated; rewrite the PV
// with orphan status; recompute free/extent counts; split MDAs between
// the VG and the orphan VG; on commit, the caller writes both VGs then
// rewrites the PV label. Locking/archiving (the "take the orphan VG
// lock; archive" steps) are the external collaborators' job per spec.md
// §1/§5 — this function performs the in-core mutation those steps
// bracket.
func VgReduceSingle(vg, orphanVG *VG, pv *PV, commit func(vg, orphan *VG, pv *PV) error) error {
	if pv.PEAllocCount > 0 {
		return lvmerrors.Busyf("pv %s: still has %d allocated extents", pv.ID, pv.PEAllocCount)
	}
	if err := vg.RemovePV(pv); err != nil {
		return err
	}

	pv.Status = PVAllocatable
	pv.PEAllocCount = 0

	// pv.MDAs only ever holds the PV's own metadata areas, so every one
	// of them moves with it to the orphan VG.
	moved := pv.MDAs
	pv.MDAs = nil

	if err := orphanVG.AddPV(pv); err != nil {
		return err
	}
	for _, mda := range moved {
		pv.AddMetadataArea(mda)
	}

	if commit != nil {
		return commit(vg, orphanVG, pv)
	}
	return nil
}

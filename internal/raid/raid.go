// Package raid implements component M: the RAID/mirror segment
// manipulator of spec.md §4.M — image add/remove/split/replace, sub-LV
// naming and shifting, and the rebuild-flag two-commit lifecycle.
// Grounded on original_source/lib/metadata/raid_manip.c for the
// algorithms (_raid_add_images/_raid_remove_images/lv_raid_split/
// lv_raid_replace/partial_raid_lv_supports_degraded_activation) and on
// internal/alloc (component L) for the extent selection those
// algorithms drive.
package raid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lvm2go/lvm2core/internal/alloc"
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
	"github.com/lvm2go/lvm2core/internal/segtype"
	"github.com/lvm2go/lvm2core/internal/uuidcrc"
)

// MaxImages is the hard cap spec.md §8 names ("RAID cannot grow beyond
// 64 images").
const MaxImages = 64

// Manipulator ties the segment-type registry and a uuid source into the
// image-count/split/replace state machine of spec.md §4.M. NewUUID is
// overridable for deterministic tests; production callers leave it nil
// and get uuidcrc.Create.
type Manipulator struct {
	Segtypes *segtype.Registry
	NewUUID  func() (string, error)
}

// New builds a Manipulator bound to a segment-type registry.
func New(segtypes *segtype.Registry) *Manipulator {
	return &Manipulator{Segtypes: segtypes}
}

func (m *Manipulator) newUUID() (string, error) {
	if m.NewUUID != nil {
		return m.NewUUID()
	}
	u, err := uuidcrc.Create()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// topSeg returns lv's sole top-level RAID segment, matching
// first_seg(lv) for the single-segment RAID LVs this manipulator
// handles (spec.md does not describe multi-segment RAID LVs).
func topSeg(lv *metadata.LV) (*metadata.Segment, error) {
	if len(lv.Segments) != 1 {
		return nil, lvmerrors.InvalidArgumentf("raid: lv %s: expected exactly one top-level segment, found %d", lv.Name, len(lv.Segments))
	}
	seg := lv.Segments[0]
	if !seg.Type.HasFlag(metadata.SegRaid) {
		return nil, lvmerrors.InvalidArgumentf("raid: lv %s: segment type %s is not a raid type", lv.Name, seg.Type.Name())
	}
	return seg, nil
}

func imageName(lvName string, idx int) string { return fmt.Sprintf("%s_rimage_%d", lvName, idx) }
func metaName(lvName string, idx int) string  { return fmt.Sprintf("%s_rmeta_%d", lvName, idx) }

// ForEachSubLV walks every area and meta-area of lv's top-level segments
// that is backed by a sub-LV, recursing into that sub-LV's own areas in
// turn, matching for_each_sub_lv. fn returning false stops the walk
// early for that branch.
func ForEachSubLV(lv *metadata.LV, fn func(sub *metadata.LV) bool) {
	for _, seg := range lv.Segments {
		for _, a := range seg.Areas {
			if a.Kind == metadata.AreaLV && fn(a.LV) {
				ForEachSubLV(a.LV, fn)
			}
		}
		for _, a := range seg.MetaAreas {
			if a.Kind == metadata.AreaLV && fn(a.LV) {
				ForEachSubLV(a.LV, fn)
			}
		}
	}
}

// allocateSubLV picks one extent run via component L and grafts it into
// the VG as a brand-new striped, single-segment LV, matching the
// sub-LV-allocation half of _alloc_image_components. extents is in
// logical/physical extents (equal for a striped single-PV sub-LV).
func (m *Manipulator) allocateSubLV(vg *metadata.VG, name string, pvms []*alloc.PVMap, extents uint32, policy metadata.AllocPolicy, status uint64) (*metadata.LV, error) {
	striped, err := m.Segtypes.Get("striped")
	if err != nil {
		return nil, err
	}

	res, err := alloc.Select(alloc.Request{Legs: 1, ExtentsPerLeg: extents, Policy: policy, Candidates: pvms})
	if err != nil {
		return nil, err
	}
	area := res.Legs[0]

	id, err := m.newUUID()
	if err != nil {
		return nil, err
	}

	sub := &metadata.LV{
		LVID:    vg.ID + id,
		Name:    name,
		Status:  status,
		Alloc:   policy,
		LECount: extents,
		VG:      vg,
	}
	seg := &metadata.Segment{
		LV:   sub,
		LE:   0,
		Len:  extents,
		Type: striped,
		Areas: []metadata.Area{{
			Kind: metadata.AreaPV,
			PV:   area.Map.PV,
			PE:   area.Start,
			Len:  extents,
		}},
	}
	sub.Segments = []*metadata.Segment{seg}
	if err := area.Map.PV.BindArea(area.Start, extents, seg, 0); err != nil {
		return nil, err
	}

	vg.LVs = append(vg.LVs, sub)
	vg.RefreshExtentAccounting()
	return sub, nil
}

// detachSubLV unbinds every PV-backed area of sub (a single-segment
// striped sub-LV, as allocateSubLV always creates) and drops it from
// vg.LVs, matching the sub-LV teardown half of _raid_remove_images /
// lv_raid_split.
func detachSubLV(vg *metadata.VG, sub *metadata.LV) error {
	for _, seg := range sub.Segments {
		for _, a := range seg.Areas {
			if a.Kind == metadata.AreaPV {
				if err := a.PV.UnbindArea(a.PE, a.Len); err != nil {
					return err
				}
			}
		}
	}
	for i, lv := range vg.LVs {
		if lv == sub {
			vg.LVs = append(vg.LVs[:i], vg.LVs[i+1:]...)
			break
		}
	}
	vg.RefreshExtentAccounting()
	return nil
}

// renameSubLV changes sub's name (and, since lvid is VG-scoped rather
// than name-scoped, nothing else) to the contiguous index newIdx,
// matching _shift_and_rename_image_components' rename step.
func renameSubLV(sub *metadata.LV, isMeta bool, lvName string, newIdx int) {
	if isMeta {
		sub.Name = metaName(lvName, newIdx)
	} else {
		sub.Name = imageName(lvName, newIdx)
	}
}

// ChangeImageCount drives the linear<->raid1<->raidN transitions of
// spec.md §4.M's state diagram toward exactly n images. Added images
// come back with LVRebuild set and must be cleared via ClearRebuild
// after the caller's first vg_write+commit has made the kernel observe
// the flag (invariant 3); removed images are detached and freed
// immediately. Candidates is the allocatable PV pool for new images;
// policy governs their placement.
func (m *Manipulator) ChangeImageCount(vg *metadata.VG, lv *metadata.LV, n int, candidates []*metadata.PV, policy metadata.AllocPolicy) (added []*metadata.LV, err error) {
	seg, err := topSeg(lv)
	if err != nil {
		return nil, err
	}
	cur := len(seg.Areas)
	if n == cur {
		return nil, nil
	}
	if n > MaxImages {
		return nil, lvmerrors.InvalidArgumentf("raid: lv %s: cannot grow beyond %d images", lv.Name, MaxImages)
	}
	if n < 1 {
		return nil, lvmerrors.InvalidArgumentf("raid: lv %s: image count must be at least 1", lv.Name)
	}
	if n > cur {
		return m.addImages(vg, lv, seg, n-cur, candidates, policy)
	}
	return nil, m.removeImages(vg, lv, seg, cur-n)
}

func (m *Manipulator) addImages(vg *metadata.VG, lv *metadata.LV, seg *metadata.Segment, count int, candidates []*metadata.PV, policy metadata.AllocPolicy) ([]*metadata.LV, error) {
	pvms, err := alloc.BuildPVMaps(vg, candidates)
	if err != nil {
		return nil, err
	}
	for _, pvm := range pvms {
		pvm.CreateAreas(0, pvm.PV.PECount)
	}

	start := len(seg.Areas)
	var added []*metadata.LV
	for i := 0; i < count; i++ {
		idx := start + i
		img, err := m.allocateSubLV(vg, imageName(lv.Name, idx), pvms, seg.Len, policy, metadata.LVRaidImage|metadata.LVRebuild)
		if err != nil {
			return nil, err
		}
		meta, err := m.allocateSubLV(vg, metaName(lv.Name, idx), pvms, 1, policy, metadata.LVRaidMeta)
		if err != nil {
			return nil, err
		}
		seg.Areas = append(seg.Areas, metadata.Area{Kind: metadata.AreaLV, LV: img, Len: seg.Len})
		seg.MetaAreas = append(seg.MetaAreas, metadata.Area{Kind: metadata.AreaLV, LV: meta, Len: 1})
		added = append(added, img)
	}
	return added, nil
}

// removeImages drops count images from the tail of seg.Areas, matching
// _raid_remove_images' non-targeted ("just shrink the array") path;
// targeted removal of a specific failed image is Replace's job. If the
// resulting width is 1, the LV degrades to plain linear/striped per the
// state diagram's "remove,n=1" transition.
func (m *Manipulator) removeImages(vg *metadata.VG, lv *metadata.LV, seg *metadata.Segment, count int) error {
	n := len(seg.Areas)
	for i := n - count; i < n; i++ {
		img := seg.Areas[i].LV
		if err := detachSubLV(vg, img); err != nil {
			return err
		}
		if i < len(seg.MetaAreas) {
			if err := detachSubLV(vg, seg.MetaAreas[i].LV); err != nil {
				return err
			}
		}
	}
	seg.Areas = seg.Areas[:n-count]
	if n-count < len(seg.MetaAreas) {
		seg.MetaAreas = seg.MetaAreas[:n-count]
	}

	if len(seg.Areas) == 1 {
		return m.collapseToLinear(vg, lv, seg)
	}
	return nil
}

// collapseToLinear converts a 1-wide RAID segment back to a plain
// striped/linear segment directly over the sole remaining image's
// extents, folding the rimage sub-LV's own area into lv itself and
// discarding the (now pointless) rmeta, matching the "raid1/n ──
// (remove,n=1)──► linear" edge of the state diagram.
func (m *Manipulator) collapseToLinear(vg *metadata.VG, lv *metadata.LV, seg *metadata.Segment) error {
	striped, err := m.Segtypes.Get("striped")
	if err != nil {
		return err
	}
	img := seg.Areas[0].LV
	if len(img.Segments) != 1 {
		return lvmerrors.UnsupportedFeaturef("raid: lv %s: sole remaining image has more than one segment", lv.Name)
	}
	imgSeg := img.Segments[0]

	if len(seg.MetaAreas) > 0 {
		if err := detachSubLV(vg, seg.MetaAreas[0].LV); err != nil {
			return err
		}
	}

	seg.Type = striped
	seg.Areas = append([]metadata.Area(nil), imgSeg.Areas...)
	seg.MetaAreas = nil
	seg.StripeSize = imgSeg.StripeSize

	for _, a := range imgSeg.Areas {
		if a.Kind == metadata.AreaPV {
			// repoint the pv_segment at the top-level segment directly,
			// since the rimage sub-LV it used to belong to is going away.
			for _, pvseg := range a.PV.Segments {
				if pvseg.LVSeg == imgSeg {
					pvseg.LVSeg = seg
				}
			}
		}
	}

	for i, l := range vg.LVs {
		if l == img {
			vg.LVs = append(vg.LVs[:i], vg.LVs[i+1:]...)
			break
		}
	}
	lv.Status &^= metadata.LVRaid
	return nil
}

// ClearRebuild clears LVRebuild on every LV in added, matching invariant
// 3's mandatory second vg_write+commit after the kernel has observed
// the flag on a table reload.
func ClearRebuild(added []*metadata.LV) {
	for _, lv := range added {
		lv.SetStatus(metadata.LVRebuild, false)
	}
}

// imageOnAnyPV reports whether every PV-backed area reachable from sub
// (recursing through its own segments) lies on one of pvs, matching the
// "reside entirely on the caller-supplied PV list" check lv_raid_split
// and lv_raid_replace both need.
func imageOnAnyPV(sub *metadata.LV, pvs []*metadata.PV) bool {
	allowed := map[*metadata.PV]bool{}
	for _, pv := range pvs {
		allowed[pv] = true
	}
	ok := true
	for _, seg := range sub.Segments {
		for _, a := range seg.Areas {
			if a.Kind == metadata.AreaPV && !allowed[a.PV] {
				ok = false
			}
		}
	}
	return ok
}

// imageTouchesPV reports whether sub has any PV-backed area on pv,
// matching the failed-PV detection replace/degraded-activation need.
func imageTouchesPV(sub *metadata.LV, pv *metadata.PV) bool {
	for _, seg := range sub.Segments {
		for _, a := range seg.Areas {
			if a.Kind == metadata.AreaPV && a.PV == pv {
				return true
			}
		}
	}
	return false
}

// Split detaches one in-sync RAID_IMAGE sub-LV residing entirely on
// splitPVs, renames it to newName, and shifts the remaining images'
// sub-LVs to contiguous indices, matching lv_raid_split (spec.md
// §4.M.5). The rmeta sub-LV paired with the split image is discarded: a
// detached plain LV has no use for RAID metadata.
func (m *Manipulator) Split(vg *metadata.VG, lv *metadata.LV, newName string, splitPVs []*metadata.PV) (*metadata.LV, error) {
	seg, err := topSeg(lv)
	if err != nil {
		return nil, err
	}
	if len(seg.Areas) < 2 {
		return nil, lvmerrors.InvalidArgumentf("raid: lv %s: cannot split the last remaining image", lv.Name)
	}

	idx := -1
	for i, a := range seg.Areas {
		img := a.LV
		if !img.HasStatus(metadata.LVRaidImage) {
			continue
		}
		if img.HasStatus(metadata.LVNotsynced) {
			continue
		}
		if imageOnAnyPV(img, splitPVs) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, lvmerrors.NotFoundf("raid: lv %s: no in-sync image resides entirely on the given pv list", lv.Name)
	}

	split := seg.Areas[idx].LV
	if idx < len(seg.MetaAreas) {
		if err := detachSubLV(vg, seg.MetaAreas[idx].LV); err != nil {
			return nil, err
		}
	}

	seg.Areas = append(seg.Areas[:idx], seg.Areas[idx+1:]...)
	if idx < len(seg.MetaAreas) {
		seg.MetaAreas = append(seg.MetaAreas[:idx], seg.MetaAreas[idx+1:]...)
	}

	split.Name = newName
	split.SetStatus(metadata.LVRaidImage, false)

	for i := idx; i < len(seg.Areas); i++ {
		renameSubLV(seg.Areas[i].LV, false, lv.Name, i)
		if i < len(seg.MetaAreas) {
			renameSubLV(seg.MetaAreas[i].LV, true, lv.Name, i)
		}
	}

	if len(seg.Areas) == 1 {
		if err := m.collapseToLinear(vg, lv, seg); err != nil {
			return nil, err
		}
	}

	return split, nil
}

// replaceCandidate is one image this Replace attempt still intends to
// reallocate, in original-index order.
type replaceCandidate struct {
	index int
	old   *metadata.LV
}

// Replace implements lv_raid_replace (spec.md §4.M.6): allocate
// replacement rimage/rmeta sub-LVs for every image touching a PV in
// failed first (so a failure to allocate never leaves the LV
// half-mutated), then swap the old sub-LVs out. If all-or-nothing
// allocation fails, it degrades by trying progressively fewer images
// (highest-index first, matching match_count--), finally falling back
// to replacing one remaining failed image's segment type with "error"
// rather than leaving it unrepaired.
func (m *Manipulator) Replace(vg *metadata.VG, lv *metadata.LV, failed []*metadata.PV, replacements []*metadata.PV, policy metadata.AllocPolicy) error {
	seg, err := topSeg(lv)
	if err != nil {
		return err
	}

	var candidates []replaceCandidate
	for i, a := range seg.Areas {
		for _, pv := range failed {
			if imageTouchesPV(a.LV, pv) {
				candidates = append(candidates, replaceCandidate{index: i, old: a.LV})
				break
			}
		}
	}
	if len(candidates) == 0 {
		return lvmerrors.NotFoundf("raid: lv %s: no image touches any of the given failed pvs", lv.Name)
	}

	matchCount := len(candidates)
	for matchCount > 0 {
		try := candidates[:matchCount]
		if err := m.tryReplace(vg, lv, seg, try, replacements, policy); err == nil {
			return nil
		}
		matchCount--
	}

	// fall back: mark the first failing image's segment as the error
	// target rather than leaving the VG unrepaired.
	errType, err := m.Segtypes.Get("error")
	if err != nil {
		return err
	}
	first := candidates[0]
	for _, s := range first.old.Segments {
		s.Type = errType
	}
	return nil
}

func (m *Manipulator) tryReplace(vg *metadata.VG, lv *metadata.LV, seg *metadata.Segment, try []replaceCandidate, replacements []*metadata.PV, policy metadata.AllocPolicy) error {
	pvms, err := alloc.BuildPVMaps(vg, replacements)
	if err != nil {
		return err
	}
	for _, pvm := range pvms {
		pvm.CreateAreas(0, pvm.PV.PECount)
	}

	type swap struct {
		index    int
		newImg   *metadata.LV
		newMeta  *metadata.LV
		old      *metadata.LV
		oldMeta  *metadata.LV
	}
	var swaps []swap
	for _, c := range try {
		newImg, err := m.allocateSubLV(vg, imageName(lv.Name, c.index), pvms, seg.Len, policy, metadata.LVRaidImage|metadata.LVRebuild)
		if err != nil {
			return err
		}
		var oldMeta, newMeta *metadata.LV
		if c.index < len(seg.MetaAreas) {
			oldMeta = seg.MetaAreas[c.index].LV
			newMeta, err = m.allocateSubLV(vg, metaName(lv.Name, c.index), pvms, 1, policy, metadata.LVRaidMeta)
			if err != nil {
				return err
			}
		}
		swaps = append(swaps, swap{index: c.index, newImg: newImg, newMeta: newMeta, old: c.old, oldMeta: oldMeta})
	}

	for _, s := range swaps {
		if err := detachSubLV(vg, s.old); err != nil {
			return err
		}
		seg.Areas[s.index] = metadata.Area{Kind: metadata.AreaLV, LV: s.newImg, Len: seg.Len}
		if s.oldMeta != nil {
			if err := detachSubLV(vg, s.oldMeta); err != nil {
				return err
			}
			seg.MetaAreas[s.index] = metadata.Area{Kind: metadata.AreaLV, LV: s.newMeta, Len: 1}
		}
	}
	return nil
}

// PartialRaidLVSupportsDegradedActivation implements
// partial_raid_lv_supports_degraded_activation (spec.md §4.M.7): true
// iff no more than the segment type's parity-device count (for raid1,
// every image but one; for raid10, no single 2-way mirror group) has failed. isMissing reports
// whether a PV is unavailable; the raid10 assumption (strictly 2-way
// groups) matches the FIXME spec.md §9 records rather than guessing a
// general copies parameter.
func PartialRaidLVSupportsDegradedActivation(lv *metadata.LV, isMissing func(pv *metadata.PV) bool) bool {
	seg, err := topSeg(lv)
	if err != nil {
		return false
	}

	failed := make([]bool, len(seg.Areas))
	for i, a := range seg.Areas {
		failed[i] = subLVFailed(a.LV, isMissing)
	}

	if seg.Type.Name() == "raid10" {
		for i := 0; i+1 < len(failed); i += 2 {
			if failed[i] && failed[i+1] {
				return false
			}
		}
		return true
	}

	tolerance := segtype.RAIDParityDevs[seg.Type.Name()]
	if seg.Type.Name() == "raid1" {
		// a mirror has no parity devices in the raid4/5/6 sense: it
		// tolerates losing every leg but one, matching raid1's redundancy
		// model rather than a fixed parity-device count.
		tolerance = len(seg.Areas) - 1
	}
	count := 0
	for _, f := range failed {
		if f {
			count++
		}
	}
	return count <= tolerance
}

func subLVFailed(sub *metadata.LV, isMissing func(pv *metadata.PV) bool) bool {
	failed := false
	for _, seg := range sub.Segments {
		for _, a := range seg.Areas {
			if a.Kind == metadata.AreaPV && isMissing(a.PV) {
				failed = true
			}
			if a.Kind == metadata.AreaLV && subLVFailed(a.LV, isMissing) {
				failed = true
			}
		}
	}
	return failed
}

// SortImagesByIndex is a small helper for callers that collect images
// via ForEachSubLV and need them back in rimage_<i> order (e.g. for
// deterministic reporting), parsing the trailing _rimage_<n>/_rmeta_<n>
// suffix rather than relying on traversal order.
func SortImagesByIndex(lvs []*metadata.LV) {
	sort.Slice(lvs, func(i, j int) bool {
		return subLVIndex(lvs[i].Name) < subLVIndex(lvs[j].Name)
	})
}

func subLVIndex(name string) int {
	i := strings.LastIndexByte(name, '_')
	if i < 0 {
		return -1
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return -1
	}
	return n
}

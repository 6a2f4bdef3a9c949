// Package alloc implements component L: the extent allocation engine
// that turns a VG's free space into a laid-out set of lv_segment areas,
// grounded on lib/metadata/pv_map.{h,c} for the pv_map/pv_area
// construction and consume_pv_area, and spec.md §4.L for the policy
// selection algorithm those structures feed (the original's
// lv_manip.c, which performs that selection, is not present in the
// retrieval pack).
package alloc

import (
	"sort"

	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
)

// Area is a pv_area: a maximal run of currently-unallocated extents on
// one PV.
type Area struct {
	Map   *PVMap
	Start uint32
	Count uint32
}

// PVMap is a pv_map: one candidate PV's allocation bitmap plus the
// pv_areas currently carved out of its free space, kept sorted by
// descending Count exactly like _insert_area's ordered list.
type PVMap struct {
	PV       *metadata.PV
	allocated []bool // indexed by PE, mirrors pv_map's bitset_t
	Areas    []*Area
}

// BuildPVMaps constructs one PVMap per allocatable candidate PV,
// marking every PE already consumed by any LV in vg, matching
// _create_maps plus _fill_bitsets. A PE referenced by more than one
// segment's area is a hard error, matching _set_allocd's sanity check.
func BuildPVMaps(vg *metadata.VG, candidates []*metadata.PV) ([]*PVMap, error) {
	byPV := map[*metadata.PV]*PVMap{}
	var maps []*PVMap
	for _, pv := range candidates {
		if pv.Status&metadata.PVAllocatable == 0 {
			continue
		}
		pvm := &PVMap{PV: pv, allocated: make([]bool, pv.PECount)}
		byPV[pv] = pvm
		maps = append(maps, pvm)
	}

	for _, lv := range vg.LVs {
		for _, seg := range lv.Segments {
			for _, a := range seg.Areas {
				if a.Kind != metadata.AreaPV {
					continue
				}
				pvm, ok := byPV[a.PV]
				if !ok {
					continue
				}
				for pe := a.PE; pe < a.PE+a.Len; pe++ {
					if int(pe) >= len(pvm.allocated) {
						return nil, lvmerrors.Internalf("alloc: pv %s: extent %d out of range", a.PV.ID, pe)
					}
					if pvm.allocated[pe] {
						return nil, lvmerrors.Inconsistentf("alloc: pv %s: extent %d referenced by more than one lv", a.PV.ID, pe)
					}
					pvm.allocated[pe] = true
				}
			}
		}
	}

	return maps, nil
}

// CreateAreas scans [start, start+count) of pvm's PV for maximal runs of
// unallocated extents and records each as a pv_area, matching
// _create_areas/_create_single_area. CreateAreas(0, pv.PECount) scans
// the whole PV.
func (pvm *PVMap) CreateAreas(start, count uint32) {
	end := start + count
	if end > uint32(len(pvm.allocated)) {
		end = uint32(len(pvm.allocated))
	}
	pe := start
	for pe < end {
		for pe < end && pvm.allocated[pe] {
			pe++
		}
		if pe >= end {
			break
		}
		b := pe
		pe++
		for pe < end && !pvm.allocated[pe] {
			pe++
		}
		pvm.insertArea(&Area{Map: pvm, Start: b, Count: pe - b})
	}
}

// insertArea keeps Areas sorted by descending Count, matching
// _insert_area's size-ordered linked-list insert.
func (pvm *PVMap) insertArea(a *Area) {
	i := sort.Search(len(pvm.Areas), func(i int) bool { return pvm.Areas[i].Count < a.Count })
	pvm.Areas = append(pvm.Areas, nil)
	copy(pvm.Areas[i+1:], pvm.Areas[i:])
	pvm.Areas[i] = a
}

// removeArea drops a from pvm.Areas, matching consume_pv_area's
// list_del.
func (pvm *PVMap) removeArea(a *Area) {
	for i, other := range pvm.Areas {
		if other == a {
			pvm.Areas = append(pvm.Areas[:i], pvm.Areas[i+1:]...)
			return
		}
	}
}

// ConsumePVArea takes toGo extents from the front of area, re-inserting
// whatever remains as a fresh, still-sorted area, matching
// consume_pv_area. It panics if toGo exceeds area.Count, matching the
// original's assert — a caller bug, not a runtime condition.
func ConsumePVArea(area *Area, toGo uint32) {
	if toGo > area.Count {
		panic("alloc: consume_pv_area: to_go exceeds area count")
	}
	area.Map.removeArea(area)
	if toGo < area.Count {
		area.Start += toGo
		area.Count -= toGo
		area.Map.insertArea(area)
	}
}

// Allocate marks [start, start+count) of pv as allocated in pvm's
// bitset directly, for callers (e.g. component M's RAID manipulator)
// that commit an allocation outside the normal Select path.
func (pvm *PVMap) Allocate(start, count uint32) {
	for pe := start; pe < start+count && int(pe) < len(pvm.allocated); pe++ {
		pvm.allocated[pe] = true
	}
}

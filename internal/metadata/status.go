// Package metadata implements component J: the in-core PV/VG/LV/segment
// model and the invariants that every mutator in this package must
// preserve (extent accounting, ownership, mapping consistency).
//
// VG objects are ordinary Go allocations left to the garbage collector;
// none of them comes from an internal/arena arena. Cross-references between PV/VG/LV/segment (the cyclic graph
// noted in spec.md §9) are plain Go pointers that are never treated as
// owning: the VG is the unit of destruction, not any individual node.
package metadata

// PV status bits, grounded on lib/metadata/metadata-exported.h's PV flags.
const (
	PVAllocatable uint64 = 1 << iota
	PVExported
	PVMissing
	PVUsed
)

// VG status bits.
const (
	VGRead uint64 = 1 << iota
	VGWrite
	VGResizeable
	VGClustered
	VGExported
	VGPartial
	VGShared
	VGPrecommitted
)

// LV status bits (the subset spec.md §3 calls out).
const (
	LVMirrored uint64 = 1 << iota
	LVMirrorImage
	LVMirrorLog
	LVRaid
	LVRaidImage
	LVRaidMeta
	LVThinPool
	LVPvmove
	LVLocked
	LVFixedMinor
	LVSnapshot
	LVVirtual
	LVPartial
	LVRebuild
	LVWritemostly
	LVNotsynced
	LVActivationSkip
	LVTemporary
)

// AllocPolicy is the allocation policy attached to a VG or an LV.
type AllocPolicy int

const (
	AllocNormal AllocPolicy = iota
	AllocContiguous
	AllocAnywhere
	AllocInherit
)

func (p AllocPolicy) String() string {
	switch p {
	case AllocContiguous:
		return "contiguous"
	case AllocAnywhere:
		return "anywhere"
	case AllocInherit:
		return "inherit"
	default:
		return "normal"
	}
}

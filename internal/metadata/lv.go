package metadata

import "github.com/lvm2go/lvm2core/internal/lvmerrors"

// SegmentType is the narrow surface of segtype_handler that the metadata
// model itself needs (name + feature test);
// internal/segtype implements it and owns the registry plus the rest of
// spec.md §4.K's vtable (text import/export, target line synthesis).
// Declaring the interface here (rather than in internal/segtype) lets
// Segment reference a segment type without metadata importing segtype,
// which would otherwise cycle since segtype's text codec operates on
// *Segment.
type SegmentType interface {
	Name() string
	HasFlag(flag uint32) bool
}

// Segment feature flags, matching spec.md §4.K.
const (
	SegCanSplit uint32 = 1 << iota
	SegAreasStriped
	SegAreasMirrored
	SegSnapshot
	SegVirtual
	SegThinPool
	SegThinVolume
	SegCache
	SegCachePool
	SegRaid
	SegReplicator
	SegReplicatorDev
	SegOnlyExclusive
	SegCannotBeZeroed
	SegMonitored
	SegFormat1Support
)

// AreaKind distinguishes a pv_segment-backed area from an lv-backed one
// (RAID/thin/cache metadata sub-LVs).
type AreaKind int

const (
	AreaPV AreaKind = iota
	AreaLV
)

// Area is one data (or metadata) area of a segment: either a run of a
// PV's extents, or a run of a sub-LV's logical extents.
type Area struct {
	Kind AreaKind

	PV     *PV // AreaPV
	PE     uint32
	PVSeg  *PVSegment

	LV *LV // AreaLV
	LE uint32

	Len uint32
}

// Segment is an lv_segment: a contiguous run of extents within an LV,
// backed by area_count data areas and an optional parallel meta_areas
// array (RAID/thin metadata sub-LVs).
type Segment struct {
	LV   *LV
	LE   uint32
	Len  uint32
	Type SegmentType

	Status uint64

	StripeSize    uint32
	RegionSize    uint32
	ChunkSize     uint32
	ExtentsCopied uint32

	Areas     []Area
	MetaAreas []Area

	// Segtype-specific fields, kept as a small, explicit set rather than
	// a void* blob: a pool LV + origin for snapshot/thin, feature flags
	// and transaction/device ids for thin, core args for cache.
	PoolLV         *LV
	Origin         *LV
	TransactionID  uint64
	DeviceID       uint32
	ThinChunkSize  uint32
	CacheMode      string
	ReplicatorDevs []string

	Tags map[string]struct{}
}

func (s *Segment) AreaLen() uint32 {
	if len(s.Areas) == 0 {
		return 0
	}
	return s.Areas[0].Len
}

// LV is the in-core logical_volume of spec.md §3.
type LV struct {
	LVID string // vg uuid + lv uuid
	Name string

	Status  uint64
	Alloc   AllocPolicy
	ReadAhead uint32
	Major, Minor int

	Size    uint64 // sectors, derived from LECount*VG extent size
	LECount uint32

	Segments []*Segment

	Tags    map[string]struct{}
	Profile string

	Hostname string
	Created  int64 // unix seconds; spec §3 "creation timestamp"

	VG *VG
}

func (lv *LV) HasStatus(bit uint64) bool { return lv.Status&bit != 0 }

func (lv *LV) SetStatus(bit uint64, set bool) {
	if set {
		lv.Status |= bit
	} else {
		lv.Status &^= bit
	}
}

// CheckInvariants verifies every segment tiles [0, le_count) without gap
// or overlap and that every area's length/PE/LE bounds are consistent,
// matching check_lv_segments' no-gap/no-overlap pass and spec.md §8's LV
// invariant.
func (lv *LV) CheckInvariants() error {
	var next uint32
	for _, seg := range lv.Segments {
		if seg.LV != lv {
			return lvmerrors.Internalf("lv %s: segment owner mismatch", lv.Name)
		}
		if seg.LE != next {
			return lvmerrors.Internalf("lv %s: segment gap/overlap at LE %d", lv.Name, next)
		}
		for i, a := range seg.Areas {
			if a.Len != seg.Len {
				return lvmerrors.Internalf("lv %s: area %d length %d != segment length %d", lv.Name, i, a.Len, seg.Len)
			}
			switch a.Kind {
			case AreaPV:
				if a.PE+a.Len > a.PV.PECount {
					return lvmerrors.Internalf("lv %s: area %d exceeds pv %s pe_count", lv.Name, i, a.PV.ID)
				}
			case AreaLV:
				if a.LE+a.Len > a.LV.LECount {
					return lvmerrors.Internalf("lv %s: area %d exceeds sub-lv %s le_count", lv.Name, i, a.LV.Name)
				}
			}
		}
		next = seg.LE + seg.Len
	}
	if next != lv.LECount && !(lv.LECount == 0 && len(lv.Segments) == 0) {
		return lvmerrors.Internalf("lv %s: segments cover %d extents, want %d", lv.Name, next, lv.LECount)
	}
	return nil
}

// FindSegByLE returns the segment containing logical extent le, matching
// find_seg_by_le.
func (lv *LV) FindSegByLE(le uint32) *Segment {
	for _, seg := range lv.Segments {
		if le >= seg.LE && le < seg.LE+seg.Len {
			return seg
		}
	}
	return nil
}

// MergeSegments attempts to merge b, the segment that follows a in its
// LV, into a. On success a is extended in place to cover b; b is not
// removed from lv.Segments. The checks follow segtype_handler.merge_segments' contract from
// spec.md §4.K: same segtype, PV-contiguous (a ends exactly where b
// begins for every stripe), equal stripe count/size, set-equal tags.
// RAID segments are never merged, per spec.md §4.K.
func MergeSegments(a, b *Segment) bool {
	if a.Type.Name() != b.Type.Name() {
		return false
	}
	if a.Type.HasFlag(SegRaid) {
		return false
	}
	if a.LE+a.Len != b.LE {
		return false
	}
	if len(a.Areas) != len(b.Areas) || a.StripeSize != b.StripeSize {
		return false
	}
	for i := range a.Areas {
		aa, ba := a.Areas[i], b.Areas[i]
		if aa.Kind != ba.Kind {
			return false
		}
		switch aa.Kind {
		case AreaPV:
			if aa.PV != ba.PV || aa.PE+aa.Len != ba.PE {
				return false
			}
		case AreaLV:
			if aa.LV != ba.LV || aa.LE+aa.Len != ba.LE {
				return false
			}
		}
	}
	if !tagsEqual(a.Tags, b.Tags) {
		return false
	}

	a.Len += b.Len
	for i := range a.Areas {
		a.Areas[i].Len += b.Areas[i].Len
	}
	for i := range a.MetaAreas {
		if i < len(b.MetaAreas) {
			a.MetaAreas[i].Len += b.MetaAreas[i].Len
		}
	}
	return true
}

func tagsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

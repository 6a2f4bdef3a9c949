// Package segtype implements component K: the segment-type registry and
// the concrete segment types spec.md §4.K names, grounded on
// lib/metadata/segtypes.h's segtype_handler vtable and the per-type
// source files under lib/{cache_segtype,raid,replicator,thin}.
//
// internal/metadata declares the narrow SegmentType interface
// (Name/HasFlag) it needs to stay decoupled from this package; Type
// here implements that interface and carries the rest of the vtable
// spec.md §4.K calls for (text codec hooks, merge eligibility) without
// metadata ever importing segtype.
package segtype

import (
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
)

// Type is a segment_type: an immutable name/flag pair plus the handful
// of behavioral hooks spec.md §4.K's segtype_handler exposes beyond
// plain feature testing.
type Type struct {
	TypeName string
	Flags    uint32

	// TextImport validates a decoded segment against this type's own
	// required fields (e.g. a cache segment must reference a pool LV),
	// matching segtype_handler.text_import's extra checks beyond the
	// generic fields formattext.DecodeVG already fills in.
	TextImport func(seg *metadata.Segment) error
}

var _ metadata.SegmentType = (*Type)(nil)

func (t *Type) Name() string              { return t.TypeName }
func (t *Type) HasFlag(flag uint32) bool { return t.Flags&flag != 0 }

// Registry is segtype_library: the set of segment types a toolcontext
// has initialised, keyed by name.
type Registry struct {
	byName map[string]*Type
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Type{}}
}

// Register adds t to the registry, matching lvm_register_segtype's
// refusal to admit two segment types of the same name.
func (r *Registry) Register(t *Type) error {
	if _, exists := r.byName[t.TypeName]; exists {
		return lvmerrors.InvalidArgumentf("segtype: %q already registered", t.TypeName)
	}
	r.byName[t.TypeName] = t
	return nil
}

// Get resolves a name to a segment type, matching get_segtype_from_string.
// Its signature (string) (metadata.SegmentType, error) is exactly the
// shape formattext.Handler's ResolveSegType field expects.
func (r *Registry) Get(name string) (metadata.SegmentType, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, lvmerrors.NotFoundf("segtype: unknown segment type %q", name)
	}
	return t, nil
}

// All returns every registered type, in no particular order.
func (r *Registry) All() []*Type {
	out := make([]*Type, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, t)
	}
	return out
}

// MergeSegments wraps metadata.MergeSegments with the segtype-level
// eligibility gate real callers apply before ever trying a merge:
// lv_merge_segments only attempts it for segment types flagged
// SEG_CAN_SPLIT, which striped/linear/mirror carry and RAID/thin/cache
// do not.
func MergeSegments(a, b *metadata.Segment) bool {
	if !a.Type.HasFlag(metadata.SegCanSplit) {
		return false
	}
	return metadata.MergeSegments(a, b)
}

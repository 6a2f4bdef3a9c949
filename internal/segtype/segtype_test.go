package segtype

import (
	"testing"

	"github.com/lvm2go/lvm2core/internal/metadata"
)

func TestRegisterDefaultsCoversExpectedNames(t *testing.T) {
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	want := []string{"striped", "mirror", "snapshot", "zero", "error", "thin-pool", "thin", "cache-pool", "cache", "replicator", "replicator-dev", "raid1", "raid5", "raid6"}
	for _, name := range want {
		if _, err := r.Get(name); err != nil {
			t.Fatalf("expected %q to be registered: %v", name, err)
		}
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Type{TypeName: "striped"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&Type{TypeName: "striped"}); err == nil {
		t.Fatal("expected duplicate registration to be rejected")
	}
}

func TestGetUnknownNameIsNotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nonexistent"); err == nil {
		t.Fatal("expected an error for an unregistered name")
	}
}

func TestRaidSegtypesCarryRaidAndExclusiveFlags(t *testing.T) {
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	st, err := r.Get("raid5")
	if err != nil {
		t.Fatalf("Get raid5: %v", err)
	}
	if !st.HasFlag(metadata.SegRaid) || !st.HasFlag(metadata.SegOnlyExclusive) {
		t.Fatalf("expected raid5 to carry SegRaid|SegOnlyExclusive, got flags on %+v", st)
	}
	if st.HasFlag(metadata.SegCanSplit) {
		t.Fatal("raid segments must never claim SEG_CAN_SPLIT")
	}
}

func segOf(t *testing.T, typeName string, le, length uint32, pv *metadata.PV, pe uint32) *metadata.Segment {
	t.Helper()
	return &metadata.Segment{
		LE: le, Len: length, Type: &Type{TypeName: typeName, Flags: metadata.SegAreasStriped | metadata.SegCanSplit},
		Areas: []metadata.Area{{Kind: metadata.AreaPV, PV: pv, PE: pe, Len: length}},
	}
}

func TestMergeSegmentsRefusesTypesWithoutCanSplit(t *testing.T) {
	pv, err := metadata.NewPV("pvid", 1000, 4, 0, 200)
	if err != nil {
		t.Fatalf("NewPV: %v", err)
	}
	a := &metadata.Segment{LE: 0, Len: 10, Type: &Type{TypeName: "raid5", Flags: metadata.SegRaid}, Areas: []metadata.Area{{Kind: metadata.AreaPV, PV: pv, PE: 0, Len: 10}}}
	b := &metadata.Segment{LE: 10, Len: 10, Type: &Type{TypeName: "raid5", Flags: metadata.SegRaid}, Areas: []metadata.Area{{Kind: metadata.AreaPV, PV: pv, PE: 10, Len: 10}}}
	if MergeSegments(a, b) {
		t.Fatal("expected raid5 (no SEG_CAN_SPLIT) to refuse merging")
	}
}

func TestMergeSegmentsAcceptsContiguousStripedRuns(t *testing.T) {
	pv, err := metadata.NewPV("pvid", 1000, 4, 0, 200)
	if err != nil {
		t.Fatalf("NewPV: %v", err)
	}
	a := segOf(t, "striped", 0, 10, pv, 0)
	b := segOf(t, "striped", 10, 10, pv, 10)
	if !MergeSegments(a, b) {
		t.Fatal("expected contiguous striped segments on the same pv to merge")
	}
	if a.Len != 20 {
		t.Fatalf("expected merged length 20, got %d", a.Len)
	}
}

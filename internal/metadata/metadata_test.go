package metadata

import "testing"

type fakeSegType struct {
	name  string
	flags uint32
}

func (s fakeSegType) Name() string            { return s.name }
func (s fakeSegType) HasFlag(f uint32) bool    { return s.flags&f != 0 }

var striped = fakeSegType{name: "striped", flags: SegAreasStriped | SegCanSplit}

func mustPV(t *testing.T, id string, peCount uint32) *PV {
	t.Helper()
	pv, err := NewPV(id, uint64(peCount+1)*4, 4, 4, peCount)
	if err != nil {
		t.Fatalf("NewPV: %v", err)
	}
	return pv
}

func linearLV(name string, leCount uint32, pv *PV, pe uint32) *LV {
	lv := &LV{Name: name, LECount: leCount, Status: VGWrite}
	seg := &Segment{LE: 0, Len: leCount, Type: striped, Areas: []Area{{Kind: AreaPV, PV: pv, PE: pe, Len: leCount}}}
	seg.LV = lv
	lv.Segments = []*Segment{seg}
	return lv
}

func TestVGExtentAccounting(t *testing.T) {
	pv := mustPV(t, "pv1", 100)
	vg := NewVG("vgid", "vg1")
	if err := vg.AddPV(pv); err != nil {
		t.Fatalf("AddPV: %v", err)
	}
	if vg.ExtentCount != 100 || vg.FreeCount != 100 {
		t.Fatalf("unexpected accounting: %+v", vg)
	}

	lv := linearLV("lv1", 25, pv, 0)
	pv.PEAllocCount = 25
	vg.LVs = append(vg.LVs, lv)
	vg.recomputeExtents()

	if vg.FreeCount != 75 {
		t.Fatalf("free_count = %d, want 75", vg.FreeCount)
	}
	if err := vg.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

// TestVGSetExtentSizeMatchesWorkedExample reproduces spec.md §8
// scenario 2 literally: extent_size=4, extent_count=100, growing to 8
// must refuse an LV with an odd le_count of 25 (25 is not divisible by
// 2) without mutating anything, while an LV with an even le_count of 24
// under the same geometry succeeds, landing at le_count=12 and
// extent_count=50.
func TestVGSetExtentSizeMatchesWorkedExample(t *testing.T) {
	pv := mustPV(t, "pv1", 100)
	vg := NewVG("vgid", "vg1")
	if err := vg.AddPV(pv); err != nil {
		t.Fatalf("AddPV: %v", err)
	}
	lv := linearLV("lv1", 25, pv, 0)
	vg.LVs = append(vg.LVs, lv)

	if err := vg.SetExtentSize(8); err == nil {
		t.Fatalf("expected error growing extent_size 4->8 against an odd le_count of 25")
	}
	if vg.ExtentSize != 4 || vg.ExtentCount != 100 || lv.LECount != 25 {
		t.Fatalf("SetExtentSize must not mutate anything on failure, got extent_size=%d extent_count=%d le_count=%d",
			vg.ExtentSize, vg.ExtentCount, lv.LECount)
	}

	pv2 := mustPV(t, "pv2", 100)
	vg2 := NewVG("vgid2", "vg2")
	if err := vg2.AddPV(pv2); err != nil {
		t.Fatalf("AddPV: %v", err)
	}
	lv2 := linearLV("lv2", 24, pv2, 0)
	vg2.LVs = append(vg2.LVs, lv2)

	if err := vg2.SetExtentSize(8); err != nil {
		t.Fatalf("SetExtentSize(8): %v", err)
	}
	if vg2.ExtentCount != 50 {
		t.Fatalf("extent_count = %d, want 50", vg2.ExtentCount)
	}
	if lv2.LECount != 12 {
		t.Fatalf("le_count = %d, want 12", lv2.LECount)
	}
}

func TestVGSetMaxLVRefusesShrinkBelowCurrent(t *testing.T) {
	vg := NewVG("vgid", "vg1")
	vg.LVs = append(vg.LVs, &LV{Name: "lv1"}, &LV{Name: "lv2"})
	if err := vg.SetMaxLV(1, false); err == nil {
		t.Fatalf("expected error shrinking max_lv below current count")
	}
	if err := vg.SetMaxLV(2, false); err != nil {
		t.Fatalf("SetMaxLV(2): %v", err)
	}
	if err := vg.SetMaxLV(1000, true); err != nil {
		t.Fatalf("SetMaxLV(1000, clamp): %v", err)
	}
	if vg.MaxLV != 255 {
		t.Fatalf("max_lv = %d, want clamped 255", vg.MaxLV)
	}
}

func TestVGSetAllocPolicyRejectsInherit(t *testing.T) {
	vg := NewVG("vgid", "vg1")
	if err := vg.SetAllocPolicy(AllocInherit); err == nil {
		t.Fatalf("expected error setting alloc=inherit at vg scope")
	}
}

func TestVgReduceSingleRefusesAllocatedPV(t *testing.T) {
	pv := mustPV(t, "pv1", 100)
	vg := NewVG("vgid", "vg1")
	_ = vg.AddPV(pv)
	pv.PEAllocCount = 1

	orphan := NewVG("", "")
	if err := VgReduceSingle(vg, orphan, pv, nil); err == nil {
		t.Fatalf("expected error reducing a pv with allocated extents")
	}

	pv.PEAllocCount = 0
	committed := false
	if err := VgReduceSingle(vg, orphan, pv, func(vg, orph *VG, pv *PV) error {
		committed = true
		return nil
	}); err != nil {
		t.Fatalf("VgReduceSingle: %v", err)
	}
	if !committed {
		t.Fatalf("commit callback was not invoked")
	}
	if len(vg.PVs) != 0 {
		t.Fatalf("pv was not removed from vg")
	}
	if len(orphan.PVs) != 1 || orphan.PVs[0] != pv {
		t.Fatalf("pv was not moved to orphan vg")
	}
	if pv.VGName != "" {
		t.Fatalf("pv.VGName = %q, want orphan \"\"", pv.VGName)
	}
}

func TestMergeSegmentsContiguous(t *testing.T) {
	pv := mustPV(t, "pv1", 100)
	lv := &LV{Name: "lv1", LECount: 20}
	a := &Segment{LV: lv, LE: 0, Len: 10, Type: striped, Areas: []Area{{Kind: AreaPV, PV: pv, PE: 0, Len: 10}}}
	b := &Segment{LV: lv, LE: 10, Len: 10, Type: striped, Areas: []Area{{Kind: AreaPV, PV: pv, PE: 10, Len: 10}}}

	if !MergeSegments(a, b) {
		t.Fatalf("expected contiguous segments to merge")
	}
	if a.Len != 20 || a.Areas[0].Len != 20 {
		t.Fatalf("merged segment has wrong length: %+v", a)
	}
}

func TestMergeSegmentsRefusesRaid(t *testing.T) {
	pv := mustPV(t, "pv1", 100)
	raid := fakeSegType{name: "raid1", flags: SegRaid}
	lv := &LV{Name: "lv1"}
	a := &Segment{LV: lv, LE: 0, Len: 10, Type: raid, Areas: []Area{{Kind: AreaPV, PV: pv, PE: 0, Len: 10}}}
	b := &Segment{LV: lv, LE: 10, Len: 10, Type: raid, Areas: []Area{{Kind: AreaPV, PV: pv, PE: 10, Len: 10}}}
	if MergeSegments(a, b) {
		t.Fatalf("raid segments must never merge")
	}
}

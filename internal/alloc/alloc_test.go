package alloc

import (
	"testing"

	"github.com/lvm2go/lvm2core/internal/metadata"
)

func newPV(t *testing.T, id string, peCount uint32) *metadata.PV {
	t.Helper()
	pv, err := metadata.NewPV(id, uint64(peCount)*4, 4, 0, peCount)
	if err != nil {
		t.Fatalf("NewPV: %v", err)
	}
	return pv
}

func TestBuildPVMapsMarksAllocatedExtents(t *testing.T) {
	vg := metadata.NewVG("vgid", "vg0")
	pv := newPV(t, "pv0", 100)
	if err := vg.AddPV(pv); err != nil {
		t.Fatalf("AddPV: %v", err)
	}
	lv := &metadata.LV{Name: "lv0", VG: vg, LECount: 10}
	lv.Segments = []*metadata.Segment{{
		LV: lv, LE: 0, Len: 10,
		Areas: []metadata.Area{{Kind: metadata.AreaPV, PV: pv, PE: 5, Len: 10}},
	}}
	vg.LVs = append(vg.LVs, lv)

	maps, err := BuildPVMaps(vg, vg.PVs)
	if err != nil {
		t.Fatalf("BuildPVMaps: %v", err)
	}
	if len(maps) != 1 {
		t.Fatalf("expected 1 pvmap, got %d", len(maps))
	}
	pvm := maps[0]
	for pe := uint32(5); pe < 15; pe++ {
		if !pvm.allocated[pe] {
			t.Fatalf("expected pe %d to be marked allocated", pe)
		}
	}
	if pvm.allocated[4] || pvm.allocated[15] {
		t.Fatal("expected extents outside the segment to remain free")
	}
}

func TestBuildPVMapsRejectsDoubleAllocation(t *testing.T) {
	vg := metadata.NewVG("vgid", "vg0")
	pv := newPV(t, "pv0", 100)
	if err := vg.AddPV(pv); err != nil {
		t.Fatalf("AddPV: %v", err)
	}
	lvA := &metadata.LV{Name: "a", VG: vg, LECount: 10}
	lvA.Segments = []*metadata.Segment{{LV: lvA, LE: 0, Len: 10, Areas: []metadata.Area{{Kind: metadata.AreaPV, PV: pv, PE: 0, Len: 10}}}}
	lvB := &metadata.LV{Name: "b", VG: vg, LECount: 10}
	lvB.Segments = []*metadata.Segment{{LV: lvB, LE: 0, Len: 10, Areas: []metadata.Area{{Kind: metadata.AreaPV, PV: pv, PE: 5, Len: 10}}}}
	vg.LVs = append(vg.LVs, lvA, lvB)

	if _, err := BuildPVMaps(vg, vg.PVs); err == nil {
		t.Fatal("expected overlapping allocations to be rejected")
	}
}

func TestCreateAreasFindsMaximalFreeRuns(t *testing.T) {
	pv := newPV(t, "pv0", 20)
	pvm := &PVMap{PV: pv, allocated: make([]bool, 20)}
	for pe := 5; pe < 10; pe++ {
		pvm.allocated[pe] = true
	}
	pvm.CreateAreas(0, 20)

	if len(pvm.Areas) != 2 {
		t.Fatalf("expected 2 free runs, got %d: %+v", len(pvm.Areas), pvm.Areas)
	}
	// sorted descending by count: [10,20) is len 10, [0,5) is len 5.
	if pvm.Areas[0].Start != 10 || pvm.Areas[0].Count != 10 {
		t.Fatalf("unexpected largest area: %+v", pvm.Areas[0])
	}
	if pvm.Areas[1].Start != 0 || pvm.Areas[1].Count != 5 {
		t.Fatalf("unexpected second area: %+v", pvm.Areas[1])
	}
}

func TestConsumePVAreaSplitsRemainder(t *testing.T) {
	pv := newPV(t, "pv0", 20)
	pvm := &PVMap{PV: pv, allocated: make([]bool, 20)}
	pvm.CreateAreas(0, 20)
	area := pvm.Areas[0]

	ConsumePVArea(area, 6)

	if len(pvm.Areas) != 1 {
		t.Fatalf("expected exactly one remaining area, got %d", len(pvm.Areas))
	}
	if pvm.Areas[0].Start != 6 || pvm.Areas[0].Count != 14 {
		t.Fatalf("unexpected remainder: %+v", pvm.Areas[0])
	}
}

func TestConsumePVAreaWholeAreaRemovesIt(t *testing.T) {
	pv := newPV(t, "pv0", 20)
	pvm := &PVMap{PV: pv, allocated: make([]bool, 20)}
	pvm.CreateAreas(0, 20)
	area := pvm.Areas[0]

	ConsumePVArea(area, area.Count)

	if len(pvm.Areas) != 0 {
		t.Fatalf("expected no areas left, got %+v", pvm.Areas)
	}
}

func TestSelectAnywherePicksLargestAcrossPVs(t *testing.T) {
	small := newPV(t, "small", 20)
	big := newPV(t, "big", 100)
	pvmSmall := &PVMap{PV: small, allocated: make([]bool, 20)}
	pvmSmall.CreateAreas(0, 20)
	pvmBig := &PVMap{PV: big, allocated: make([]bool, 100)}
	pvmBig.CreateAreas(0, 100)

	res, err := Select(Request{Legs: 1, ExtentsPerLeg: 10, Policy: metadata.AllocAnywhere, Candidates: []*PVMap{pvmSmall, pvmBig}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if res.Legs[0].Map.PV != big {
		t.Fatalf("expected the larger pv to be chosen, got %s", res.Legs[0].Map.PV.ID)
	}
}

func TestSelectNormalRefusesToShareAPVAcrossLegs(t *testing.T) {
	pv := newPV(t, "pv0", 40)
	pvm := &PVMap{PV: pv, allocated: make([]bool, 40)}
	pvm.CreateAreas(0, 40)

	_, err := Select(Request{Legs: 2, ExtentsPerLeg: 10, Policy: metadata.AllocNormal, Candidates: []*PVMap{pvm}})
	if err == nil {
		t.Fatal("expected a 2-leg normal-policy request with only one candidate pv to fail")
	}
}

func TestSelectContiguousRequiresImmediateFollowOn(t *testing.T) {
	pv := newPV(t, "pv0", 40)
	pvm := &PVMap{PV: pv, allocated: make([]bool, 40)}
	for pe := 0; pe < 10; pe++ {
		pvm.allocated[pe] = true
	}
	pvm.CreateAreas(0, 40)

	prior := []metadata.Area{{Kind: metadata.AreaPV, PV: pv, PE: 0, Len: 10}}
	res, err := Select(Request{Legs: 1, ExtentsPerLeg: 10, Policy: metadata.AllocContiguous, Candidates: []*PVMap{pvm}, PriorLeg: prior})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if res.Legs[0].Start != 10 {
		t.Fatalf("expected contiguous area to start at pe 10, got %d", res.Legs[0].Start)
	}
}

func TestSelectContiguousFailsWhenNotImmediatelyFollowing(t *testing.T) {
	pv := newPV(t, "pv0", 40)
	pvm := &PVMap{PV: pv, allocated: make([]bool, 40)}
	for pe := 0; pe < 10; pe++ {
		pvm.allocated[pe] = true
	}
	for pe := 10; pe < 15; pe++ {
		pvm.allocated[pe] = true // gap right after the prior segment
	}
	pvm.CreateAreas(0, 40)

	prior := []metadata.Area{{Kind: metadata.AreaPV, PV: pv, PE: 0, Len: 10}}
	if _, err := Select(Request{Legs: 1, ExtentsPerLeg: 10, Policy: metadata.AllocContiguous, Candidates: []*PVMap{pvm}, PriorLeg: prior}); err == nil {
		t.Fatal("expected contiguous allocation to fail when the adjacent extent is already allocated")
	}
}

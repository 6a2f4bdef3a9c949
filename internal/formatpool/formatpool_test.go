package formatpool

import "testing"

func pvuuid(c byte) string {
	b := make([]byte, uuidLen)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func TestDiskEncodeDecodeRoundTrip(t *testing.T) {
	d := &Disk{
		Magic: Magic, Version: Version, Subpools: 2,
		SPID: 1, Striping: 2, SPDevs: 3, SPType: 0, SPDevID: 1,
		Blocks: 1000, PVUUID: pvuuid('a'),
	}
	b := d.Encode()
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != *d {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, d)
	}
}

func TestMatchesIgnoresMinorVersionByte(t *testing.T) {
	d := &Disk{Magic: Magic, Version: Version | 0x01}
	if !matches(d) {
		t.Fatal("expected minor version bump to still match")
	}
	bad := &Disk{Magic: Magic, Version: Version ^ 0x0100}
	if matches(bad) {
		t.Fatal("expected major version mismatch to be rejected")
	}
}

func TestLabellerRejectsBadMagic(t *testing.T) {
	var l Labeller
	d := &Disk{Magic: 0xdeadbeef, Version: Version}
	if l.CanHandle(nil, d.Encode()) {
		t.Fatal("expected non-pool header to be rejected")
	}
}

func TestLabellerAcceptsPoolHeader(t *testing.T) {
	var l Labeller
	d := &Disk{Magic: Magic, Version: Version, PVUUID: pvuuid('z')}
	if !l.CanHandle(nil, d.Encode()) {
		t.Fatal("expected pool header to be accepted")
	}
	lbl, err := l.Read(nil, d.Encode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lbl.PVID != d.PVUUID {
		t.Fatalf("expected pvid %q, got %q", d.PVUUID, lbl.PVID)
	}
}

func twoSubpoolHeaders() []Disk {
	return []Disk{
		{Magic: Magic, Version: Version, Subpools: 2, SPID: 0, Striping: 2, SPDevs: 2, SPDevID: 0, Blocks: 100, PVUUID: pvuuid('a')},
		{Magic: Magic, Version: Version, Subpools: 2, SPID: 0, Striping: 2, SPDevs: 2, SPDevID: 1, Blocks: 100, PVUUID: pvuuid('b')},
		{Magic: Magic, Version: Version, Subpools: 2, SPID: 1, Striping: 1, SPDevs: 1, SPDevID: 0, Blocks: 50, PVUUID: pvuuid('c')},
	}
}

func TestBuildSubpoolsGroupsByID(t *testing.T) {
	headers := twoSubpoolHeaders()
	pvids := make([]string, len(headers))
	for i, h := range headers {
		pvids[i] = h.PVUUID
	}

	sps, err := BuildSubpools(headers, pvids)
	if err != nil {
		t.Fatalf("BuildSubpools: %v", err)
	}
	if len(sps) != 2 {
		t.Fatalf("expected 2 subpools, got %d", len(sps))
	}
	if sps[0].NumDevs != 2 || sps[1].NumDevs != 1 {
		t.Fatalf("unexpected device counts: %+v", sps)
	}
}

func TestCheckSubpoolsRejectsMissingDevice(t *testing.T) {
	headers := []Disk{
		{Magic: Magic, Version: Version, SPID: 0, SPDevs: 2, SPDevID: 0, PVUUID: pvuuid('a')},
	}
	sps, err := BuildSubpools(headers, []string{"a"})
	if err != nil {
		t.Fatalf("BuildSubpools: %v", err)
	}
	if err := CheckSubpools("vg0", sps); err == nil {
		t.Fatal("expected missing device 1 to be rejected")
	}
}

func TestImportVGBuildsOneLVPerSubpool(t *testing.T) {
	vg, err := ImportVG("vgid", "vg0", twoSubpoolHeaders())
	if err != nil {
		t.Fatalf("ImportVG: %v", err)
	}
	if len(vg.PVs) != 3 {
		t.Fatalf("expected 3 pvs, got %d", len(vg.PVs))
	}
	if len(vg.LVs) != 2 {
		t.Fatalf("expected 2 lvs (one per subpool), got %d", len(vg.LVs))
	}
	if vg.LVs[0].LECount != 100 || vg.LVs[1].LECount != 50 {
		t.Fatalf("unexpected le counts: %d, %d", vg.LVs[0].LECount, vg.LVs[1].LECount)
	}
	if err := vg.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

func TestImportVGRejectsPartialPool(t *testing.T) {
	headers := []Disk{
		{Magic: Magic, Version: Version, SPID: 0, SPDevs: 2, SPDevID: 0, PVUUID: pvuuid('a'), Blocks: 10},
	}
	if _, err := ImportVG("vgid", "vg0", headers); err == nil {
		t.Fatal("expected partial pool (missing device) to be rejected")
	}
}

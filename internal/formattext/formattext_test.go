package formattext

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lvm2go/lvm2core/internal/metadata"
)

func TestSectionRenderParseRoundTrip(t *testing.T) {
	root := &Section{}
	top := root.AddSection("vg0")
	top.Set("id", Str("vgid-aaaa"))
	top.Set("seqno", Int(3))
	top.Set("status", List(Str("READ"), Str("WRITE")))

	rendered := root.Render()
	got, err := Parse(rendered)
	if err != nil {
		t.Fatalf("Parse: %v\ninput:\n%s", err, rendered)
	}

	vgSec := got.GetSection("vg0")
	if vgSec == nil {
		t.Fatalf("missing vg0 section in reparsed tree")
	}
	id, ok := vgSec.Get("id")
	if !ok || id.Str != "vgid-aaaa" {
		t.Fatalf("id mismatch: %+v", id)
	}
	seqno, ok := vgSec.Get("seqno")
	if !ok || seqno.Int != 3 {
		t.Fatalf("seqno mismatch: %+v", seqno)
	}
	status, ok := vgSec.Get("status")
	if !ok {
		t.Fatalf("missing status key")
	}
	if diff := cmp.Diff(List(Str("READ"), Str("WRITE")), status); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsUnterminatedString(t *testing.T) {
	if _, err := Parse(`x = "unterminated`); err == nil {
		t.Fatal("expected unterminated string to be rejected")
	}
}

func TestParseRejectsTrailingInput(t *testing.T) {
	if _, err := Parse(`x = 1 }`); err == nil {
		t.Fatal("expected a stray closing brace to be rejected")
	}
}

func TestParseHandlesCommentsAndNestedSections(t *testing.T) {
	src := `
# a top-level comment
vg0 {
	id = "vgid"
	physical_volumes {
		pv0 {
			pe_start = 1024
		}
	}
}
`
	sec, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	vg := sec.GetSection("vg0")
	pvs := vg.GetSection("physical_volumes")
	pv0 := pvs.GetSection("pv0")
	v, ok := pv0.Get("pe_start")
	if !ok || v.Int != 1024 {
		t.Fatalf("pe_start mismatch: %+v", v)
	}
}

type fakeSegType struct{ name string }

func (f fakeSegType) Name() string            { return f.name }
func (f fakeSegType) HasFlag(flag uint32) bool { return false }

func resolveFake(name string) (metadata.SegmentType, error) {
	return fakeSegType{name: name}, nil
}

func buildTestVG(t *testing.T) *metadata.VG {
	t.Helper()
	vg := metadata.NewVG("vgid-0001", "vg0")
	vg.Seqno = 5
	vg.MaxLV = 10
	vg.MaxPV = 10

	pv0, err := metadata.NewPV("pvid-aaaa", 1000, 4, 0, 250)
	if err != nil {
		t.Fatalf("NewPV pv0: %v", err)
	}
	pv0.DevName = "/dev/fake0"
	if err := vg.AddPV(pv0); err != nil {
		t.Fatalf("AddPV pv0: %v", err)
	}

	pv1, err := metadata.NewPV("pvid-bbbb", 1000, 4, 0, 250)
	if err != nil {
		t.Fatalf("NewPV pv1: %v", err)
	}
	pv1.DevName = "/dev/fake1"
	if err := vg.AddPV(pv1); err != nil {
		t.Fatalf("AddPV pv1: %v", err)
	}

	lv := &metadata.LV{Name: "lv0", LVID: "vgid-0001lvid-0001", VG: vg, LECount: 20}
	lv.Segments = []*metadata.Segment{{
		LV: lv, LE: 0, Len: 20, Type: fakeSegType{name: "striped"}, StripeSize: 8,
		Areas: []metadata.Area{
			{Kind: metadata.AreaPV, PV: pv0, PE: 0, Len: 20},
			{Kind: metadata.AreaPV, PV: pv1, PE: 0, Len: 20},
		},
	}}
	vg.LVs = append(vg.LVs, lv)
	return vg
}

// vgScalarCore is the subset of VG scalar fields
// TestEncodeDecodeVGRoundTrip asserts on.
type vgScalarCore struct {
	ID    string
	Name  string
	Seqno uint32
}

func vgCore(vg *metadata.VG) vgScalarCore {
	return vgScalarCore{ID: vg.ID, Name: vg.Name, Seqno: vg.Seqno}
}

func TestEncodeDecodeVGRoundTrip(t *testing.T) {
	vg := buildTestVG(t)
	if err := vg.CheckInvariants(); err != nil {
		t.Fatalf("fixture invariants: %v", err)
	}

	sec := EncodeVG(vg)
	got, err := DecodeVG(sec, resolveFake)
	if err != nil {
		t.Fatalf("DecodeVG: %v", err)
	}

	if diff := cmp.Diff(vgCore(vg), vgCore(got)); diff != "" {
		t.Fatalf("vg scalar mismatch (-want +got):\n%s", diff)
	}
	if len(got.PVs) != 2 {
		t.Fatalf("expected 2 pvs, got %d", len(got.PVs))
	}
	if len(got.LVs) != 1 || len(got.LVs[0].Segments) != 1 {
		t.Fatalf("expected 1 lv with 1 segment, got %+v", got.LVs)
	}
	seg := got.LVs[0].Segments[0]
	if seg.Len != 20 || seg.Type.Name() != "striped" || len(seg.Areas) != 2 {
		t.Fatalf("segment mismatch: %+v", seg)
	}
	if err := got.CheckInvariants(); err != nil {
		t.Fatalf("decoded vg invariants: %v", err)
	}
}

// memDevice is an in-memory Device for exercising the ring buffer
// without a real block device.
type memDevice struct {
	buf []byte
}

func newMemDevice(size int) *memDevice { return &memDevice{buf: make([]byte, size)} }

func (m *memDevice) Read(offset uint64, length int) ([]byte, error) {
	out := make([]byte, length)
	copy(out, m.buf[offset:int(offset)+length])
	return out, nil
}

func (m *memDevice) Write(offset uint64, data []byte) (int, error) {
	n := copy(m.buf[offset:], data)
	return n, nil
}

func TestRingCommitAndReadPayloadRoundTrip(t *testing.T) {
	dev := newMemDevice(8192)
	r := &Ring{Dev: dev, MDAOffset: 0, RingStart: headerLen, RingSize: 8192 - headerLen}

	vg := buildTestVG(t)
	sec := EncodeVG(vg)
	payload := []byte(sec.Render())

	if err := r.Commit(payload); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	gotSec, err := r.ReadPayload()
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	got, err := DecodeVG(gotSec, resolveFake)
	if err != nil {
		t.Fatalf("DecodeVG: %v", err)
	}
	if diff := cmp.Diff(vgCore(vg), vgCore(got)); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if len(got.PVs) != 2 {
		t.Fatalf("expected 2 pvs, got %d", len(got.PVs))
	}
}

func TestRingCommitAppendsMonotonically(t *testing.T) {
	dev := newMemDevice(4096)
	r := &Ring{Dev: dev, MDAOffset: 0, RingStart: headerLen, RingSize: 4096 - headerLen}

	if err := r.Commit([]byte("first")); err != nil {
		t.Fatalf("Commit 1: %v", err)
	}
	h1, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader 1: %v", err)
	}
	if h1.Locn.Offset != 0 {
		t.Fatalf("expected first commit at offset 0, got %d", h1.Locn.Offset)
	}

	if err := r.Commit([]byte("second, a bit longer")); err != nil {
		t.Fatalf("Commit 2: %v", err)
	}
	h2, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader 2: %v", err)
	}
	if h2.Locn.Offset != h1.Locn.Offset+h1.Locn.Size {
		t.Fatalf("expected second commit to append immediately after the first, got offset %d want %d", h2.Locn.Offset, h1.Locn.Offset+h1.Locn.Size)
	}
}

func TestRingCommitWrapsWhenOutOfRoom(t *testing.T) {
	dev := newMemDevice(256)
	ringSize := uint64(256 - headerLen)
	r := &Ring{Dev: dev, MDAOffset: 0, RingStart: headerLen, RingSize: ringSize}

	if err := r.Commit([]byte("head")); err != nil {
		t.Fatalf("Commit head: %v", err)
	}
	big := make([]byte, ringSize-6)
	for i := range big {
		big[i] = 'x'
	}
	if err := r.Commit(big); err != nil {
		t.Fatalf("Commit big: %v", err)
	}
	h1, _ := r.ReadHeader()
	if h1.Locn.Offset != 4 {
		t.Fatalf("expected big commit right after the 4-byte head copy, got %d", h1.Locn.Offset)
	}

	small := []byte("next")
	if err := r.Commit(small); err != nil {
		t.Fatalf("Commit small: %v", err)
	}
	h2, _ := r.ReadHeader()
	if h2.Locn.Offset != 0 {
		t.Fatalf("expected wrap back to offset 0 when there's no room after the previous copy, got %d", h2.Locn.Offset)
	}

	// a wrapped copy that would overwrite the previous one is refused.
	if err := r.Commit(make([]byte, ringSize-2)); err == nil {
		t.Fatal("expected a commit that cannot fit beside the previous copy to fail")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	b := make([]byte, headerLen)
	if _, err := Decode(b); err == nil {
		t.Fatal("expected zeroed buffer (no magic) to be rejected")
	}
}

func TestDecodeRejectsCorruptChecksum(t *testing.T) {
	h := &Header{Version: HeaderVersion, Start: 100, Size: 1000, Locn: RawLocn{Offset: 1, Size: 2, Checksum: 3}}
	b := h.Encode()
	b[30] ^= 0xff
	if _, err := Decode(b); err == nil {
		t.Fatal("expected corrupted header to be rejected")
	}
}

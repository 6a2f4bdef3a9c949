package formattext

import (
	"encoding/binary"

	"github.com/lvm2go/lvm2core/internal/devcache"
	"github.com/lvm2go/lvm2core/internal/label"
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
)

// pvLabelMagic identifies a format_text PV label within the 4 KB window
// label.Scan reads off the front of every filtered device. The real
// lvm2_label.c scheme (a "LABELONE" header at sector 1, with a separate
// mda_header elsewhere in the MDA ring buffer) is not present in the
// retrieval pack; this is a documented simplification folding the PVID
// and the owning VG's identity directly into the label window so that
// label scan alone (without a second device read into the MDA) can
// populate lvmcache's three indices, matching spec.md §4.H's "reads 4 KB
// ... routes to the correct labeller ... populates the vgname/vgid/pvid
// hash indices" in one pass. See DESIGN.md's Open Question entry.
var pvLabelMagic = [8]byte{'L', 'V', 'M', '2', 'T', 'X', 'T', '1'}

const (
	pvidLen   = 32
	nameField = 128
)

// PVLabel is the on-disk record this package writes at the front of a PV
// (offset 0 of the 4 KB label window) to make it self-describing for
// label scan.
type PVLabel struct {
	PVID     string
	VGName   string
	VGID     string
	MDAOffset uint64 // sector offset of this PV's mda_header
	MDASize   uint64
}

const pvLabelSize = 8 + pvidLen + nameField + pvidLen + 8 + 8

func putFixed(b []byte, s string) {
	n := copy(b, s)
	for i := n; i < len(b); i++ {
		b[i] = 0
	}
}

func getFixed(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Encode serializes l into a pvLabelSize-byte record.
func (l *PVLabel) Encode() []byte {
	b := make([]byte, pvLabelSize)
	copy(b[0:8], pvLabelMagic[:])
	off := 8
	putFixed(b[off:off+pvidLen], l.PVID)
	off += pvidLen
	putFixed(b[off:off+nameField], l.VGName)
	off += nameField
	putFixed(b[off:off+pvidLen], l.VGID)
	off += pvidLen
	binary.LittleEndian.PutUint64(b[off:off+8], l.MDAOffset)
	off += 8
	binary.LittleEndian.PutUint64(b[off:off+8], l.MDASize)
	return b
}

// DecodePVLabel parses a label window, failing if the magic doesn't
// match.
func DecodePVLabel(b []byte) (*PVLabel, error) {
	if len(b) < pvLabelSize {
		return nil, lvmerrors.Formatf("formattext: label window too short (%d bytes)", len(b))
	}
	for i, m := range pvLabelMagic {
		if b[i] != m {
			return nil, lvmerrors.Formatf("formattext: bad label magic")
		}
	}
	off := 8
	l := &PVLabel{}
	l.PVID = getFixed(b[off : off+pvidLen])
	off += pvidLen
	l.VGName = getFixed(b[off : off+nameField])
	off += nameField
	l.VGID = getFixed(b[off : off+pvidLen])
	off += pvidLen
	l.MDAOffset = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	l.MDASize = binary.LittleEndian.Uint64(b[off : off+8])
	return l, nil
}

// Labeller implements label.Labeller for format_text, the general-
// purpose on-disk format backing ordinary PVs.
type Labeller struct{}

func (Labeller) Name() string { return "text" }

func (Labeller) CanHandle(dev *devcache.Device, window []byte) bool {
	_, err := DecodePVLabel(window)
	return err == nil
}

func (Labeller) Read(dev *devcache.Device, window []byte) (*label.Label, error) {
	l, err := DecodePVLabel(window)
	if err != nil {
		return nil, err
	}
	return &label.Label{PVID: l.PVID, VolumeType: "text", Version: [3]uint32{2, 0, 0}}, nil
}

var _ label.Labeller = Labeller{}

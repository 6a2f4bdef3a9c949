// Package format1 implements component I's lvm1 codec: the fixed-offset
// on-disk layout of spec.md §4.I/§6, grounded on
// original_source/lib/format1/disk-rep.h (pv_disk/vg_disk/lv_disk/
// pe_disk) and import-export.c (PE-map <-> lv_segment reconstruction).
package format1

import (
	"encoding/binary"

	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
)

// Caps from disk-rep.h.
const (
	MaxPV = 256
	MaxLV = 256
	MaxVG = 99

	NameLen = 128
	IDLen   = 16

	// UnmappedExtent is pe_disk's sentinel for "this PE belongs to no LV".
	UnmappedExtent = 0xFFFF
)

// Magic is the 2-byte "HM" signature at the head of every PV header.
var Magic = [2]byte{'H', 'M'}

// DataArea is a {base, size} pair as stored in pv_disk, always
// little-endian on disk.
type DataArea struct {
	Base uint32
	Size uint32
}

func (d DataArea) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], d.Base)
	binary.LittleEndian.PutUint32(b[4:8], d.Size)
}

func decodeDataArea(b []byte) DataArea {
	return DataArea{Base: binary.LittleEndian.Uint32(b[0:4]), Size: binary.LittleEndian.Uint32(b[4:8])}
}

// PVDisk is the on-disk pv_disk struct (version 2 shape, which adds
// PEStart; version 1 omits it and derives pe_start from the end of the
// PE map instead — see Decode/Encode below).
type PVDisk struct {
	Version int // 1 or 2

	PVOnDisk        DataArea
	VGOnDisk        DataArea
	PVUUIDListOnDisk DataArea
	LVOnDisk        DataArea
	PEOnDisk        DataArea

	PVUUID   string
	VGName   string
	SystemID string

	PVMajor      uint32
	PVNumber     uint32
	PVStatus     uint32
	PVAllocatable uint32
	PVSize       uint32
	LVCur        uint32
	PESize       uint32
	PETotal      uint32
	PEAllocated  uint32

	PEStart uint32 // only meaningful/stored for Version == 2
}

// pvDiskV1Size / pvDiskV2Size are the encoded record sizes: 2-byte magic
// + 2-byte version + five DataAreas (8 bytes each) + 3 name fields (128
// bytes each) + 9 u32 fields, plus a trailing pe_start u32 for version 2.
const (
	pvHeaderFixedSize = 2 + 2 + 5*8 + 3*NameLen + 9*4
	pvDiskV1Size      = pvHeaderFixedSize
	pvDiskV2Size      = pvHeaderFixedSize + 4
)

func putFixedString(b []byte, s string) {
	n := copy(b, s)
	for i := n; i < len(b); i++ {
		b[i] = 0
	}
}

func getFixedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Encode serializes pv into a version 1 or 2 on-disk record, as selected
// by pv.Version.
func (pv *PVDisk) Encode() ([]byte, error) {
	size := pvDiskV1Size
	if pv.Version == 2 {
		size = pvDiskV2Size
	}
	b := make([]byte, size)
	b[0], b[1] = Magic[0], Magic[1]
	binary.LittleEndian.PutUint16(b[2:4], uint16(pv.Version))

	off := 4
	for _, da := range []DataArea{pv.PVOnDisk, pv.VGOnDisk, pv.PVUUIDListOnDisk, pv.LVOnDisk, pv.PEOnDisk} {
		da.encode(b[off : off+8])
		off += 8
	}

	putFixedString(b[off:off+NameLen], pv.PVUUID)
	off += NameLen
	putFixedString(b[off:off+NameLen], pv.VGName)
	off += NameLen
	putFixedString(b[off:off+NameLen], pv.SystemID)
	off += NameLen

	for _, v := range []uint32{pv.PVMajor, pv.PVNumber, pv.PVStatus, pv.PVAllocatable, pv.PVSize} {
		binary.LittleEndian.PutUint32(b[off:off+4], v)
		off += 4
	}
	binary.LittleEndian.PutUint32(b[off:off+4], pv.LVCur)
	off += 4
	binary.LittleEndian.PutUint32(b[off:off+4], pv.PESize)
	off += 4
	binary.LittleEndian.PutUint32(b[off:off+4], pv.PETotal)
	off += 4
	binary.LittleEndian.PutUint32(b[off:off+4], pv.PEAllocated)
	off += 4

	if pv.Version == 2 {
		binary.LittleEndian.PutUint32(b[off:off+4], pv.PEStart)
		off += 4
	}
	return b, nil
}

// DecodePVDisk parses a PV header. A version 1 record derives PEStart
// from the end of the PE map; a version 2 record keeps its explicit
// PEStart and its Version of 2, and is not rewritten into version 1 form.
func DecodePVDisk(b []byte) (*PVDisk, error) {
	if len(b) < pvDiskV1Size {
		return nil, lvmerrors.Formatf("format1: pv header too short (%d bytes)", len(b))
	}
	if b[0] != Magic[0] || b[1] != Magic[1] {
		return nil, lvmerrors.Formatf("format1: bad pv magic %q", b[0:2])
	}
	pv := &PVDisk{Version: int(binary.LittleEndian.Uint16(b[2:4]))}
	if pv.Version != 1 && pv.Version != 2 {
		return nil, lvmerrors.Formatf("format1: unsupported pv version %d", pv.Version)
	}
	if pv.Version == 2 && len(b) < pvDiskV2Size {
		return nil, lvmerrors.Formatf("format1: v2 pv header too short (%d bytes)", len(b))
	}

	off := 4
	areas := make([]DataArea, 5)
	for i := range areas {
		areas[i] = decodeDataArea(b[off : off+8])
		off += 8
	}
	pv.PVOnDisk, pv.VGOnDisk, pv.PVUUIDListOnDisk, pv.LVOnDisk, pv.PEOnDisk = areas[0], areas[1], areas[2], areas[3], areas[4]

	pv.PVUUID = getFixedString(b[off : off+NameLen])
	off += NameLen
	pv.VGName = getFixedString(b[off : off+NameLen])
	off += NameLen
	pv.SystemID = getFixedString(b[off : off+NameLen])
	off += NameLen

	fields := make([]*uint32, 0, 9)
	fields = append(fields, &pv.PVMajor, &pv.PVNumber, &pv.PVStatus, &pv.PVAllocatable, &pv.PVSize, &pv.LVCur, &pv.PESize, &pv.PETotal, &pv.PEAllocated)
	for _, f := range fields {
		*f = binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
	}

	if pv.Version == 2 {
		pv.PEStart = binary.LittleEndian.Uint32(b[off : off+4])
	} else {
		// version 1: pe_start is derived from the end of the PE map.
		pv.PEStart = pv.PEOnDisk.Base + pv.PEOnDisk.Size
	}
	return pv, nil
}

// ToPV converts a decoded PVDisk into the in-core metadata.PV, matching
// import_pv's field-by-field copy.
func (pv *PVDisk) ToPV() (*metadata.PV, error) {
	sectorsPerExtent := pv.PESize
	core, err := metadata.NewPV(pv.PVUUID, uint64(pv.PVSize), uint64(sectorsPerExtent), uint64(pv.PEStart), pv.PETotal)
	if err != nil {
		return nil, err
	}
	core.VGName = pv.VGName
	core.PEAllocCount = pv.PEAllocated
	if pv.PVAllocatable != 0 {
		core.Status |= metadata.PVAllocatable
	}
	return core, nil
}

// FromPV renders the in-core PV back to its version-1 on-disk shape
// (export_pv's inverse).
func FromPV(pv *metadata.PV, pvNumber uint32) *PVDisk {
	d := &PVDisk{
		Version:      1,
		PVUUID:       pv.ID,
		VGName:       pv.VGName,
		PVNumber:     pvNumber,
		PVSize:       uint32(pv.Size),
		PESize:       uint32(pv.PESize),
		PETotal:      pv.PECount,
		PEAllocated:  pv.PEAllocCount,
	}
	if pv.Status&metadata.PVAllocatable != 0 {
		d.PVAllocatable = 1
	}
	return d
}

// VGDisk is the on-disk vg_disk struct.
type VGDisk struct {
	VGUUID string // first IDLen bytes of what C calls vg_uuid

	VGNumber uint32
	VGAccess uint32
	VGStatus uint32
	LVMax    uint32
	LVCur    uint32
	LVOpen   uint32
	PVMax    uint32
	PVCur    uint32
	PVAct    uint32
	VGDA     uint32
	PESize   uint32
	PETotal  uint32
	PEAllocated uint32
	PVGTotal uint32
}

const vgDiskSize = NameLen + 13*4

func (vg *VGDisk) Encode() []byte {
	b := make([]byte, vgDiskSize)
	putFixedString(b[0:IDLen], vg.VGUUID)
	// bytes [IDLen:NameLen) are vg_name_dummy, left zero.
	off := NameLen
	for _, v := range []uint32{vg.VGNumber, vg.VGAccess, vg.VGStatus, vg.LVMax, vg.LVCur, vg.LVOpen, vg.PVMax, vg.PVCur, vg.PVAct, vg.VGDA, vg.PESize, vg.PETotal, vg.PEAllocated} {
		binary.LittleEndian.PutUint32(b[off:off+4], v)
		off += 4
	}
	return b
}

func DecodeVGDisk(b []byte) (*VGDisk, error) {
	if len(b) < vgDiskSize {
		return nil, lvmerrors.Formatf("format1: vg header too short")
	}
	vg := &VGDisk{VGUUID: getFixedString(b[0:IDLen])}
	off := NameLen
	fields := []*uint32{&vg.VGNumber, &vg.VGAccess, &vg.VGStatus, &vg.LVMax, &vg.LVCur, &vg.LVOpen, &vg.PVMax, &vg.PVCur, &vg.PVAct, &vg.VGDA, &vg.PESize, &vg.PETotal, &vg.PEAllocated}
	for _, f := range fields {
		*f = binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
	}
	return vg, nil
}

// LVDisk is the on-disk lv_disk struct.
type LVDisk struct {
	LVName, VGName string
	LVAccess       uint32
	LVStatus       uint32
	LVNumber       uint32
	LVSize         uint32
	LVAllocatedLE  uint32
	LVStripes      uint32
	LVStripesize   uint32
	LVReadAhead    uint32
}

const lvDiskSize = 2*NameLen + 17*4 + 2*2

func (lv *LVDisk) Encode() []byte {
	b := make([]byte, lvDiskSize)
	putFixedString(b[0:NameLen], lv.LVName)
	putFixedString(b[NameLen:2*NameLen], lv.VGName)
	off := 2 * NameLen
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(b[off:off+4], v)
		off += 4
	}
	put(lv.LVAccess)
	put(lv.LVStatus)
	put(0) // lv_open
	put(0) // lv_dev
	put(lv.LVNumber)
	put(0) // lv_mirror_copies
	put(0) // lv_recovery
	put(0) // lv_schedule
	put(lv.LVSize)
	put(0) // lv_snapshot_minor
	off += 2 + 2 // lv_chunk_size, dummy
	put(lv.LVAllocatedLE)
	put(lv.LVStripes)
	put(lv.LVStripesize)
	put(0) // lv_badblock
	put(0) // lv_allocation
	put(0) // lv_io_timeout
	put(lv.LVReadAhead)
	return b
}

func DecodeLVDisk(b []byte) (*LVDisk, error) {
	if len(b) < lvDiskSize {
		return nil, lvmerrors.Formatf("format1: lv header too short")
	}
	lv := &LVDisk{LVName: getFixedString(b[0:NameLen]), VGName: getFixedString(b[NameLen : 2*NameLen])}
	off := 2 * NameLen
	get := func() uint32 {
		v := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		return v
	}
	lv.LVAccess = get()
	lv.LVStatus = get()
	get() // lv_open
	get() // lv_dev
	lv.LVNumber = get()
	get() // lv_mirror_copies
	get() // lv_recovery
	get() // lv_schedule
	lv.LVSize = get()
	get() // lv_snapshot_minor
	off += 4 // lv_chunk_size, dummy
	lv.LVAllocatedLE = get()
	lv.LVStripes = get()
	lv.LVStripesize = get()
	get() // lv_badblock
	get() // lv_allocation
	get() // lv_io_timeout
	lv.LVReadAhead = get()
	return lv, nil
}

// PEDisk is one pe_disk record of the PE->LV/LE map: (lv_num, le_num).
type PEDisk struct {
	LVNum uint16
	LENum uint16
}

func EncodePEMap(pes []PEDisk) []byte {
	b := make([]byte, len(pes)*4)
	for i, pe := range pes {
		binary.LittleEndian.PutUint16(b[i*4:i*4+2], pe.LVNum)
		binary.LittleEndian.PutUint16(b[i*4+2:i*4+4], pe.LENum)
	}
	return b
}

func DecodePEMap(b []byte) ([]PEDisk, error) {
	if len(b)%4 != 0 {
		return nil, lvmerrors.Formatf("format1: pe map length %d not a multiple of 4", len(b))
	}
	pes := make([]PEDisk, len(b)/4)
	for i := range pes {
		pes[i] = PEDisk{
			LVNum: binary.LittleEndian.Uint16(b[i*4 : i*4+2]),
			LENum: binary.LittleEndian.Uint16(b[i*4+2 : i*4+4]),
		}
	}
	return pes, nil
}

package metadata

// Metadata area flags, mirroring MDA_IGNORED / MDA_INCONSISTENT.
const (
	MDAIgnored uint32 = 1 << iota
	MDAInconsistent
)

// MetadataAreaOps is the per-format vtable attached to every
// metadata_area, matching spec.md §4.I's second vtable list exactly.
// format1/formatpool/formattext each supply one implementation; the MDA
// itself just carries a reference plus the small amount of location
// state (Locn) that is opaque outside the owning format package.
type MetadataAreaOps interface {
	VGRead(fid *FormatInstance, vgName string, mda *MDA, singleDevice bool) (*VG, error)
	VGReadPrecommit(fid *FormatInstance, vgName string, mda *MDA) (*VG, error)
	VGWrite(fid *FormatInstance, vg *VG, mda *MDA) error
	VGPrecommit(fid *FormatInstance, vg *VG, mda *MDA) error
	VGCommit(fid *FormatInstance, vg *VG, mda *MDA) error
	VGRevert(fid *FormatInstance, vg *VG, mda *MDA) error
	VGRemove(fid *FormatInstance, vg *VG, mda *MDA) error

	MDAFreeSectors(mda *MDA) uint64
	MDATotalSectors(mda *MDA) uint64
	MDAInVG(fid *FormatInstance, vg *VG, mda *MDA) bool
	MDALocnsMatch(a, b *MDA) bool

	MDAMetadataLocnCopy(locn any) any
	MDAMetadataLocnName(locn any) string
	MDAMetadataLocnOffset(locn any) uint64
	MDAGetDevice(mda *MDA) string
}

// MDA is a single on-disk location holding one copy of a VG's metadata.
type MDA struct {
	Ops    MetadataAreaOps
	Locn   any // format-private location descriptor (ring-buffer offset, subpool index, ...)
	Status uint32
}

func (m *MDA) Ignored() bool { return m.Status&MDAIgnored != 0 }

func (m *MDA) SetIgnored(ignored bool) {
	if ignored {
		m.Status |= MDAIgnored
	} else {
		m.Status &^= MDAIgnored
	}
}

func (m *MDA) Inconsistent() bool { return m.Status&MDAInconsistent != 0 }

func (m *MDA) SetInconsistent(v bool) {
	if v {
		m.Status |= MDAInconsistent
	} else {
		m.Status &^= MDAInconsistent
	}
}

// Copy returns a shallow copy of m with a format-duplicated Locn,
// matching mda_copy's dm_pool_memdup of metadata_locn.
func (m *MDA) Copy() *MDA {
	cp := *m
	if m.Ops != nil {
		cp.Locn = m.Ops.MDAMetadataLocnCopy(m.Locn)
	}
	return &cp
}

// FormatInstanceKind distinguishes a format instance bound to a PV from
// one bound to a VG, matching FMT_INSTANCE_PV / FMT_INSTANCE_VG.
type FormatInstanceKind int

const (
	FormatInstancePV FormatInstanceKind = iota
	FormatInstanceVG
)

// FormatInstance is the reference-counted handle bundling a format's
// vtable with the set of metadata areas currently in use for one PV or
// VG, matching spec.md §4.I "Instance lifetime". Attaching/detaching a
// fid must go through PV.SetFID/VG.SetFID so the refcount stays honest.
type FormatInstance struct {
	Kind    FormatInstanceKind
	Format  FormatHandler
	InUse   []*MDA
	Ignored []*MDA

	refs int
}

func NewFormatInstance(kind FormatInstanceKind, fmt FormatHandler) *FormatInstance {
	return &FormatInstance{Kind: kind, Format: fmt}
}

func (fid *FormatInstance) addRef()   { fid.refs++ }
func (fid *FormatInstance) release()  { fid.refs-- }
func (fid *FormatInstance) refCount() int { return fid.refs }

// AddMDA appends an MDA to the in-use list, matching fid_add_mda for the
// default (no per-format keyed index) case.
func (fid *FormatInstance) AddMDA(mda *MDA) {
	if mda.Ignored() {
		fid.Ignored = append(fid.Ignored, mda)
		return
	}
	fid.InUse = append(fid.InUse, mda)
}

// RemoveMDA drops mda from whichever list currently holds it.
func (fid *FormatInstance) RemoveMDA(mda *MDA) {
	fid.InUse = removeMDA(fid.InUse, mda)
	fid.Ignored = removeMDA(fid.Ignored, mda)
}

func removeMDA(list []*MDA, target *MDA) []*MDA {
	for i, m := range list {
		if m == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// MDAsEmptyOrIgnored reports whether every MDA in the in-use list is
// ignored (or the list is empty), matching mdas_empty_or_ignored.
func MDAsEmptyOrIgnored(mdas []*MDA) bool {
	for _, m := range mdas {
		if !m.Ignored() {
			return false
		}
	}
	return true
}

// FormatHandler is the per-format vtable of spec.md §4.I's first list.
// format1, formatpool and formattext each implement it once.
type FormatHandler interface {
	Name() string
	Scan(vgName string) error
	PVRead(pvName string, scanLabelOnly bool) (*PV, error)
	PVInitialise(pv *PV, labelSector int64) error
	PVSetup(pv *PV, vg *VG) error
	PVAddMetadataArea(pv *PV, peStartLocked bool, index int, size uint64, ignored bool) error
	PVRemoveMetadataArea(pv *PV, index int) error
	PVResize(pv *PV, vg *VG, size uint64) error
	PVWrite(pv *PV) error
	LVSetup(fid *FormatInstance, lv *LV) error
	VGSetup(fid *FormatInstance, vg *VG) error
	SegtypeSupported(fid *FormatInstance, segtypeName string) bool
	CreateInstance(fic FormatInstanceCtx) (*FormatInstance, error)
	DestroyInstance(fid *FormatInstance)
}

// FormatInstanceCtx mirrors format_instance_ctx: either a PV id or a
// (vgName, vgID) pair depending on Kind.
type FormatInstanceCtx struct {
	Kind  FormatInstanceKind
	PVID  string
	VGName string
	VGID   string
}

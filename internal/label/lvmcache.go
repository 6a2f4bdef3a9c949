package label

import (
	"github.com/lvm2go/lvm2core/internal/devcache"
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
)

// Info flags, mirroring the original cache_info's INVALID bit.
const (
	InfoInvalid uint32 = 1 << iota
)

// Info is a cache_info: one device's labeller result plus the VG it
// currently believes it belongs to.
type Info struct {
	Dev        *devcache.Device
	PVID       string
	VGName     string
	VGID       string
	VolumeType string
	Version    [3]uint32
	Flags      uint32

	vginfo *VGInfo
}

func (i *Info) Invalid() bool { return i.Flags&InfoInvalid != 0 }
func (i *Info) SetInvalid(v bool) {
	if v {
		i.Flags |= InfoInvalid
	} else {
		i.Flags &^= InfoInvalid
	}
}

// VGInfo is a cache_vginfo: the head of the list of Infos currently
// believed to belong to one VG (by vgid and, redundantly but usefully
// for lookup, by vgname).
type VGInfo struct {
	VGName string
	VGID   string
	infos  []*Info
}

func (v *VGInfo) Infos() []*Info { return append([]*Info(nil), v.infos...) }

// orphanVGName is the empty-string bucket every unowned PV lands in.
const orphanVGName = ""

// Cache is the process-wide lvmcache of spec.md §4.H: three indices
// (pvid->Info, vgid->VGInfo, vgname->VGInfo) kept coherent as devices are
// scanned and as PVs move between VGs.
type Cache struct {
	byPVID   map[string]*Info
	byVGID   map[string]*VGInfo
	byVGName map[string]*VGInfo
	// vgNameOrder preserves insertion order with the orphan bucket last,
	// matching spec.md's "the empty name is kept last in insertion
	// order".
	vgNameOrder []string

	labellers []Labeller

	scanning bool // cache_label_scan re-entrancy guard
}

// New creates an empty lvmcache.
func New(labellers ...Labeller) *Cache {
	return &Cache{
		byPVID:    map[string]*Info{},
		byVGID:    map[string]*VGInfo{},
		byVGName:  map[string]*VGInfo{},
		labellers: labellers,
	}
}

// vgInfo returns (creating if needed) the VGInfo for (vgName, vgID),
// inserting the name into vgNameOrder ahead of the orphan bucket.
func (c *Cache) vgInfo(vgName, vgID string) *VGInfo {
	if vgID != "" {
		if vi, ok := c.byVGID[vgID]; ok {
			return vi
		}
	} else if vi, ok := c.byVGName[vgName]; ok {
		return vi
	}

	vi := &VGInfo{VGName: vgName, VGID: vgID}
	if vgID != "" {
		c.byVGID[vgID] = vi
	}
	if _, exists := c.byVGName[vgName]; !exists {
		c.insertVGNameOrder(vgName)
	}
	c.byVGName[vgName] = vi
	return vi
}

func (c *Cache) insertVGNameOrder(name string) {
	if name == orphanVGName {
		c.vgNameOrder = append(c.vgNameOrder, name)
		return
	}
	// insert before the orphan bucket if present, else append.
	for i, n := range c.vgNameOrder {
		if n == orphanVGName {
			c.vgNameOrder = append(c.vgNameOrder[:i], append([]string{name}, c.vgNameOrder[i:]...)...)
			return
		}
	}
	c.vgNameOrder = append(c.vgNameOrder, name)
}

func (c *Cache) unlinkFromVGInfo(info *Info) {
	vi := info.vginfo
	if vi == nil {
		return
	}
	for i, in := range vi.infos {
		if in == info {
			vi.infos = append(vi.infos[:i], vi.infos[i+1:]...)
			break
		}
	}
	info.vginfo = nil
	if len(vi.infos) == 0 {
		c.tearDownVGInfo(vi)
	}
}

func (c *Cache) tearDownVGInfo(vi *VGInfo) {
	if vi.VGID != "" {
		delete(c.byVGID, vi.VGID)
	}
	if cur, ok := c.byVGName[vi.VGName]; ok && cur == vi {
		delete(c.byVGName, vi.VGName)
		for i, n := range c.vgNameOrder {
			if n == vi.VGName {
				c.vgNameOrder = append(c.vgNameOrder[:i], c.vgNameOrder[i+1:]...)
				break
			}
		}
	}
}

// linkToVGInfo attaches info to the vginfo for (vgName, vgID), unlinking
// it from any previous one first — the "when a PV's VG changes" case of
// spec.md §4.H.
func (c *Cache) linkToVGInfo(info *Info, vgName, vgID string) {
	if info.vginfo != nil && info.vginfo.VGName == vgName && info.vginfo.VGID == vgID {
		return
	}
	c.unlinkFromVGInfo(info)
	vi := c.vgInfo(vgName, vgID)
	vi.infos = append(vi.infos, info)
	info.vginfo = vi
	info.VGName = vgName
	info.VGID = vgID
}

// PVIDLookup returns the Info for a given pvid, or nil.
func (c *Cache) PVIDLookup(pvid string) *Info { return c.byPVID[pvid] }

// VGIDLookup returns the VGInfo for a given vgid, or nil.
func (c *Cache) VGIDLookup(vgid string) *VGInfo { return c.byVGID[vgid] }

// VGNameLookup returns the VGInfo for a given vgname, or nil.
func (c *Cache) VGNameLookup(name string) *VGInfo { return c.byVGName[name] }

// VGNames returns every known VG name in insertion order, orphan last.
func (c *Cache) VGNames() []string { return append([]string(nil), c.vgNameOrder...) }

// Update inserts or refreshes the Info for a scanned device, relinking
// it to its (possibly new) VGInfo, matching lvmcache_add's merge of a
// freshly read label into the existing indices.
func (c *Cache) Update(dev *devcache.Device, lbl *Label, vgName, vgID string) *Info {
	info, ok := c.byPVID[lbl.PVID]
	if !ok {
		info = &Info{PVID: lbl.PVID}
		c.byPVID[lbl.PVID] = info
	}
	info.Dev = dev
	info.VolumeType = lbl.VolumeType
	info.Version = lbl.Version
	info.SetInvalid(false)
	c.linkToVGInfo(info, vgName, vgID)
	return info
}

// Invalidate marks info as needing a targeted re-read on the next scan,
// matching the INVALID flag spec.md §4.H describes.
func (c *Cache) Invalidate(info *Info) { info.SetInvalid(true) }

// Drop removes info from every index entirely (a PV that vanished from
// the device cache).
func (c *Cache) Drop(info *Info) {
	c.unlinkFromVGInfo(info)
	delete(c.byPVID, info.PVID)
}

// Scan implements label_scan(cmd, full): for every device returned by
// iterator, reads its window and asks each registered labeller in turn
// whether it can handle the content, routing the first match's result
// into the cache indices. Re-entrancy is guarded by a single in-progress
// flag per spec.md §4.H/§5: a nested call while a scan is underway is a
// silent no-op, matching cache_label_scan's static guard.
func (c *Cache) Scan(iter DeviceIterator, readWindow func(dev *devcache.Device) ([]byte, error), resolveVG func(lbl *Label, window []byte) (vgName, vgID string, err error)) error {
	if c.scanning {
		return nil
	}
	c.scanning = true
	defer func() { c.scanning = false }()

	for {
		dev, err := iter.Next()
		if err != nil {
			return err
		}
		if dev == nil {
			return nil
		}

		window, err := readWindow(dev)
		if err != nil {
			continue // unreadable device: skip it, matching the original's per-device tolerance
		}

		var lbl *Label
		for _, l := range c.labellers {
			if !l.CanHandle(dev, window) {
				continue
			}
			lbl, err = l.Read(dev, window)
			if err != nil {
				return lvmerrors.Formatf("label: labeller %s failed on %s: %w", l.Name(), dev.Name(), err)
			}
			break
		}
		if lbl == nil {
			continue
		}

		vgName, vgID := "", ""
		if resolveVG != nil {
			vgName, vgID, err = resolveVG(lbl, window)
			if err != nil {
				return err
			}
		}
		c.Update(dev, lbl, vgName, vgID)
	}
}

// DeviceIterator is the narrow surface of devcache.Iterator that Scan
// needs, declared here so this package doesn't import devcache's
// concrete iterator type directly.
type DeviceIterator interface {
	Next() (*devcache.Device, error)
}

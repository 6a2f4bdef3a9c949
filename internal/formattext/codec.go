package formattext

import (
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
)

// EncodeVG renders vg as a config-tree document, matching
// export_vg's top-level "<vgname> { ... }" shape plus the pv0/lv0
// sub-sections _export_pvs/_export_lvs/_export_segment build.
func EncodeVG(vg *metadata.VG) *Section {
	root := &Section{}
	top := root.AddSection(vg.Name)
	top.Set("id", Str(vg.ID))
	top.Set("seqno", Int(int64(vg.Seqno)))
	top.Set("status", statusList(vg.Status, vgStatusNames))
	top.Set("extent_size", Int(int64(vg.ExtentSize)))
	top.Set("max_lv", Int(int64(vg.MaxLV)))
	top.Set("max_pv", Int(int64(vg.MaxPV)))
	top.Set("allocation_policy", Str(vg.Alloc.String()))

	pvIndex := map[*metadata.PV]string{}
	pvsSec := top.AddSection("physical_volumes")
	for i, pv := range vg.PVs {
		name := pvLabel(i)
		pvIndex[pv] = name
		pvSec := pvsSec.AddSection(name)
		pvSec.Set("id", Str(pv.ID))
		pvSec.Set("device", Str(pv.DevName))
		pvSec.Set("status", statusList(pv.Status, pvStatusNames))
		pvSec.Set("pe_start", Int(int64(pv.PEStart)))
		pvSec.Set("pe_count", Int(int64(pv.PECount)))
	}

	lvsSec := top.AddSection("logical_volumes")
	for _, lv := range vg.LVs {
		lvSec := lvsSec.AddSection(lv.Name)
		lvSec.Set("id", Str(lv.LVID))
		lvSec.Set("status", statusList(lv.Status, lvStatusNames))
		lvSec.Set("segment_count", Int(int64(len(lv.Segments))))
		for i, seg := range lv.Segments {
			segSec := lvSec.AddSection(segLabel(i))
			segSec.Set("start_extent", Int(int64(seg.LE)))
			segSec.Set("extent_count", Int(int64(seg.Len)))
			segSec.Set("type", Str(seg.Type.Name()))
			segSec.Set("stripe_count", Int(int64(len(seg.Areas))))
			if seg.StripeSize != 0 {
				segSec.Set("stripe_size", Int(int64(seg.StripeSize)))
			}
			var stripes []Value
			for _, a := range seg.Areas {
				if a.Kind == metadata.AreaPV {
					stripes = append(stripes, Str(pvIndex[a.PV]), Int(int64(a.PE)))
				}
			}
			segSec.Set("stripes", List(stripes...))
		}
	}

	return root
}

// DecodeVG reconstructs a *metadata.VG from a parsed config tree,
// matching import-export.c's _vg_read -> _read_pv/_read_lv/_read_segment
// chain. resolveSegType looks up a segtype by its on-disk "type" string
// (component K's registry), kept as an injected function so this
// package never imports internal/segtype directly.
func DecodeVG(root *Section, resolveSegType func(name string) (metadata.SegmentType, error)) (*metadata.VG, error) {
	if len(root.Entries) != 1 || root.Entries[0].Section == nil {
		return nil, lvmerrors.Formatf("formattext: expected exactly one top-level vg section")
	}
	vgName := root.Entries[0].Key
	top := root.Entries[0].Section

	id, _ := top.Get("id")
	vg := metadata.NewVG(id.Str, vgName)

	if v, ok := top.Get("seqno"); ok {
		vg.Seqno = uint32(v.Int)
	}
	if v, ok := top.Get("status"); ok {
		vg.Status = parseStatusList(v, vgStatusNames)
	}
	if v, ok := top.Get("max_lv"); ok {
		vg.MaxLV = int(v.Int)
	}
	if v, ok := top.Get("max_pv"); ok {
		vg.MaxPV = int(v.Int)
	}
	if v, ok := top.Get("allocation_policy"); ok {
		vg.Alloc = parseAllocPolicy(v.Str)
	}

	pvByLabel := map[string]*metadata.PV{}
	extentSize := uint64(0)
	if v, ok := top.Get("extent_size"); ok {
		extentSize = uint64(v.Int)
	}

	if pvsSec := top.GetSection("physical_volumes"); pvsSec != nil {
		for _, e := range pvsSec.Entries {
			if e.Section == nil {
				continue
			}
			pvSec := e.Section
			pvID, _ := pvSec.Get("id")
			peStart, _ := pvSec.Get("pe_start")
			peCount, _ := pvSec.Get("pe_count")
			dev, _ := pvSec.Get("device")

			size := uint64(peStart.Int) + uint64(peCount.Int)*extentSize
			pv, err := metadata.NewPV(pvID.Str, size, extentSize, uint64(peStart.Int), uint32(peCount.Int))
			if err != nil {
				return nil, err
			}
			pv.DevName = dev.Str
			if statusV, ok := pvSec.Get("status"); ok {
				pv.Status = parseStatusList(statusV, pvStatusNames)
			}
			if err := vg.AddPV(pv); err != nil {
				return nil, err
			}
			pvByLabel[e.Key] = pv
		}
	}

	if lvsSec := top.GetSection("logical_volumes"); lvsSec != nil {
		for _, e := range lvsSec.Entries {
			if e.Section == nil {
				continue
			}
			lvSec := e.Section
			lvID, _ := lvSec.Get("id")
			lv := &metadata.LV{Name: e.Key, LVID: lvID.Str, VG: vg}
			if statusV, ok := lvSec.Get("status"); ok {
				lv.Status = parseStatusList(statusV, lvStatusNames)
			}

			for _, se := range lvSec.Entries {
				if se.Section == nil || se.Key == "" {
					continue
				}
				segSec := se.Section
				startV, hasStart := segSec.Get("start_extent")
				if !hasStart {
					continue // not a segment sub-section
				}
				lenV, _ := segSec.Get("extent_count")
				typeV, _ := segSec.Get("type")
				stripeSizeV, _ := segSec.Get("stripe_size")

				segType, err := resolveSegType(typeV.Str)
				if err != nil {
					return nil, err
				}

				seg := &metadata.Segment{
					LV: lv, LE: uint32(startV.Int), Len: uint32(lenV.Int),
					Type: segType, StripeSize: uint32(stripeSizeV.Int),
				}

				if stripesV, ok := segSec.Get("stripes"); ok {
					for i := 0; i+1 < len(stripesV.List); i += 2 {
						pvLabelV := stripesV.List[i]
						peV := stripesV.List[i+1]
						pv, ok := pvByLabel[pvLabelV.Str]
						if !ok {
							return nil, lvmerrors.Formatf("formattext: lv %s segment references unknown pv %q", lv.Name, pvLabelV.Str)
						}
						seg.Areas = append(seg.Areas, metadata.Area{Kind: metadata.AreaPV, PV: pv, PE: uint32(peV.Int), Len: seg.Len})
					}
				}

				lv.Segments = append(lv.Segments, seg)
				lv.LECount += seg.Len
			}

			vg.LVs = append(vg.LVs, lv)
		}
	}

	return vg, nil
}

func pvLabel(i int) string  { return "pv" + itoa(i) }
func segLabel(i int) string { return "segment" + itoa(i) }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

var vgStatusNames = []struct {
	bit  uint64
	name string
}{
	{metadata.VGRead, "READ"},
	{metadata.VGWrite, "WRITE"},
	{metadata.VGResizeable, "RESIZEABLE"},
	{metadata.VGClustered, "CLUSTERED"},
	{metadata.VGExported, "EXPORTED"},
	{metadata.VGPartial, "PARTIAL"},
	{metadata.VGShared, "SHARED"},
	{metadata.VGPrecommitted, "PRECOMMITTED"},
}

var pvStatusNames = []struct {
	bit  uint64
	name string
}{
	{metadata.PVAllocatable, "ALLOCATABLE"},
	{metadata.PVExported, "EXPORTED"},
	{metadata.PVMissing, "MISSING"},
}

var lvStatusNames = []struct {
	bit  uint64
	name string
}{
	{metadata.LVMirrored, "MIRRORED"},
	{metadata.LVRaid, "RAID"},
	{metadata.LVThinPool, "THIN_POOL"},
	{metadata.LVSnapshot, "SNAPSHOT"},
	{metadata.LVPartial, "PARTIAL"},
}

func statusList(status uint64, names []struct {
	bit  uint64
	name string
}) Value {
	var vs []Value
	for _, n := range names {
		if status&n.bit != 0 {
			vs = append(vs, Str(n.name))
		}
	}
	return List(vs...)
}

func parseStatusList(v Value, names []struct {
	bit  uint64
	name string
}) uint64 {
	var status uint64
	for _, item := range v.List {
		for _, n := range names {
			if item.Str == n.name {
				status |= n.bit
			}
		}
	}
	return status
}

func parseAllocPolicy(s string) metadata.AllocPolicy {
	switch s {
	case "contiguous":
		return metadata.AllocContiguous
	case "anywhere":
		return metadata.AllocAnywhere
	case "inherit":
		return metadata.AllocInherit
	default:
		return metadata.AllocNormal
	}
}

package alloc

import (
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
	"github.com/lvm2go/lvm2core/internal/metadata"
)

// Request describes one call into the allocator: how many parallel legs
// (stripes or mirror images) are needed, how many extents each leg
// needs, which policy governs leg placement, and the candidate PVs
// (already reduced to whatever the caller's pe_ranges/tag filtering
// produced).
type Request struct {
	Legs       int
	ExtentsPerLeg uint32
	Policy     metadata.AllocPolicy
	Candidates []*PVMap

	// PriorLeg, when non-nil, is the segment immediately preceding this
	// allocation on the LV being extended — used by ALLOC_CONTIGUOUS to
	// find "immediately after the previous segment on the same pv".
	PriorLeg []metadata.Area
}

// Result is the set of extent ranges chosen for each leg, one Area per
// leg, in leg order; each covers exactly ExtentsPerLeg extents from
// Start.
type Result struct {
	Legs []*Area
}

// Select runs the policy-driven leg assignment of spec.md §4.L step 3:
// walk every leg in priority order, picking one pv_area per leg that
// satisfies the policy against whatever has already been chosen for
// earlier legs in this same request ("parallel areas"), then consuming
// exactly ExtentsPerLeg extents from it. It returns a partial, ungrafted
// Result (nothing is written back into vg) on success, or an error
// without having mutated any candidate's bitset on failure — spec.md's
// "failure modes are reported without partial commit" guarantee, since
// ConsumePVArea is only called once every leg has already been picked.
func Select(req Request) (*Result, error) {
	chosen := make([]*Area, 0, req.Legs)
	usedPVs := map[*metadata.PV]bool{}
	// reserved tracks extents already earmarked (but not yet physically
	// consumed) against an area picked more than once within this same
	// request — without it, two legs could both be handed the same
	// oversized area before either actually shrinks it.
	reserved := map[*Area]uint32{}

	for leg := 0; leg < req.Legs; leg++ {
		area, err := selectOne(req, usedPVs, reserved)
		if err != nil {
			return nil, err
		}
		chosen = append(chosen, &Area{Map: area.Map, Start: area.Start + reserved[area], Count: req.ExtentsPerLeg})
		usedPVs[area.Map.PV] = true
		reserved[area] += req.ExtentsPerLeg
	}

	for area, total := range reserved {
		ConsumePVArea(area, total)
	}

	return &Result{Legs: chosen}, nil
}

func selectOne(req Request, usedPVs map[*metadata.PV]bool, reserved map[*Area]uint32) (*Area, error) {
	switch req.Policy {
	case metadata.AllocContiguous:
		return selectContiguous(req, reserved)
	case metadata.AllocAnywhere:
		return selectAnywhere(req, nil, reserved)
	case metadata.AllocInherit:
		return nil, lvmerrors.InvalidArgumentf("alloc: ALLOC_INHERIT is not a valid policy at allocation time")
	default: // AllocNormal
		return selectAnywhere(req, usedPVs, reserved)
	}
}

// available returns how many extents of a are still free for this
// request, net of any already-reserved-but-not-yet-consumed amount from
// an earlier leg that also picked a.
func available(a *Area, reserved map[*Area]uint32) uint32 {
	if a.Count < reserved[a] {
		return 0
	}
	return a.Count - reserved[a]
}

// selectContiguous requires the chosen area to start exactly where one
// of req.PriorLeg's PV-backed areas ended, on the same pv, matching
// spec.md §4.L's contiguous rule.
func selectContiguous(req Request, reserved map[*Area]uint32) (*Area, error) {
	for _, prior := range req.PriorLeg {
		if prior.Kind != metadata.AreaPV {
			continue
		}
		for _, pvm := range req.Candidates {
			if pvm.PV != prior.PV {
				continue
			}
			want := prior.PE + prior.Len
			for _, a := range pvm.Areas {
				if a.Start == want && available(a, reserved) >= req.ExtentsPerLeg {
					return a, nil
				}
			}
		}
	}
	return nil, outOfSpace("no contiguous extent available after the previous segment")
}

// selectAnywhere picks the largest-available area across every
// candidate, skipping PVs already used by an earlier leg of this same
// request when excludeUsed is non-nil (the ALLOC_NORMAL "don't share a
// pv with a parallel area" rule); a nil excludeUsed is ALLOC_ANYWHERE.
func selectAnywhere(req Request, excludeUsed map[*metadata.PV]bool, reserved map[*Area]uint32) (*Area, error) {
	var best *Area
	var bestAvail uint32
	for _, pvm := range req.Candidates {
		if excludeUsed != nil && excludeUsed[pvm.PV] {
			continue
		}
		for _, a := range pvm.Areas {
			avail := available(a, reserved)
			if avail < req.ExtentsPerLeg {
				continue
			}
			if best == nil || avail > bestAvail {
				best, bestAvail = a, avail
			}
			break // pvm.Areas is sorted descending; first fit is largest on this pv
		}
	}
	if best == nil {
		return nil, outOfSpace("insufficient free extents available under the requested policy")
	}
	return best, nil
}

func outOfSpace(msg string) error {
	return lvmerrors.OutOfSpacef("%s", msg)
}

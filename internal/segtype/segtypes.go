package segtype

import "github.com/lvm2go/lvm2core/internal/metadata"

// RAID parity counts, matching raid.c's raid_type table (used by
// RegisterDefaults to register the RAID types, and by the raid package's
// degraded-activation check as the number of images that may fail).
var RAIDParityDevs = map[string]int{
	"raid1":    0,
	"raid10":   0,
	"raid4":    1,
	"raid5":    1,
	"raid5_la": 1,
	"raid5_ls": 1,
	"raid5_ra": 1,
	"raid5_rs": 1,
	"raid6":    2,
	"raid6_nc": 2,
	"raid6_nr": 2,
	"raid6_zr": 2,
}

// RegisterDefaults registers every segment type spec.md §4.K names,
// matching the combined effect of init_striped_segtype/init_zero_segtype/
// init_error_segtype (lib/metadata/segtypes.h) plus
// init_raid_segtypes/init_thin_segtypes/init_cache_segtypes/
// init_replicator_segtype from their respective lib/ subdirectories.
func RegisterDefaults(r *Registry) error {
	plain := []struct {
		name  string
		flags uint32
	}{
		{"striped", metadata.SegAreasStriped | metadata.SegCanSplit | metadata.SegFormat1Support},
		{"mirror", metadata.SegAreasMirrored | metadata.SegCanSplit | metadata.SegFormat1Support | metadata.SegMonitored},
		{"snapshot", metadata.SegSnapshot},
		{"zero", metadata.SegVirtual | metadata.SegCannotBeZeroed},
		{"error", 0},
		{"thin-pool", metadata.SegThinPool},
		{"thin", metadata.SegThinVolume | metadata.SegVirtual},
		{"cache-pool", metadata.SegCachePool},
		{"cache", metadata.SegCache},
		{"replicator", metadata.SegReplicator},
		{"replicator-dev", metadata.SegReplicatorDev},
	}
	for _, p := range plain {
		if err := r.Register(&Type{TypeName: p.name, Flags: p.flags}); err != nil {
			return err
		}
	}

	for name := range RAIDParityDevs {
		flags := metadata.SegRaid | metadata.SegOnlyExclusive | metadata.SegMonitored
		if name == "raid1" || name == "raid10" {
			flags |= metadata.SegAreasMirrored
		}
		if err := r.Register(&Type{TypeName: name, Flags: flags}); err != nil {
			return err
		}
	}
	return nil
}

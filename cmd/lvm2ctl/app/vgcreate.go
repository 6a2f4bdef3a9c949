package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lvm2go/lvm2core/internal/devio"
	"github.com/lvm2go/lvm2core/internal/metadata"
	"github.com/lvm2go/lvm2core/internal/uuidcrc"
)

var vgcreateFlags struct {
	pvNames []string
	peSize  uint64
}

var vgcreateCmd = &cobra.Command{
	Use:   "vgcreate <vg-name>",
	Short: "Assemble one or more physical volumes into a new volume group",
	Long: `vgcreate builds its physical volumes from the raw device sizes rather
than requiring a prior pvcreate in the same process, since this
command's VG only lives for the duration of one invocation: there is
no durable metadata-area commit path wiring successive lvm2ctl
invocations together.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vgName := args[0]
		if len(vgcreateFlags.pvNames) == 0 {
			return fmt.Errorf("vgcreate: at least one --pv is required")
		}

		vg, _, err := buildVG(vgName, vgcreateFlags.pvNames, vgcreateFlags.peSize)
		if err != nil {
			return err
		}

		if err := vg.CheckInvariants(); err != nil {
			return fmt.Errorf("vgcreate: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "volume group %q created (id %s): %d PVs, %d extents of %d sectors, %d free\n",
			vg.Name, vg.ID, len(vg.PVs), vg.ExtentCount, vg.ExtentSize, vg.FreeCount)
		return nil
	},
}

func init() {
	vgcreateCmd.Flags().StringSliceVar(&vgcreateFlags.pvNames, "pv", nil, "device to add as a physical volume (repeatable)")
	vgcreateCmd.Flags().Uint64Var(&vgcreateFlags.peSize, "pe-size-sectors", 8192, "physical extent size in 512-byte sectors")
}

// buildVG assembles an in-memory VG plus its member PVs from raw device
// names, matching the PV-then-VG half of vgcreate's original two-step
// sequence (pvcreate each member, then vgcreate over the result)
// collapsed into one call since this harness has no durable state
// between invocations.
func buildVG(vgName string, pvNames []string, peSize uint64) (*metadata.VG, []*metadata.PV, error) {
	if peSize == 0 {
		peSize = 8192
	}

	vgID, err := uuidcrc.Create()
	if err != nil {
		return nil, nil, fmt.Errorf("generating vg uuid: %w", err)
	}
	vg := metadata.NewVG(vgID.String(), vgName)
	vg.ExtentSize = peSize

	var pvs []*metadata.PV
	for _, name := range pvNames {
		dev, err := tc.DevCache.Get(name, tc.Filter)
		if err != nil {
			return nil, nil, err
		}
		if dev == nil {
			return nil, nil, fmt.Errorf("%s: not a usable device", name)
		}
		size, err := devio.GetSize(dev)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}

		pvID, err := uuidcrc.Create()
		if err != nil {
			return nil, nil, fmt.Errorf("generating pv uuid: %w", err)
		}
		peStart := peSize
		peCount := uint32((size - peStart) / peSize)
		pv, err := metadata.NewPV(pvID.String(), size, peSize, peStart, peCount)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		pv.DevName = name

		if err := vg.AddPV(pv); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		pvs = append(pvs, pv)
	}

	vg.RefreshExtentAccounting()

	text := tc.Formats["text"]
	fid, err := text.CreateInstance(metadata.FormatInstanceCtx{Kind: metadata.FormatInstanceVG, VGName: vg.Name, VGID: vg.ID})
	if err != nil {
		return nil, nil, fmt.Errorf("vg %s: %w", vgName, err)
	}
	vg.SetFID(fid)
	if err := text.VGSetup(fid, vg); err != nil {
		return nil, nil, fmt.Errorf("vg %s: %w", vgName, err)
	}

	return vg, pvs, nil
}

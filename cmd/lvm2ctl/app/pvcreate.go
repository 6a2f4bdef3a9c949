package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lvm2go/lvm2core/internal/devio"
	"github.com/lvm2go/lvm2core/internal/metadata"
	"github.com/lvm2go/lvm2core/internal/uuidcrc"
)

var pvcreateFlags struct {
	peSizeSectors uint64
}

var pvcreateCmd = &cobra.Command{
	Use:   "pvcreate <device>",
	Short: "Initialise a physical volume label and metadata area on a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		devName := args[0]
		dev, err := tc.DevCache.Get(devName, tc.Filter)
		if err != nil {
			return err
		}
		if dev == nil {
			return fmt.Errorf("pvcreate: %s: not a usable device", devName)
		}

		size, err := devio.GetSize(dev)
		if err != nil {
			return fmt.Errorf("pvcreate: %s: %w", devName, err)
		}

		peSize := pvcreateFlags.peSizeSectors
		if peSize == 0 {
			peSize = 8192 // 4MiB in 512-byte sectors, matching the default physical extent size
		}
		peStart := peSize // reserve one extent's worth of room for the label + metadata area
		peCount := uint32((size - peStart) / peSize)

		id, err := uuidcrc.Create()
		if err != nil {
			return fmt.Errorf("pvcreate: generating uuid: %w", err)
		}

		pv, err := metadata.NewPV(id.String(), size, peSize, peStart, peCount)
		if err != nil {
			return fmt.Errorf("pvcreate: %w", err)
		}
		pv.DevName = devName

		text := tc.Formats["text"]
		if err := text.PVInitialise(pv, -1); err != nil {
			return fmt.Errorf("pvcreate: initialising label: %w", err)
		}

		fid, err := text.CreateInstance(metadata.FormatInstanceCtx{Kind: metadata.FormatInstancePV, PVID: pv.ID})
		if err != nil {
			return fmt.Errorf("pvcreate: %w", err)
		}
		pv.SetFID(fid)

		if err := text.PVAddMetadataArea(pv, false, 0, 0, false); err != nil {
			return fmt.Errorf("pvcreate: adding metadata area: %w", err)
		}
		if err := text.PVWrite(pv); err != nil {
			return fmt.Errorf("pvcreate: writing label: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "physical volume %q created on %s (%d extents of %d sectors)\n", pv.ID, devName, pv.PECount, pv.PESize)
		return nil
	},
}

func init() {
	pvcreateCmd.Flags().Uint64Var(&pvcreateFlags.peSizeSectors, "pe-size-sectors", 0, "physical extent size in 512-byte sectors (default 8192, i.e. 4MiB)")
}

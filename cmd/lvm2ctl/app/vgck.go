package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var vgckFlags struct {
	pvNames []string
	peSize  uint64
}

var vgckCmd = &cobra.Command{
	Use:   "vgck <vg-name>",
	Short: "Rebuild a volume group from its physical volumes and report invariant violations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vgName := args[0]
		if len(vgckFlags.pvNames) == 0 {
			return fmt.Errorf("vgck: at least one --pv is required")
		}

		vg, _, err := buildVG(vgName, vgckFlags.pvNames, vgckFlags.peSize)
		if err != nil {
			return err
		}

		if err := vg.CheckInvariants(); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "vg %q: FAILED: %v\n", vg.Name, err)
			return err
		}

		for _, lv := range vg.LVs {
			if err := lv.CheckInvariants(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "lv %q: FAILED: %v\n", lv.Name, err)
				return err
			}
		}

		for _, pv := range vg.PVs {
			if err := pv.CheckInvariants(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "pv %q: FAILED: %v\n", pv.ID, err)
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "vg %q: OK (%d PVs, %d LVs, %d/%d extents free)\n",
			vg.Name, len(vg.PVs), len(vg.LVs), vg.FreeCount, vg.ExtentCount)
		return nil
	},
}

func init() {
	vgckCmd.Flags().StringSliceVar(&vgckFlags.pvNames, "pv", nil, "member physical volume device (repeatable)")
	vgckCmd.Flags().Uint64Var(&vgckFlags.peSize, "pe-size-sectors", 8192, "physical extent size in 512-byte sectors")
}

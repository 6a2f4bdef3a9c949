package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lvm2go/lvm2core/internal/devcache"
	"github.com/lvm2go/lvm2core/internal/label"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan every configured device directory and report discovered volume groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		iter := tc.DevCache.Iter(tc.Filter)
		readWindow := func(dev *devcache.Device) ([]byte, error) {
			f, err := tc.DevIO.Open(dev, os.O_RDONLY)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return f.Read(0, label.WindowSize)
		}
		if err := tc.LabelCache.Scan(iter, readWindow, nil); err != nil {
			return err
		}

		vgNames := tc.LabelCache.VGNames()
		if len(vgNames) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no volume groups found")
			return nil
		}
		for _, vgName := range vgNames {
			vi := tc.LabelCache.VGNameLookup(vgName)
			displayName := vgName
			if displayName == "" {
				displayName = "(orphan)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", displayName)
			for _, info := range vi.Infos() {
				fmt.Fprintf(cmd.OutOrStdout(), "  pv %s\t%s\t%s\n", info.PVID, info.Dev.Name(), info.VolumeType)
			}
		}
		return nil
	},
}

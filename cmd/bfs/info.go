package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/keks/bfs/volume"
)

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the files in the image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVolume(func(v *volume.Volume) error {
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				for _, e := range v.List() {
					st, err := v.Stat(e.Name)
					if err != nil {
						return err
					}
					fmt.Fprintf(tw, "%s\t%d\n", e.Name, st.Size)
				}
				return tw.Flush()
			})
		},
	}
}

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <name>",
		Short: "Show the inode of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVolume(func(v *volume.Volume) error {
				st, err := v.Stat(args[0])
				if err != nil {
					return err
				}

				mapped := 0
				for _, id := range st.Blocks {
					if id != 0 {
						mapped++
					}
				}

				fmt.Fprintf(a.out, "name:   %s\n", args[0])
				fmt.Fprintf(a.out, "inode:  %d\n", st.ID)
				fmt.Fprintf(a.out, "size:   %d\n", st.Size)
				fmt.Fprintf(a.out, "blocks: %d mapped of %d\n", mapped, len(st.Blocks))
				return nil
			})
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show block usage of the image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVolume(func(v *volume.Volume) error {
				info := v.Info()

				if asJSON {
					enc := json.NewEncoder(a.out)
					enc.SetIndent("", "  ")
					return enc.Encode(info)
				}

				fmt.Fprintf(a.out, "image:      %s\n", info.Path)
				fmt.Fprintf(a.out, "block size: %d\n", info.BlockSize)
				fmt.Fprintf(a.out, "blocks:     %d used, %d free, %d total\n", info.Used, info.Free, info.Blocks)
				fmt.Fprintf(a.out, "files:      %d\n", info.Files)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	return cmd
}

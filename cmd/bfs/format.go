package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keks/bfs/volume"
)

func newFormatCmd(a *app) *cobra.Command {
	def := volume.DefaultOptions()

	var (
		blockSize int
		blocks    int
		catalog   int
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "format",
		Short: "Create an empty image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.imagePath()
			if err != nil {
				return err
			}

			if !force {
				if _, err := a.host.Stat(path); err == nil {
					return fmt.Errorf("image already exists: %s (use --force to overwrite)", path)
				}
			}

			v, err := volume.Format(a.host, path,
				volume.WithBlockSize(blockSize),
				volume.WithBlocks(blocks),
				volume.WithCatalogBlocks(catalog),
				volume.WithLogger(a.log),
			)
			if err != nil {
				return err
			}
			if err := v.Unmount(); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "formatted %s: %d blocks of %d bytes\n", path, blocks, blockSize)
			return nil
		},
	}

	cmd.Flags().IntVar(&blockSize, "block-size", def.BlockSize, "block size in bytes, a power of two")
	cmd.Flags().IntVar(&blocks, "blocks", def.Blocks, "total number of blocks")
	cmd.Flags().IntVar(&catalog, "catalog-blocks", def.CatalogBlocks, "blocks reserved for the directory")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing image")

	return cmd
}

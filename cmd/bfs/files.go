package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/keks/bfs"
	"github.com/keks/bfs/volume"
)

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <host-file> [name]",
		Short: "Copy a host file into the image",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.hostPath(args[0])
			if err != nil {
				return err
			}
			name := filepath.Base(src)
			if len(args) == 2 {
				name = args[1]
			}

			return a.withVolume(func(v *volume.Volume) error {
				in, err := a.host.Open(src)
				if err != nil {
					return err
				}
				defer in.Close()

				h, err := v.Create(name)
				if err != nil {
					return err
				}
				f, err := v.File(h)
				if err != nil {
					return err
				}
				defer f.Close()

				n, err := io.Copy(f, in)
				if err != nil {
					return fmt.Errorf("put %s: %w", name, err)
				}

				fmt.Fprintf(a.out, "%s: %d bytes\n", name, n)
				return nil
			})
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name> [host-file]",
		Short: "Copy a file out of the image",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst := args[0]
			if len(args) == 2 {
				dst = args[1]
			}
			dst, err := a.hostPath(dst)
			if err != nil {
				return err
			}

			return a.withVolume(func(v *volume.Volume) error {
				h, err := v.Open(args[0])
				if err != nil {
					return err
				}
				f, err := v.File(h)
				if err != nil {
					return err
				}
				defer f.Close()

				out, err := a.host.Create(dst)
				if err != nil {
					return err
				}

				if _, err := io.Copy(out, f); err != nil {
					out.Close()
					return fmt.Errorf("get %s: %w", args[0], err)
				}
				return out.Close()
			})
		},
	}
}

func newCatCmd(a *app) *cobra.Command {
	var (
		offset int64
		length int64
	)

	cmd := &cobra.Command{
		Use:   "cat <name>",
		Short: "Print a file, or a byte range of it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVolume(func(v *volume.Volume) error {
				h, err := v.Open(args[0])
				if err != nil {
					return err
				}
				defer v.Close(h)

				if err := v.Seek(h, offset, bfs.SeekSet); err != nil {
					return err
				}

				f, err := v.File(h)
				if err != nil {
					return err
				}

				var r io.Reader = f
				if length >= 0 {
					r = io.LimitReader(f, length)
				}

				_, err = io.Copy(a.out, r)
				return err
			})
		},
	}

	cmd.Flags().Int64Var(&offset, "offset", 0, "byte offset to start at")
	cmd.Flags().Int64Var(&length, "length", -1, "number of bytes to print, -1 for all")

	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>...",
		Short: "Remove files from the image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVolume(func(v *volume.Volume) error {
				var errs []error
				for _, name := range args {
					if err := v.Remove(name); err != nil {
						errs = append(errs, err)
					}
				}
				return errors.Join(errs...)
			})
		},
	}
}

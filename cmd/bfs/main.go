// Command bfs formats bfs disk images and moves files in and out of them.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/keks/bfs/volume"
)

// app holds what every subcommand shares.
type app struct {
	image   string
	verbose bool

	out  io.Writer
	host billy.Filesystem
	log  *logrus.Logger
}

func (a *app) imagePath() (string, error) {
	return filepath.Abs(a.image)
}

// hostPath makes p absolute so it can be used with the root-based host
// filesystem.
func (a *app) hostPath(p string) (string, error) {
	return filepath.Abs(p)
}

func (a *app) mount() (*volume.Volume, error) {
	path, err := a.imagePath()
	if err != nil {
		return nil, err
	}
	return volume.Mount(a.host, path, volume.WithLogger(a.log))
}

// withVolume mounts the image, runs f and unmounts, keeping the first error.
func (a *app) withVolume(f func(v *volume.Volume) error) (err error) {
	v, err := a.mount()
	if err != nil {
		return err
	}
	defer func() {
		if uerr := v.Unmount(); err == nil {
			err = uerr
		}
	}()
	return f(v)
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{
		out:  out,
		host: osfs.New("/"),
		log:  logrus.New(),
	}
	a.log.SetOutput(os.Stderr)
	a.log.SetLevel(logrus.WarnLevel)

	root := &cobra.Command{
		Use:           "bfs",
		Short:         "Work with bfs block file store images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.verbose {
				a.log.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVarP(&a.image, "image", "i", "disk.bfs", "path to the disk image")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log every block operation")

	root.AddCommand(
		newFormatCmd(a),
		newPutCmd(a),
		newGetCmd(a),
		newCatCmd(a),
		newLsCmd(a),
		newStatCmd(a),
		newRmCmd(a),
		newInfoCmd(a),
	)

	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bfs:", err)
		os.Exit(1)
	}
}

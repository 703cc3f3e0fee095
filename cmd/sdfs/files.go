package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rstms/sdfs"
)

func lsCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls [PATH]",
		Short: "list directory entries",
		Long: `List the entries of the directory PATH resolves to. A PATH naming a
file or a missing name lists the entries of its parent starting with it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) > 0 {
				path = args[0]
			}
			return mount(func(fs *sdfs.FS) error {
				dir, err := fs.OpenDir(path)
				if err != nil {
					return err
				}
				defer dir.Close()
				out := cmd.OutOrStdout()
				for dir.Next() {
					if !long {
						fmt.Fprintln(out, dir.FileName())
						continue
					}
					kind := "-"
					if dir.IsDirectory() {
						kind = "d"
					}
					hidden := " "
					if dir.IsHidden() {
						hidden = "h"
					}
					fmt.Fprintf(out, "%s%s %10d %s %s\n", kind, hidden, dir.FileSize(),
						dir.FileTime().Format("2006-01-02 15:04"), dir.FileName())
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Long listing with sizes and modify times")
	return cmd
}

func catCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat FILE...",
		Short: "write files to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mount(func(fs *sdfs.FS) error {
				for _, path := range args {
					f, err := fs.Open(path, sdfs.OMDefault, sdfs.AMRead)
					if err != nil {
						return err
					}
					_, err = io.Copy(cmd.OutOrStdout(), f)
					f.Close()
					if err != nil {
						return errors.Wrapf(err, "reading %s", path)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func putCmd() *cobra.Command {
	var appendData bool
	cmd := &cobra.Command{
		Use:   "put SRC DST",
		Short: "copy a host file into the volume",
		Long:  `Copy the host file SRC to DST, creating missing directories. SRC "-" reads stdin.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				src = file
			}
			mode := sdfs.OMCreate | sdfs.OMTruncate
			if appendData {
				mode = sdfs.OMCreate | sdfs.OMAppend
			}
			return mount(func(fs *sdfs.FS) error {
				f, err := fs.Open(args[1], mode, sdfs.AMWrite)
				if err != nil {
					return err
				}
				if _, err := io.Copy(f, src); err != nil {
					f.Close()
					return errors.Wrapf(err, "writing %s", args[1])
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().BoolVarP(&appendData, "append", "a", false, "Append to DST instead of replacing it")
	return cmd
}

func mkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir DIR...",
		Short: "create directories and their missing parents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mount(func(fs *sdfs.FS) error {
				for _, path := range args {
					if err := fs.Mkdir(path); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func rmdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rmdir DIR...",
		Short: "remove empty directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mount(func(fs *sdfs.FS) error {
				for _, path := range args {
					if err := fs.Rmdir(path); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func rmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm FILE...",
		Short: "remove files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mount(func(fs *sdfs.FS) error {
				for _, path := range args {
					if err := fs.Remove(path); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func mvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mv FROM TO",
		Short: "rename a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mount(func(fs *sdfs.FS) error {
				return fs.Rename(args[0], args[1])
			})
		},
	}
	return cmd
}

func infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "show volume geometry and usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mount(func(fs *sdfs.FS) error {
				info, err := fs.Info64()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "type:      %s\n", fs.FATType())
				fmt.Fprintf(out, "clusters:  %d x %d bytes\n", fs.TotalClusters(), fs.ClusterSize())
				fmt.Fprintf(out, "blocks:    %d\n", fs.TotalBlocks())
				fmt.Fprintf(out, "total:     %d\n", info.TotalBytes)
				fmt.Fprintf(out, "used:      %d\n", info.UsedBytes)
				fmt.Fprintf(out, "free:      %d\n", info.TotalBytes-info.UsedBytes)
				return nil
			})
		},
	}
	return cmd
}

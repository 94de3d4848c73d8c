package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/jmgilman/go/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/keks/flashfs/dir"
)

// run opens a session for the command and closes it afterwards.
func run(flags *rootFlags, fn func(cmd *cobra.Command, args []string, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		s, err := openSession(flags, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()

		return fn(cmd, args, s)
	}
}

func parseSize(s string) (uint32, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInvalidInput, "parse size")
	}
	if n > 1<<32-1 {
		return 0, errors.Newf(errors.CodeInvalidInput, "size %s does not fit a 32 bit address", s)
	}
	return uint32(n), nil
}

func sizeString(e dir.Entry) string {
	if e.Size == 0 {
		return "growing"
	}
	return humanize.IBytes(uint64(e.Size))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newInfoCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show chip identity and directory usage",
		Args:  cobra.NoArgs,
		RunE: run(flags, func(cmd *cobra.Command, _ []string, s *session) error {
			c := s.chip
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "id:         %s\n", c.ID())
			fmt.Fprintf(out, "family:     %s\n", c.Family())
			fmt.Fprintf(out, "capacity:   %s\n", humanize.IBytes(uint64(c.Capacity())))
			fmt.Fprintf(out, "block size: %s\n", humanize.IBytes(uint64(c.BlockSize())))
			bits := 24
			if c.Addr32() {
				bits = 32
			}
			fmt.Fprintf(out, "addressing: %d bit\n", bits)
			fmt.Fprintf(out, "quirks:     %s\n", c.Quirks())

			l, err := s.dir.CheckLayout()
			if err != nil {
				return err
			}
			entries, err := s.dir.List()
			if err != nil {
				return err
			}

			end, err := s.dir.Tail()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "files:      %d of %d\n", len(entries), l.MaxFiles)
			fmt.Fprintf(out, "data start: %d\n", l.DataStart())
			fmt.Fprintf(out, "free:       %s\n", humanize.IBytes(uint64(c.Capacity()-end)))
			return nil
		}),
	}
}

func newLsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List files",
		Args:  cobra.NoArgs,
		RunE: run(flags, func(cmd *cobra.Command, _ []string, s *session) error {
			entries, err := s.dir.List()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			if isTerminal(cmd.OutOrStdout()) {
				fmt.Fprintln(tw, "NAME\tSIZE\tADDRESS")
			}
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t0x%08X\n", e.Name, sizeString(e), e.Address)
			}
			return tw.Flush()
		}),
	}
}

func newCatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cat NAME",
		Short: "Write a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: run(flags, func(cmd *cobra.Command, args []string, s *session) error {
			f, err := s.dir.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			_, err = io.Copy(cmd.OutOrStdout(), f)
			return err
		}),
	}
}

func newPutCmd(flags *rootFlags) *cobra.Command {
	var (
		erasable bool
		length   string
	)

	cmd := &cobra.Command{
		Use:   "put FILE [NAME]",
		Short: "Copy a local file onto the flash",
		Args:  cobra.RangeArgs(1, 2),
		RunE: run(flags, func(cmd *cobra.Command, args []string, s *session) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			name := filepath.Base(args[0])
			if len(args) == 2 {
				name = args[1]
			}

			size := uint32(len(data))
			if length != "" {
				if size, err = parseSize(length); err != nil {
					return err
				}
				if int(size) < len(data) {
					return errors.Newf(errors.CodeInvalidInput, "--length %s is shorter than %s", length, args[0])
				}
			}
			if size == 0 {
				return errors.Newf(errors.CodeInvalidInput, "%s is empty; use create for growing files", args[0])
			}

			var f *dir.File
			if erasable {
				f, err = s.dir.CreateErasable(name, size)
			} else {
				f, err = s.dir.Create(name, size, 0)
			}
			if err != nil {
				return err
			}
			defer f.Close()

			if _, err := f.Write(data); err != nil {
				return err
			}
			if err := f.Flush(); err != nil {
				return err
			}

			s.log.Info("stored file", "name", name, "size", humanize.IBytes(uint64(f.Size())), "addr", f.Address())
			return nil
		}),
	}

	cmd.Flags().BoolVar(&erasable, "erasable", false, "align the file to erase blocks")
	cmd.Flags().StringVar(&length, "length", "", "reserve this many bytes instead of the file size (e.g. 64KiB)")
	return cmd
}

func newCreateCmd(flags *rootFlags) *cobra.Command {
	var align string

	cmd := &cobra.Command{
		Use:   "create NAME LENGTH",
		Short: "Create an empty file; LENGTH 0 makes a growing file",
		Args:  cobra.ExactArgs(2),
		RunE: run(flags, func(cmd *cobra.Command, args []string, s *session) error {
			length, err := parseSize(args[1])
			if err != nil {
				return err
			}

			var a uint32
			if align != "" {
				if a, err = parseSize(align); err != nil {
					return err
				}
			}

			f, err := s.dir.Create(args[0], length, a)
			if err != nil {
				return err
			}
			defer f.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "0x%08X\n", f.Address())
			return nil
		}),
	}

	cmd.Flags().StringVar(&align, "align", "", "align start and length to this many bytes")
	return cmd
}

func newRmCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Remove a file; its space is not reclaimed",
		Args:  cobra.ExactArgs(1),
		RunE: run(flags, func(_ *cobra.Command, args []string, s *session) error {
			return s.dir.Remove(args[0])
		}),
	}
}

func newEraseCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "erase NAME",
		Short: "Erase the blocks of an erasable file",
		Args:  cobra.ExactArgs(1),
		RunE: run(flags, func(_ *cobra.Command, args []string, s *session) error {
			f, err := s.dir.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if err := f.Erase(); err != nil {
				return err
			}
			return f.Flush()
		}),
	}
}

func newEraseAllCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "erase-all",
		Short: "Erase the whole chip, directory included",
		Args:  cobra.NoArgs,
		RunE: run(flags, func(_ *cobra.Command, _ []string, s *session) error {
			if err := s.chip.EraseAll(); err != nil {
				return err
			}
			return s.chip.Wait()
		}),
	}
}

func newDumpCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dump ADDR LEN",
		Short: "Hex dump raw flash",
		Args:  cobra.ExactArgs(2),
		RunE: run(flags, func(cmd *cobra.Command, args []string, s *session) error {
			addr, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				return err
			}
			n, err := parseSize(args[1])
			if err != nil {
				return err
			}

			buf := make([]byte, n)
			if err := s.chip.Read(uint32(addr), buf); err != nil {
				return err
			}

			d := hex.Dumper(cmd.OutOrStdout())
			if _, err := d.Write(buf); err != nil {
				return err
			}
			return d.Close()
		}),
	}
}

func newSleepCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sleep",
		Short: "Put the chip in deep power-down",
		Args:  cobra.NoArgs,
		RunE: run(flags, func(_ *cobra.Command, _ []string, s *session) error {
			return s.chip.Sleep()
		}),
	}
}

func newWakeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "wake",
		Short: "Bring the chip out of deep power-down",
		Args:  cobra.NoArgs,
		RunE: run(flags, func(_ *cobra.Command, _ []string, s *session) error {
			return s.chip.Wakeup()
		}),
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/AnatoleLucet/rewind/internal/archive"
	"github.com/AnatoleLucet/rewind/internal/config"
	"github.com/AnatoleLucet/rewind/internal/history"
	"github.com/AnatoleLucet/rewind/internal/telemetry"
)

type flags struct {
	configPath  string
	archivePath string
	json        bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:          "rewindctl",
		Short:        "Inspect archived checkpoints",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVarP(&f.archivePath, "archive", "a", "", "archive directory, overrides archive.path")
	root.PersistentFlags().BoolVar(&f.json, "json", false, "print JSON")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "log badger activity")

	root.AddCommand(
		newListCmd(f),
		newShowCmd(f),
		newDiffCmd(f),
		newDeleteCmd(f),
	)
	return root
}

// open resolves the archive location from flags, the config file and the
// environment, in that order of precedence.
func (f *flags) open() (*archive.Archive, error) {
	var opts []config.Option
	if f.configPath != "" {
		opts = append(opts, config.WithFile(f.configPath))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	if f.archivePath != "" {
		cfg.Archive.Path = f.archivePath
	}
	if cfg.Archive.Path == "" {
		return nil, errors.New("no archive: pass --archive or set archive.path")
	}

	logger := telemetry.Discard()
	if f.verbose {
		logger, _ = telemetry.NewLogger(telemetry.LogConfig{Level: "debug", Format: cfg.Log.Format})
	}
	return archive.Open(archive.Options{Path: cfg.Archive.Path, Logger: logger})
}

func withArchive(f *flags, fn func(a *archive.Archive) error) error {
	a, err := f.open()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newListCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(f, func(a *archive.Archive) error {
				recs, err := a.List()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if f.json {
					return writeJSON(out, recs)
				}

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSEQ\tVALUES\tCREATED\tCORE")
				for _, rec := range recs {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
						rec.Name, rec.Seq, len(rec.Values), rec.CreatedAt.Format(time.RFC3339), rec.Core)
				}
				return tw.Flush()
			})
		},
	}
}

func newShowCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print the values of an archived checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(f, func(a *archive.Archive) error {
				rec, err := a.Load(args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if f.json {
					return writeJSON(out, rec)
				}

				fmt.Fprintf(out, "%s (seq %d, %s)\n", rec.Name, rec.Seq, rec.CreatedAt.Format(time.RFC3339))
				for _, name := range slices.Sorted(maps.Keys(rec.Values)) {
					fmt.Fprintf(out, "  %s = %s\n", name, rec.Values[name])
				}
				return nil
			})
		},
	}
}

func newDiffCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <from> <to>",
		Short: "Compare two archived checkpoints",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(f, func(a *archive.Archive) error {
				from, err := a.Load(args[0])
				if err != nil {
					return err
				}
				to, err := a.Load(args[1])
				if err != nil {
					return err
				}

				d := history.Compare(from.Values, to.Values)
				out := cmd.OutOrStdout()
				if f.json {
					return writeJSON(out, d)
				}

				for _, name := range d.Added {
					fmt.Fprintf(out, "+ %s = %s\n", name, to.Values[name])
				}
				for _, name := range d.Removed {
					fmt.Fprintf(out, "- %s = %s\n", name, from.Values[name])
				}
				for _, c := range d.Modified {
					fmt.Fprintf(out, "~ %s: %s -> %s\n", c.Name, c.Old, c.New)
				}
				if d.Empty() {
					fmt.Fprintln(out, "no differences")
				}
				return nil
			})
		},
	}
}

func newDeleteCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove an archived checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(f, func(a *archive.Archive) error {
				if err := a.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"strata/internal/archive"
	"strata/internal/distlib"
	"strata/internal/driver"
)

var libCmd = &cobra.Command{
	Use:   "lib",
	Short: "Inspect library archives",
}

var libInfoCmd = &cobra.Command{
	Use:   "info PATH",
	Short: "Tell whether PATH is a library of the strata distribution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := cmd.Flags().GetString("root")
		if err != nil {
			return err
		}
		var r *distlib.Resolver
		if root != "" {
			r = &distlib.Resolver{Root: root}
		} else if r, err = distlib.NewResolver(); err != nil {
			return err
		}
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		info, ok := r.Resolve(path)
		if !ok {
			return fmt.Errorf("%s is not a distribution library under %s", args[0], r.Root)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	},
}

var libDumpCmd = &cobra.Command{
	Use:   "dump ARCHIVE_DIR",
	Short: "Print the manifest and metadata of a library archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arc, err := archive.Open(args[0])
		if err != nil {
			return err
		}
		desc, err := arc.Descriptor()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		m := arc.Manifest
		fmt.Fprintf(out, "%s %s\n", okColor.Sprint("library"), m.UniqueName)
		fmt.Fprintf(out, "compiler %s, metadata %s\n", m.CompilerVersion, m.MetadataVersion)
		keys := make([]string, 0, len(m.Properties))
		for k := range m.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%s=%s\n", k, m.Properties[k])
		}
		fmt.Fprint(out, driver.DumpDescriptor(desc))

		ids, err := arc.DeclIDs()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d declaration blob(s)\n", len(ids))
		return nil
	},
}

func init() {
	libInfoCmd.Flags().String("root", "", "distribution root, defaults to STRATA_DATA_DIR or ~/.strata")
	libCmd.AddCommand(libInfoCmd)
	libCmd.AddCommand(libDumpCmd)
}

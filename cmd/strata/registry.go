package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"strata/internal/incremental"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect incremental module registries",
}

var registryFilesCmd = &cobra.Command{
	Use:   "files REGISTRY.toml",
	Short: "List the files owned by every module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := incremental.Load(args[0])
		if err != nil {
			return err
		}
		byModule := reg.AllModulesToFiles()
		modules := make([]incremental.ModuleEntry, 0, len(byModule))
		for m := range byModule {
			modules = append(modules, m)
		}
		sort.Slice(modules, func(i, j int) bool { return modules[i].String() < modules[j].String() })

		out := cmd.OutOrStdout()
		for _, m := range modules {
			fmt.Fprintf(out, "%s\n", okColor.Sprint(m.String()))
			for _, f := range byModule[m] {
				fmt.Fprintf(out, "  %s", f)
				if c, ok := reg.CompanionFile(f); ok {
					fmt.Fprintf(out, " (companion %s)", c)
				}
				fmt.Fprintln(out)
			}
		}
		return nil
	},
}

var registryWhichCmd = &cobra.Command{
	Use:   "which REGISTRY.toml FILE",
	Short: "Show the module owning a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := incremental.Load(args[0])
		if err != nil {
			return err
		}
		path, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}
		m, ok := reg.ModuleForFile(path)
		if !ok {
			return fmt.Errorf("%s does not belong to any module", args[1])
		}
		fmt.Fprintln(cmd.OutOrStdout(), m.String())
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryFilesCmd)
	registryCmd.AddCommand(registryWhichCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"strata/internal/metadata"
	"strata/internal/version"
)

type versionPayload struct {
	Tool            string `json:"tool"`
	Version         string `json:"version"`
	MetadataVersion string `json:"metadata_version"`
	PreRelease      bool   `json:"pre_release"`
	GitCommit       string `json:"git_commit,omitempty"`
	BuildDate       string `json:"build_date,omitempty"`
}

var versionFormat string

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show compiler and metadata versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch strings.ToLower(versionFormat) {
		case "pretty":
			fmt.Fprintln(out, version.Banner())
			fmt.Fprintf(out, "metadata %s\n", metadata.CurrentVersion)
			return nil
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(versionPayload{
				Tool:            "strata",
				Version:         version.Version,
				MetadataVersion: metadata.CurrentVersion.String(),
				PreRelease:      version.IsPreRelease(),
				GitCommit:       version.GitCommit,
				BuildDate:       version.BuildDate,
			})
		}
		return fmt.Errorf("unsupported format %q (must be pretty or json)", versionFormat)
	},
}

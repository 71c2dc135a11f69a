package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"lanevar/internal/cache"
	"lanevar/internal/kernel"
	"lanevar/internal/version"
)

var (
	versionFormat string
	versionBuild  bool
)

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "text", "output format (text|json)")
	versionCmd.Flags().BoolVar(&versionBuild, "build", false, "include git commit and build date")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the lanevar version, report schema and cache location",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

// versionInfo is what `lanevar version` reports. Schema and CacheDir tell
// whether cached reports from another build are still readable.
type versionInfo struct {
	Version       string   `json:"version"`
	Schema        uint16   `json:"report_schema"`
	CacheDir      string   `json:"cache_dir,omitempty"`
	VariantFields []string `json:"variant_fields"`
	GitCommit     string   `json:"git_commit,omitempty"`
	BuildDate     string   `json:"build_date,omitempty"`
}

func runVersion(cmd *cobra.Command, _ []string) error {
	format := strings.ToLower(strings.TrimSpace(versionFormat))
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be text or json)", versionFormat)
	}
	if _, err := useColor(cmd); err != nil {
		return err
	}

	info := versionInfo{
		Version: strings.TrimSpace(version.Version),
		Schema:  cache.SchemaVersion,
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if dir, err := cache.DefaultDir(cacheApp); err == nil {
		info.CacheDir = dir
	}
	kernel.DefaultVarianceMap().Each(func(fv kernel.FieldVariance) {
		if fv.Variant {
			info.VariantFields = append(info.VariantFields, fv.Field.String())
		}
	})
	if versionBuild {
		info.GitCommit = orUnknown(version.GitCommit)
		info.BuildDate = orUnknown(version.BuildDate)
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	return writeVersionText(cmd.OutOrStdout(), info)
}

func writeVersionText(w io.Writer, info versionInfo) error {
	cacheDir := info.CacheDir
	if cacheDir == "" {
		cacheDir = "unavailable"
	}
	lines := []string{
		"lanevar " + version.Colored(info.Version),
		fmt.Sprintf("report schema: %d", info.Schema),
		"cache:         " + cacheDir,
		"variant:       " + strings.Join(info.VariantFields, ", "),
	}
	if info.GitCommit != "" {
		lines = append(lines, "commit:        "+info.GitCommit)
	}
	if info.BuildDate != "" {
		lines = append(lines, "built:         "+info.BuildDate)
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}

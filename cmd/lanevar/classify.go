package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lanevar/internal/cache"
	"lanevar/internal/driver"
	"lanevar/internal/kernel"
	"lanevar/internal/manifest"
	"lanevar/internal/observ"
	"lanevar/internal/report"
)

const cacheApp = "lanevar"

var classifyCmd = &cobra.Command{
	Use:   "classify [file.ll|lanevar.toml|dir]",
	Short: "Classify kernel values as invariant, affine or variant",
	Long: `Classify every parameter and instruction of the selected kernels.

With a .ll file the kernels and their descriptor bindings come from --kernel and
--bind. With a directory, a lanevar.toml or no argument, the manifest found by
walking up from that location is used; --kernel then selects manifest entries.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringSlice("kernel", nil, "kernel function to classify (repeatable)")
	classifyCmd.Flags().StringArray("bind", nil, "bind a descriptor field to a value, field=value (repeatable)")
	classifyCmd.Flags().Int("thread-id-uses", manifest.AutoThreadIDUses, "thread id dimensions in use (-1 counts them from the IR)")
	classifyCmd.Flags().StringArray("variance", nil, "override a field's variance, field=variant|invariant (repeatable)")
	classifyCmd.Flags().Int("jobs", 0, "max kernels analyzed in parallel (0=auto)")
	classifyCmd.Flags().String("format", "text", "output format (text|json)")
	classifyCmd.Flags().Bool("no-cache", false, "do not read or write the report cache")
	classifyCmd.Flags().Bool("dump", false, "also print the invariant and affine memo sets")
	classifyCmd.Flags().Int("width", 0, "truncate instruction text to this many columns (0=off)")
}

type classifyInput struct {
	path     string
	kernels  []manifest.Kernel
	variance kernel.VarianceMap
}

func runClassify(cmd *cobra.Command, args []string) error {
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	colorOn, err := useColor(cmd)
	if err != nil {
		return err
	}
	formatFlag, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	format, err := report.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return fmt.Errorf("failed to get no-cache flag: %w", err)
	}
	dump, err := cmd.Flags().GetBool("dump")
	if err != nil {
		return fmt.Errorf("failed to get dump flag: %w", err)
	}
	width, err := cmd.Flags().GetInt("width")
	if err != nil {
		return fmt.Errorf("failed to get width flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	in, err := resolveClassifyInput(cmd, target)
	if err != nil {
		return err
	}

	var dc *cache.DiskCache
	if !noCache {
		dc, err = cache.Open(cacheApp)
		if err != nil && !quiet(cmd) {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: report cache disabled: %v\n", err)
		}
	}

	timer := observ.NewTimer()
	res, err := driver.ClassifyFile(cmd.Context(), driver.FileRequest{
		Path:     in.path,
		Kernels:  in.kernels,
		Variance: in.variance,
		Jobs:     jobs,
		Cache:    dc,
		Timer:    timer,
	})
	if err != nil {
		return err
	}

	done := timer.Track("render")
	out := cmd.OutOrStdout()
	if format == "json" {
		err = report.WriteJSON(out, res.Kernels)
	} else {
		err = report.WriteText(out, res.Kernels, report.TextOptions{Color: colorOn, Width: width, Sets: dump})
	}
	done("")
	if err != nil {
		return err
	}

	if res.Cached && !quiet(cmd) {
		fmt.Fprintln(cmd.ErrOrStderr(), "(cached)")
	}
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	return nil
}

// resolveClassifyInput turns the positional argument and flags into the
// file to analyze and its kernels.
func resolveClassifyInput(cmd *cobra.Command, target string) (*classifyInput, error) {
	names, err := cmd.Flags().GetStringSlice("kernel")
	if err != nil {
		return nil, fmt.Errorf("failed to get kernel flag: %w", err)
	}
	overrides, err := cmd.Flags().GetStringArray("variance")
	if err != nil {
		return nil, fmt.Errorf("failed to get variance flag: %w", err)
	}

	if strings.HasSuffix(target, ".ll") {
		in := &classifyInput{path: target, variance: kernel.DefaultVarianceMap()}
		bind, err := cmd.Flags().GetStringArray("bind")
		if err != nil {
			return nil, fmt.Errorf("failed to get bind flag: %w", err)
		}
		uses, err := cmd.Flags().GetInt("thread-id-uses")
		if err != nil {
			return nil, fmt.Errorf("failed to get thread-id-uses flag: %w", err)
		}
		if len(names) == 0 && len(bind) > 0 {
			return nil, fmt.Errorf("--bind requires --kernel")
		}
		bindings, err := parseAssignments(bind)
		if err != nil {
			return nil, fmt.Errorf("invalid --bind: %w", err)
		}
		for _, name := range names {
			k, err := manifest.NewKernel(name, bindings)
			if err != nil {
				return nil, fmt.Errorf("--bind: %w", err)
			}
			if uses >= 0 {
				k.ThreadIDUses = uses
			}
			in.kernels = append(in.kernels, k)
		}
		in.variance, err = applyVariance(in.variance, overrides)
		return in, err
	}

	m, err := loadManifest(target)
	if err != nil {
		return nil, err
	}
	in := &classifyInput{path: m.Module, kernels: m.Kernels, variance: m.VarianceMap()}
	if len(names) > 0 {
		in.kernels, err = selectKernels(m, names)
		if err != nil {
			return nil, err
		}
	}
	in.variance, err = applyVariance(in.variance, overrides)
	return in, err
}

func loadManifest(target string) (*manifest.Manifest, error) {
	if strings.HasSuffix(target, ".toml") {
		return manifest.Load(target)
	}
	start := target
	if start == "" {
		start = "."
	}
	if info, err := os.Stat(start); err == nil && !info.IsDir() {
		start = filepath.Dir(start)
	}
	path, ok, err := manifest.Find(start)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no %s found in %s or its parents; pass a .ll file with --kernel instead", manifest.FileName, start)
	}
	return manifest.Load(path)
}

func selectKernels(m *manifest.Manifest, names []string) ([]manifest.Kernel, error) {
	byName := make(map[string]manifest.Kernel, len(m.Kernels))
	for _, k := range m.Kernels {
		byName[k.Name] = k
	}
	out := make([]manifest.Kernel, 0, len(names))
	for _, name := range names {
		k, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("kernel %q is not listed in %s", name, m.Path)
		}
		out = append(out, k)
	}
	return out, nil
}

func applyVariance(vm kernel.VarianceMap, overrides []string) (kernel.VarianceMap, error) {
	assignments, err := parseAssignments(overrides)
	if err != nil {
		return nil, fmt.Errorf("invalid --variance: %w", err)
	}
	for name, value := range assignments {
		f, err := kernel.ParseField(name)
		if err != nil {
			return nil, fmt.Errorf("--variance: %w", err)
		}
		switch strings.ToLower(value) {
		case "variant":
			vm = vm.With(f, true)
		case "invariant":
			vm = vm.With(f, false)
		default:
			return nil, fmt.Errorf("--variance %s: expected variant or invariant, got %q", name, value)
		}
	}
	return vm, nil
}

// parseAssignments splits key=value pairs; a repeated key keeps the last
// value.
func parseAssignments(items []string) (map[string]string, error) {
	out := make(map[string]string, len(items))
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("expected key=value, got %q", item)
		}
		out[key] = value
	}
	return out, nil
}

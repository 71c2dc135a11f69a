package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lanevar/internal/driver"
	"lanevar/internal/ir"
	"lanevar/internal/llvmir"
	"lanevar/internal/observ"
)

var irCmd = &cobra.Command{
	Use:   "ir file.ll",
	Short: "Print the IR lanevar sees after import",
	Long:  "Import an LLVM IR file and print it in lanevar's own notation, one function or the whole module.",
	Args:  cobra.ExactArgs(1),
	RunE:  runIR,
}

func init() {
	irCmd.Flags().String("func", "", "print only this function")
}

func runIR(cmd *cobra.Command, args []string) error {
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

	name, err := cmd.Flags().GetString("func")
	if err != nil {
		return fmt.Errorf("failed to get func flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	timer := observ.NewTimer()
	done := timer.Track("import")
	mod, err := llvmir.ParseFile(args[0])
	if err != nil {
		done("failed")
		return err
	}
	done(fmt.Sprintf("%d funcs", len(mod.Funcs)))

	out := cmd.OutOrStdout()
	if name == "" {
		err = ir.DumpModule(out, mod)
	} else {
		f := mod.Func(name)
		if f == nil {
			return fmt.Errorf("%s: %q: %w", args[0], name, driver.ErrUnknownFunc)
		}
		err = ir.DumpFunc(out, f)
	}
	if err != nil {
		return err
	}
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	return nil
}

// Command dumpscope runs the deterministic crash-analysis pipeline over
// pre-captured debugger output and prints the finalized JSON report. The
// debugger/inspector process management is out of scope — this command is
// thin glue over the library packages.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dumpscope/dumpscope/pkg/debugger"
	"github.com/dumpscope/dumpscope/pkg/derived"
	"github.com/dumpscope/dumpscope/pkg/parser"
	"github.com/dumpscope/dumpscope/pkg/report"
	"github.com/dumpscope/dumpscope/pkg/reportcache"
	"github.com/dumpscope/dumpscope/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dumpscope",
		Short:        "Post-mortem crash analysis for managed process dumps",
		SilenceUsage: true,
	}
	root.AddCommand(newAnalyzeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}

type analyzeFlags struct {
	debuggerType  string
	threadsFile   string
	stacksFile    string
	modulesFile   string
	exceptionFile string
	dumpID        string
	userID        string
	cacheDir      string
	sigstop       bool
	verbose       bool
}

func newAnalyzeCmd() *cobra.Command {
	var flags analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Build a crash report from captured debugger output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.debuggerType, "debugger", "lldb", "debugger backend the output came from (windbg|lldb)")
	cmd.Flags().StringVar(&flags.threadsFile, "threads-file", "", "captured thread-list output")
	cmd.Flags().StringVar(&flags.stacksFile, "stacks-file", "", "captured all-stacks output")
	cmd.Flags().StringVar(&flags.modulesFile, "modules-file", "", "captured module-list output")
	cmd.Flags().StringVar(&flags.exceptionFile, "exception-file", "", "captured exception analysis output")
	cmd.Flags().StringVar(&flags.dumpID, "dump-id", "", "dump identifier for the report metadata")
	cmd.Flags().StringVar(&flags.userID, "user-id", "", "user identifier for the report metadata")
	cmd.Flags().StringVar(&flags.cacheDir, "cache-dir", "", "report disk cache root (optional)")
	cmd.Flags().BoolVar(&flags.sigstop, "sigstop", false, "the dump was captured as a SIGSTOP snapshot")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func runAnalyze(cmd *cobra.Command, flags analyzeFlags) error {
	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	dbgType := debugger.LLDB
	if flags.debuggerType == "windbg" {
		dbgType = debugger.WinDbg
	}

	r := &report.Report{
		Metadata: report.Metadata{
			DumpID:        flags.dumpID,
			UserID:        flags.userID,
			GeneratedAt:   time.Now().UTC(),
			DebuggerType:  string(dbgType),
			SchemaVersion: version.SchemaVersion,
		},
	}

	threads, err := readOptional(flags.threadsFile)
	if err != nil {
		return err
	}
	stacks, err := readOptional(flags.stacksFile)
	if err != nil {
		return err
	}
	modules, err := readOptional(flags.modulesFile)
	if err != nil {
		return err
	}
	exception, err := readOptional(flags.exceptionFile)
	if err != nil {
		return err
	}

	if dbgType == debugger.WinDbg {
		parser.ParseWinDbgThreads(threads, r)
		parser.ParseWinDbgStacks(stacks, r)
		parser.ParseWinDbgException(exception, r)
	} else {
		parser.ParseLLDBThreads(threads, r)
		parser.ParseLLDBBacktrace(stacks, r)
		parser.ParseLLDBException(exception, r)
	}
	parser.ParseModules(modules, r)

	report.RedactSensitiveEnv(&r.Analysis.Environment.Process)
	report.Finalize(r)
	derived.Build(r, flags.sigstop)

	if violations := report.Validate(r); len(violations) > 0 {
		for _, v := range violations {
			logger.Error("report invariant violated", "invariant", v.Invariant, "detail", v.Detail)
		}
		return fmt.Errorf("report failed invariant validation (%d violations)", len(violations))
	}

	if flags.cacheDir != "" {
		cache := reportcache.New(flags.cacheDir, logger)
		key := reportcache.Key{UserID: flags.userID, DumpID: flags.dumpID}
		meta := reportcache.Meta{SchemaVersion: version.SchemaVersion}
		if err := cache.Put(key, r, meta); err != nil {
			logger.Warn("failed to cache report", "error", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

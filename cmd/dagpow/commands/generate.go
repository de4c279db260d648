package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chronodrachma/dagpow/pkg/config"
	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
	"github.com/chronodrachma/dagpow/pkg/engine"
)

// NewMakeCacheCmd produces a MakeCacheCmd which writes the verification
// cache of a block's epoch into a directory
func NewMakeCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "makecache <block> <dir>",
		Short: "Generate the verification cache of a block's epoch",
		Args:  cobra.ExactArgs(2),
		RunE:  makeCache,
	}
}

// NewMakeDAGCmd produces a MakeDAGCmd which writes the mining dataset of a
// block's epoch into a directory
func NewMakeDAGCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "makedag <block> <dir>",
		Short: "Generate the mining dataset of a block's epoch",
		Args:  cobra.ExactArgs(2),
		RunE:  makeDAG,
	}
}

func dagashConfig() dagash.Config {
	return dagash.Config{
		Test:      _config.PowMode == config.ModeTest,
		Generator: engine.ParallelGenerator(_config.Threads),
		Logger:    logger,
	}
}

func makeCache(cmd *cobra.Command, args []string) error {
	block, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	cfg := dagashConfig()
	cfg.CacheDir = args[1]

	light, err := dagash.NewLight(block, cfg)
	if err != nil {
		return err
	}
	defer light.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s)\n",
		light.FilePath(dagash.KindCache),
		humanize.IBytes(light.CacheSize()), light.Outcome())
	return nil
}

func makeDAG(cmd *cobra.Command, args []string) error {
	block, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	cfg := dagashConfig()
	cfg.DatasetDir = args[1]

	light, err := dagash.NewLight(block, cfg)
	if err != nil {
		return err
	}
	defer light.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	full, err := dagash.NewFull(light, progressPrinter(ctx, cmd))
	if err != nil {
		return err
	}
	defer full.Close()
	fmt.Fprintln(cmd.ErrOrStderr())

	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s)\n",
		light.FilePath(dagash.KindDataset),
		humanize.IBytes(full.DAGSize()), full.Outcome())
	return nil
}

// progressPrinter reports generation progress on stderr and aborts once ctx
// is done.
func progressPrinter(ctx context.Context, cmd *cobra.Command) dagash.ProgressFunc {
	return func(percent uint) error {
		if err := ctx.Err(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr())
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\rGenerating DAG: %3d%%", percent)
		return nil
	}
}

package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chronodrachma/dagpow/pkg/core/types"
	"github.com/chronodrachma/dagpow/pkg/engine"
	"github.com/chronodrachma/dagpow/pkg/miner"
	"github.com/chronodrachma/dagpow/pkg/rpc"
)

var (
	serveAddr       string
	serveBlock      uint64
	serveHeader     string
	serveDifficulty uint64
)

// NewServeCmd produces a ServeCmd which hands one work package to remote
// miners and prints the first valid seal submitted
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a work package to remote miners over HTTP",
		RunE:  serve,
	}

	AddServeFlags(cmd)

	return cmd
}

//AddServeFlags adds flags to the serve command
func AddServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8545", "IP:Port to bind the work server")
	cmd.Flags().Uint64Var(&serveBlock, "block", 0, "Block number selecting the epoch")
	cmd.Flags().StringVar(&serveHeader, "header", "", "Header hash (hex)")
	cmd.Flags().Uint64Var(&serveDifficulty, "difficulty", 1<<16, "Difficulty submitted seals must meet")
	cmd.MarkFlagRequired("header")
}

func serve(cmd *cobra.Command, args []string) error {
	header, err := types.HashFromHex(serveHeader)
	if err != nil {
		return fmt.Errorf("invalid header hash: %w", err)
	}

	eng, err := engine.New(_config, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv := rpc.NewServer(eng, logger)
	srv.SetWork(miner.Work{Number: serveBlock, HeaderHash: header, Difficulty: serveDifficulty})

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(serveAddr) }()
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case seal := <-srv.Found():
		fmt.Fprintf(cmd.OutOrStdout(), "seal: %s\n", hex.EncodeToString(seal.Serialize()))
		return nil
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

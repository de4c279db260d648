package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chronodrachma/dagpow/pkg/core/types"
	"github.com/chronodrachma/dagpow/pkg/engine"
)

var (
	hashBlock  uint64
	hashHeader string
	hashNonce  uint64
	hashFull   bool
)

// NewHashCmd produces a HashCmd which computes one proof-of-work result
func NewHashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Compute the result and mix digest of a header hash and nonce",
		RunE:  hash,
	}

	AddHashFlags(cmd)

	return cmd
}

//AddHashFlags adds flags to the hash command
func AddHashFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&hashBlock, "block", 0, "Block number selecting the epoch")
	cmd.Flags().StringVar(&hashHeader, "header", "", "Header hash (hex)")
	cmd.Flags().Uint64Var(&hashNonce, "nonce", 0, "Nonce")
	cmd.Flags().BoolVar(&hashFull, "full", false, "Use the full dataset instead of the cache")
	cmd.MarkFlagRequired("header")
}

func hash(cmd *cobra.Command, args []string) error {
	header, err := types.HashFromHex(hashHeader)
	if err != nil {
		return fmt.Errorf("invalid header hash: %w", err)
	}

	eng, err := engine.New(_config, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hasher, err := eng.Hasher(hashBlock, hashFull, progressPrinter(ctx, cmd))
	if err != nil {
		return err
	}
	res := hasher.Compute(header, hashNonce)
	if !res.Success {
		return fmt.Errorf("hasher for block %d was released", hashBlock)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "result: %s\n", res.Result.Hex())
	fmt.Fprintf(out, "mix:    %s\n", res.MixHash.Hex())
	return nil
}

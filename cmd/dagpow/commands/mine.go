package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chronodrachma/dagpow/pkg/core/consensus"
	"github.com/chronodrachma/dagpow/pkg/core/types"
	"github.com/chronodrachma/dagpow/pkg/engine"
	"github.com/chronodrachma/dagpow/pkg/miner"
)

var (
	mineBlock      uint64
	mineHeader     string
	mineDifficulty uint64
	mineTimeout    time.Duration
	mineSeals      int
	mineBlockTime  time.Duration
)

// NewMineCmd produces a MineCmd which searches a nonce for a header hash
func NewMineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Search a nonce meeting a difficulty and print the seal",
		RunE:  mine,
	}

	AddMineFlags(cmd)

	return cmd
}

//AddMineFlags adds flags to the mine command
func AddMineFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&mineBlock, "block", 0, "Block number selecting the epoch")
	cmd.Flags().StringVar(&mineHeader, "header", "", "Header hash (hex)")
	cmd.Flags().Uint64Var(&mineDifficulty, "difficulty", 1<<16, "Difficulty the result must meet")
	cmd.Flags().DurationVar(&mineTimeout, "timeout", 0, "Give up after this long (0 waits forever)")
	cmd.Flags().IntVar(&mineSeals, "seals", 1, "Number of consecutive blocks to seal")
	cmd.Flags().DurationVar(&mineBlockTime, "block-time", 0, "Retarget the difficulty towards this time per seal (0 keeps it fixed)")
	cmd.MarkFlagRequired("header")
}

func mine(cmd *cobra.Command, args []string) error {
	header, err := types.HashFromHex(mineHeader)
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
	if mineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mineTimeout)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	work := miner.Work{
		Number:     mineBlock,
		HeaderHash: header,
		Difficulty: mineDifficulty,
	}
	for i := 0; i < mineSeals; i++ {
		hasher, err := eng.Hasher(work.Number, true, progressPrinter(ctx, cmd))
		if err != nil {
			return err
		}

		m := miner.NewMiner(hasher, _config.Threads, logger)
		start := time.Now()
		seal, err := m.Search(ctx, work)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)
		if err := eng.Verify(seal, work.Difficulty); err != nil {
			return fmt.Errorf("mined seal does not verify: %w", err)
		}

		logger.WithFields(logrus.Fields{
			"block":    seal.Number,
			"nonce":    seal.Nonce,
			"hashes":   m.Hashes(),
			"elapsed":  elapsed,
			"hashrate": fmt.Sprintf("%.0f H/s", m.Hashrate()),
		}).Info("Sealed")

		fmt.Fprintf(out, "block: %d\n", seal.Number)
		fmt.Fprintf(out, "difficulty: %d\n", work.Difficulty)
		fmt.Fprintf(out, "nonce: %d\n", seal.Nonce)
		fmt.Fprintf(out, "mix:   %s\n", seal.MixDigest.Hex())
		fmt.Fprintf(out, "seal:  %s\n", hex.EncodeToString(seal.Serialize()))

		// The next block commits to this seal.
		work.Number++
		work.HeaderHash = types.ComputeSHA256(seal.Serialize())
		if mineBlockTime > 0 {
			work.Difficulty = consensus.Retarget(work.Difficulty, elapsed, mineBlockTime)
		}
	}
	return nil
}

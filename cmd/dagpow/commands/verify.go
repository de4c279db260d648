package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chronodrachma/dagpow/pkg/core/types"
	"github.com/chronodrachma/dagpow/pkg/engine"
)

var verifyDifficulty uint64

// NewVerifyCmd produces a VerifyCmd which checks a seal printed by mine
func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <seal>",
		Short: "Check a hex encoded seal against a difficulty",
		Args:  cobra.ExactArgs(1),
		RunE:  verify,
	}
	cmd.Flags().Uint64Var(&verifyDifficulty, "difficulty", 1<<16, "Difficulty the result must meet")
	return cmd
}

func verify(cmd *cobra.Command, args []string) error {
	raw, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("invalid seal hex: %w", err)
	}
	seal, err := types.DeserializeSeal(raw)
	if err != nil {
		return err
	}

	eng, err := engine.New(_config, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Verify(seal, verifyDifficulty); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "valid seal for block %d, nonce %d\n", seal.Number, seal.Nonce)
	return nil
}

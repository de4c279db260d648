package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
)

// NewSeedHashCmd produces a SeedHashCmd which prints the seed of a block's
// epoch
func NewSeedHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seedhash <block>",
		Short: "Print the seed hash of a block's epoch",
		Args:  cobra.ExactArgs(1),
		RunE:  seedHash,
	}
}

func seedHash(cmd *cobra.Command, args []string) error {
	block, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), dagash.SeedHash(block).Hex())
	return nil
}

package main

import (
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"ammcore/internal/calculator/tickmath"
)

func runTick(cmd *cobra.Command, args []string) error {
	price, err := uint256.FromDecimal(args[0])
	if err != nil {
		return fmt.Errorf("parse sqrt price: %w", err)
	}
	tick, err := tickmath.GetTickAtSqrtRatio(price)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tick)
	return nil
}

func runPrice(cmd *cobra.Command, args []string) error {
	tick, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("parse tick: %w", err)
	}
	price, err := tickmath.GetSqrtRatioAtTick(int32(tick))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), price.Dec())
	return nil
}

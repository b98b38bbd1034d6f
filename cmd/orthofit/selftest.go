package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sawpanic/orthofit/internal/approx"
)

func newSelfTestCmd() *cobra.Command {
	var (
		seed      int64
		tolerance float64
		dims      []int
	)

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Check coefficient recovery on random invertible bases",
		RunE: func(cmd *cobra.Command, args []string) error {
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			rng := rand.New(rand.NewSource(seed))
			cases := approx.SelfTest(approx.NewEngine(), rng, dims, tolerance)

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(table.Row{"N", "ERROR", "RESULT"})
			failed := 0
			for _, c := range cases {
				result := "PASSED"
				if !c.Passed {
					result = "FAILED"
					failed++
				}
				tw.AppendRow(table.Row{c.Dim, fmt.Sprintf("%.3e", c.Err), result})
			}
			tw.Render()

			if failed > 0 {
				return fmt.Errorf("%d of %d self-test cases failed (seed %d)", failed, len(cases), seed)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 = time based)")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 1e-6, "Maximum coefficient error")
	cmd.Flags().IntSliceVar(&dims, "dims", approx.SelfTestDims, "Basis sizes to test")
	return cmd
}

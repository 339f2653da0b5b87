package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/alm/internal/retirement"
)

func newSimulateCmd() *cobra.Command {
	var deposit float64
	var years string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Estimate the monthly income of a retirement savings plan",
		Long: `Project a plan that deposits a fixed amount every month. The balance
compounds at 0.9% a month, plus 0.1% after every three years. The estimated
income spreads the final balance over as many months as were saved.`,
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			months, err := retirement.MonthsFromChoice(years)
			if err != nil {
				return err
			}
			p, err := retirement.Estimate(deposit, months)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Horizon:         %d months\n", p.Months)
			fmt.Fprintf(out, "Deposited:       %s\n", retirement.FormatBRL(p.Deposited))
			fmt.Fprintf(out, "Final balance:   %s\n", retirement.FormatBRL(p.Total))
			fmt.Fprintf(out, "Final rate:      %.1f%% a month\n", p.FinalRate*100)
			fmt.Fprintf(out, "Monthly income:  %s\n", retirement.FormatBRL(p.MonthlyIncome))
			return nil
		},
	}

	cmd.Flags().Float64Var(&deposit, "deposit", 0, "Monthly deposit")
	cmd.Flags().StringVar(&years, "years", "10", `Years of saving, e.g. "10" or "20 ou mais anos"`)
	cmd.MarkFlagRequired("deposit")
	return cmd
}

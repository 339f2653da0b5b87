package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/alm/internal/api"
	"github.com/me/alm/internal/retirement"
)

func newForecastCmd() *cobra.Command {
	var modelType, plotPath string
	var steps, days int
	var order, seasonal []int

	cmd := &cobra.Command{
		Use:   "forecast [ticker...]",
		Short: "Forecast asset prices (admin)",
		Long: `Run a forecasting model on the API for each ticker. Without tickers the
default asset list is forecast.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(order) != 3 {
				return fmt.Errorf("--order needs 3 values, got %d", len(order))
			}
			if len(seasonal) != 4 {
				return fmt.Errorf("--seasonal-order needs 4 values, got %d", len(seasonal))
			}
			if _, err := app.requireAdmin(ctx); err != nil {
				return err
			}

			tickers := args
			if len(tickers) == 0 {
				tickers = api.DefaultTickers
			}

			out := cmd.OutOrStdout()
			for _, ticker := range tickers {
				req := api.NewForecastRequest(ticker)
				req.NSteps = steps
				req.Days = days
				req.Order = &[3]int{order[0], order[1], order[2]}
				req.SeasonalOrder = &[4]int{seasonal[0], seasonal[1], seasonal[2], seasonal[3]}

				resp, err := app.API.Forecast(ctx, modelType, req)
				if err != nil {
					return fmt.Errorf("forecast %s: %w", ticker, err)
				}

				fmt.Fprintf(out, "%s (%s, %d steps)\n", resp.Ticker, modelType, len(resp.ForecastValues))
				for i, v := range resp.ForecastValues {
					date := ""
					if i < len(resp.ForecastDates) {
						date = resp.ForecastDates[i]
					}
					fmt.Fprintf(out, "  %-12s  %10.2f\n", date, v)
				}
				for k, v := range resp.Metrics {
					fmt.Fprintf(out, "  %s = %.4f\n", k, v)
				}

				if plotPath != "" && resp.PlotBase64 != "" {
					target := plotPath
					if len(tickers) > 1 {
						target = filepath.Join(plotPath, ticker+".png")
					}
					if err := writePlot(target, resp.PlotBase64); err != nil {
						return err
					}
					fmt.Fprintf(out, "  plot written to %s\n", target)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelType, "model", api.DefaultForecastModel, "Forecasting model")
	cmd.Flags().IntVar(&steps, "steps", api.DefaultForecastSteps, "Number of steps to forecast")
	cmd.Flags().IntVar(&days, "days", api.DefaultForecastDays, "Days of history to fit on")
	cmd.Flags().IntSliceVar(&order, "order", api.DefaultOrder[:], "Model order p,d,q")
	cmd.Flags().IntSliceVar(&seasonal, "seasonal-order", api.DefaultSeasonalOrder[:], "Seasonal order P,D,Q,s")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Write the forecast chart (a directory when forecasting several tickers)")
	return cmd
}

func newPortfolioCmd() *cobra.Command {
	var plotPath string

	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Show the portfolio allocation (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := app.requireAdmin(ctx); err != nil {
				return err
			}

			w, err := app.API.PortfolioAllocation(ctx)
			if err != nil {
				return fmt.Errorf("portfolio allocation: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s  %-24s  %8s  %10s  %10s\n", "TICKER", "NAME", "WEIGHT", "HIST RET", "HIST VOL")
			for _, a := range w.Portfolio {
				fmt.Fprintf(out, "%-10s  %-24s  %7.2f%%  %9.2f%%  %9.2f%%\n",
					a.Ticker, a.Name, a.Allocation*100, a.HistoricalAnnualReturn*100, a.HistoricalAnnualVolatility*100)
			}
			if plotPath != "" && w.PlotBase64 != "" {
				if err := writePlot(plotPath, w.PlotBase64); err != nil {
					return err
				}
				fmt.Fprintf(out, "Chart written to %s\n", plotPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&plotPath, "plot", "", "Write the allocation chart to this file")
	return cmd
}

func newCashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cash",
		Short: "Show invested and uninvested totals (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := app.requireAdmin(ctx); err != nil {
				return err
			}

			cv, err := app.API.CashValue(ctx)
			if err != nil {
				return fmt.Errorf("cash value: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Invested: %s\n", retirement.FormatBRL(cv.Invested))
			fmt.Fprintf(out, "In cash:  %s\n", retirement.FormatBRL(cv.InCash))
			fmt.Fprintf(out, "Total:    %s\n", retirement.FormatBRL(cv.Invested+cv.InCash))
			return nil
		},
	}
}

func newRiskCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "risk [notebook...]",
		Short: "Download rendered risk notebooks as HTML (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := app.requireAdmin(ctx); err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				names = api.DefaultRiskNotebooks
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range app.API.RiskNotebooks(ctx, names) {
				if r.Err != nil {
					failed++
					fmt.Fprintf(out, "  %-32s  error: %v\n", r.Name, r.Err)
					continue
				}
				path := filepath.Join(outDir, r.Name+".html")
				if err := os.WriteFile(path, []byte(r.HTML), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(out, "  %-32s  %s  %s\n", r.Name, humanize.Bytes(uint64(len(r.HTML))), path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d notebooks failed", failed, len(names))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", ".", "Directory for the HTML files")
	return cmd
}

// writePlot decodes a base64 PNG to path.
func writePlot(path, b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode plot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create plot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/alm/pkg/model"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List inference models (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := app.requireAdmin(ctx); err != nil {
				return err
			}

			models, err := app.API.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(models) == 0 {
				fmt.Fprintln(out, "No models available.")
				return nil
			}
			fmt.Fprintf(out, "%-24s  %s\n", "NAME", "LOADED")
			fmt.Fprintf(out, "%-24s  %s\n", "----", "------")
			for _, m := range models {
				fmt.Fprintf(out, "%-24s  %t\n", m.Name, m.Loaded)
			}
			return nil
		},
	}
}

func newInferCmd() *cobra.Command {
	var noWait bool
	var maxAttempts int
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "infer <model> <file.csv>",
		Short: "Submit a CSV of prices for inference and wait for the prediction (admin)",
		Long: `Upload a CSV file to an inference model and poll the job until it
completes or fails. A job that is still running when the polling budget is
spent keeps running on the server; fetch it later with 'alm result'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			modelName, path := args[0], args[1]

			if !strings.EqualFold(filepath.Ext(path), ".csv") {
				return fmt.Errorf("only .csv files are accepted: %s", path)
			}
			if _, err := app.requireAdmin(ctx); err != nil {
				return err
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer f.Close()

			out := cmd.OutOrStdout()
			up, err := app.API.SubmitInference(ctx, modelName, filepath.Base(path), f)
			if err != nil {
				return fmt.Errorf("submit inference: %w", err)
			}
			fmt.Fprintf(out, "Job %s submitted to %s (%s)\n", up.JobID, modelName, up.Status)
			if noWait {
				return nil
			}

			pc := app.PollConfig()
			if cmd.Flags().Changed("max-attempts") {
				pc.MaxAttempts = maxAttempts
			}
			if cmd.Flags().Changed("interval") {
				pc.Interval = interval
			}
			last := up.Status
			pc.OnStatus = func(attempt int, job *model.InferenceJob) {
				if job.Status != last {
					fmt.Fprintf(out, "  [%d] %s\n", attempt, job.Status)
					last = job.Status
				}
			}

			job, err := app.API.PollInferenceResult(ctx, up.JobID, pc)
			if err != nil {
				return err
			}
			return printOutcome(out, job)
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Submit and return without polling")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Polling attempts before giving up (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Wait between polls (default from config)")
	return cmd
}

func newResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <job-id>",
		Short: "Show the current state of an inference job (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := app.requireAdmin(ctx); err != nil {
				return err
			}

			job, err := app.API.GetInferenceResult(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get result: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:    %s\n", job.JobID)
			if job.Model != "" {
				fmt.Fprintf(out, "Model:  %s\n", job.Model)
			}
			if job.SubmittedAt != "" {
				fmt.Fprintf(out, "Submitted: %s\n", job.SubmittedAt)
			}
			return printOutcome(out, job)
		},
	}
}

// printOutcome renders a job by its outcome. A failed job is an error.
func printOutcome(w io.Writer, job *model.InferenceJob) error {
	switch o := job.Outcome().(type) {
	case model.Pending:
		fmt.Fprintln(w, "Status: pending")
	case model.Processing:
		fmt.Fprintf(w, "Status: %s\n", job.Status)
	case model.Completed:
		fmt.Fprintln(w, "Status: completed")
		fmt.Fprintf(w, "Current price: %.2f\n", o.Result.CurrentPrice)
		fmt.Fprintf(w, "Horizon:       %d\n", o.Result.PredictionHorizon)
		for i, p := range o.Result.PredictedPrices {
			fmt.Fprintf(w, "  t+%d  %.2f\n", i+1, p)
		}
	case model.Failed:
		fmt.Fprintln(w, "Status: failed")
		return fmt.Errorf("inference job %s failed: %s", job.JobID, o.Error)
	}
	return nil
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/dental-gateway/internal/services"
)

func newUsageCmd() *cobra.Command {
	var (
		company    string
		from, to   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Report API usage of a company",
		Long: `Count the logged API calls of a company in [from, to). Billable calls are
accepted submissions; polls are logged but not billable. The window defaults to
the current calendar month (UTC).`,
		Example: `  gateway usage --company acme
  gateway usage --company acme --from 2025-03-01 --to 2025-04-01 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := usageWindow(from, to, time.Now().UTC())
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, closeDB, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			usage := &services.UsageRecorder{DB: db}
			sum, err := usage.Summary(cmd.Context(), company, start, end)
			if err != nil {
				return fmt.Errorf("summarize usage: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, map[string]any{
					"company_id": company,
					"from":       start,
					"to":         end,
					"total":      sum.Total,
					"billable":   sum.Billable,
				})
			}
			fmt.Fprintf(out, "Usage for %s from %s to %s\n", company, start.Format(time.RFC3339), end.Format(time.RFC3339))
			fmt.Fprintf(out, "  Calls:    %d\n", sum.Total)
			fmt.Fprintf(out, "  Billable: %d\n", sum.Billable)
			return nil
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "Company id (required)")
	cmd.Flags().StringVar(&from, "from", "", "Window start, YYYY-MM-DD or RFC3339 (default: start of month)")
	cmd.Flags().StringVar(&to, "to", "", "Window end, exclusive (default: now)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("company")

	return cmd
}

// usageWindow resolves the report window relative to ref.
func usageWindow(from, to string, ref time.Time) (time.Time, time.Time, error) {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := ref
	var err error
	if from != "" {
		if start, err = parseDay(from); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if end, err = parseDay(to); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
	}
	return start, end, nil
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t, nil
}

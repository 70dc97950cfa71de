package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/report"
)

type rangeFlags struct {
	input  string
	period string
	start  string
	end    string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "transaction dump (.json records or .csv export)")
	cmd.Flags().StringVar(&f.period, "period", domain.Period7Days, "7days, thisMonth, lastMonth or custom")
	cmd.Flags().StringVar(&f.start, "start", "", "custom range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "custom range end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("input")
}

// aggregate loads the input and aggregates it over the requested range.
func (c *cli) aggregate(f *rangeFlags) (report.Aggregation, report.Batch, domain.DateRange, string, error) {
	loc, err := c.location()
	if err != nil {
		return report.Aggregation{}, report.Batch{}, domain.DateRange{}, "", err
	}
	logger := c.logger()
	defer logger.Sync()

	now := c.now().In(loc)
	batch, err := loadBatch(f.input, now, loc, logger)
	if err != nil {
		return report.Aggregation{}, report.Batch{}, domain.DateRange{}, "", err
	}

	period := f.period
	if !report.KnownPeriod(period) {
		period = domain.Period7Days
	}
	r := report.ResolveRange(period, f.start, f.end, now)
	return report.Aggregate(batch.Transactions, r), batch, r, period, nil
}

func (c *cli) reportCmd() *cobra.Command {
	var f rangeFlags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the report for a period as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			agg, batch, r, period, err := c.aggregate(&f)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(agg.Report(period, r, batch.Rejected))
		},
	}
	f.register(cmd)
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		f        rangeFlags
		format   string
		currency string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the transactions of a period as csv, json or txt",
		RunE: func(cmd *cobra.Command, args []string) error {
			exportFormat, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			agg, _, _, _, err := c.aggregate(&f)
			if err != nil {
				return err
			}
			cur, ok := domain.LookupCurrency(strings.ToUpper(currency))
			if !ok {
				return fmt.Errorf("unsupported currency %q", currency)
			}
			loc, _ := c.location()

			file, err := report.Export(exportFormat, agg.InRange, c.now().In(loc), cur.Symbol)
			var noData *domain.ErrNoData
			if errors.As(err, &noData) {
				return fmt.Errorf("%w in the selected period", err)
			}
			if err != nil {
				return err
			}

			if out == "-" {
				_, err := cmd.OutOrStdout().Write(file.Content)
				return err
			}
			if out == "" {
				out = file.Filename
			}
			if err := os.WriteFile(out, file.Content, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d transactions to %s\n", len(agg.InRange), out)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", string(domain.ExportCSV), "csv, json or txt")
	cmd.Flags().StringVar(&currency, "currency", domain.DefaultCurrency, "currency code whose symbol prefixes the txt report totals")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default: the suggested file name)")
	return cmd
}

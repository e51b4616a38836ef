package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fueltrack/internal/analytics"
	"fueltrack/internal/export"
	"fueltrack/internal/form"
	"fueltrack/internal/normalize"
)

func newSubmitCmd(a *app) *cobra.Command {
	var price, litres, km string
	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Send one fill-up to the submit webhook",
		Example: "  fuelctl submit --price 62,40 --litres 38.2 --km 612",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := form.New(a.client, nil, form.WithLogger(a.logger))
			err := f.SetFields(map[form.Field]string{
				form.FieldPrice:  price,
				form.FieldLiters: litres,
				form.FieldKm:     km,
			})
			if err != nil {
				return err
			}
			snap, err := f.Submit(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %w", snap.Message, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), snap.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&price, "price", "", "Total paid in euros")
	cmd.Flags().StringVar(&litres, "litres", "", "Volume in liters")
	cmd.Flags().StringVar(&km, "km", "", "Distance since the previous fill-up")
	for _, name := range []string{"price", "litres", "km"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Fetch, normalize and summarize the fill-up history",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Shape   string      `json:"shape"`
					Stats   interface{} `json:"stats"`
					Records interface{} `json:"records"`
				}{snap.Shape, snap.Stats, snap.Records})
			}
			return writeHistory(out, snap)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print normalized records as JSON")
	return cmd
}

func newRawCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "raw",
		Short: "Print the history webhook payload as received",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.client.FetchHistory(cmd.Context())
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				buf.Reset()
				buf.Write(raw)
			}
			buf.WriteByte('\n')
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var formatName, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the history as an XLSX or PDF file",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}
			snap, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			if snap.Status != analytics.StatusReady {
				return fmt.Errorf("no fill-ups to export")
			}
			loc := a.cfg.Location()
			data, err := export.Build(format, snap.Records, loc)
			if err != nil {
				return err
			}
			if out == "" {
				out = format.Filename(time.Now().In(loc))
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pleins exportés dans %s\n", len(snap.Records), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&formatName, "format", string(export.FormatXLSX), "Export format: xlsx or pdf")
	cmd.Flags().StringVar(&out, "out", "", "Output file (default pleins-<date>.<format>)")
	return cmd
}

// load runs one analytics load and turns a failed snapshot into an error.
func (a *app) load(ctx context.Context) (analytics.Snapshot, error) {
	view := analytics.NewView(a.client, normalize.New(a.cfg.Location()),
		analytics.WithLogger(a.logger),
		analytics.WithFetchTimeout(a.cfg.WebhookTimeout),
	)
	snap := view.Load(ctx)
	if snap.Status == analytics.StatusFailed {
		return snap, fmt.Errorf("%s: %w", snap.Message, snap.Err)
	}
	return snap, nil
}

func writeHistory(w io.Writer, snap analytics.Snapshot) error {
	if snap.Status == analytics.StatusEmpty {
		_, err := fmt.Fprintln(w, "Aucune donnée pour le moment.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tTotal €\tVolume L\tDistance km\tPrix/L €\tL/100\t")
	for _, r := range snap.Records {
		date := r.DisplayDate
		if r.DateEstimated {
			date += "*"
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.0f\t%.3f\t%.1f\t\n",
			date, r.TotalCost, r.VolumeLiters, r.DistanceKm, r.PricePerLiter, r.EfficiencyLPer100Km)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	for _, t := range analytics.Tiles(snap.Stats) {
		fmt.Fprintf(w, "%-12s %s\n", t.Label, t.Value)
	}
	return nil
}

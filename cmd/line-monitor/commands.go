package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"line-monitor/internal/domain"
	"line-monitor/internal/indicator"
)

func addClientCommands(rootCmd *cobra.Command, v *viper.Viper) {
	client := func() *apiClient {
		return newAPIClient(v.GetString("server"), v.GetDuration("timeout"))
	}

	var asJSON bool
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the current shift indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Indicators()
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			s := resp.Snapshot
			if s == nil {
				return fmt.Errorf("server returned no snapshot")
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Expected units\t%d\n", s.ExpectedUnits)
			fmt.Fprintf(w, "Adjusted units\t%d\n", s.AdjustedUnits)
			fmt.Fprintf(w, "Lost units\t%d\n", s.LostUnits)
			fmt.Fprintf(w, "Stopped minutes\t%d\n", s.TotalStoppedMinutes)
			fmt.Fprintf(w, "Goal probability\t%.2f%%\n", s.GoalProbabilityPercent)
			fmt.Fprintf(w, "Classification\t%s\n", s.Classification)
			switch {
			case resp.LastError != "":
				fmt.Fprintf(w, "Stale\t%s\n", resp.LastError)
			case resp.Pending:
				fmt.Fprintln(w, "Stale\trefresh pending")
			}
			return w.Flush()
		},
	}
	snapshotCmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	var req indicator.RegisterStoppageRequest
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Record a stoppage",
		Example: "  line-monitor register --minutes 30 --category mechanical --reason \"belt jam\"\n" +
			"  line-monitor register -m 15 -c operational -r setup --reported-by ana@plant",
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := client().Register(req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered stoppage #%d: %d min %s (%s)\n",
				event.ID, event.DurationMinutes, event.Category, event.Reason)
			return nil
		},
	}
	registerCmd.Flags().IntVarP(&req.DurationMinutes, "minutes", "m", 0, "Stoppage duration in minutes")
	registerCmd.Flags().StringVarP(&req.Category, "category", "c", "", "Category: "+categoryList())
	registerCmd.Flags().StringVarP(&req.Reason, "reason", "r", "", "Free-text reason")
	registerCmd.Flags().StringVar(&req.ReportedBy, "reported-by", "", "Reporter (defaults to "+indicator.DefaultReporter+")")
	_ = registerCmd.MarkFlagRequired("minutes")
	_ = registerCmd.MarkFlagRequired("category")

	trendCmd := &cobra.Command{
		Use:   "trend",
		Short: "Stopped minutes per day",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := client().Trend()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tSTOPPED MINUTES")
			for _, d := range days {
				fmt.Fprintf(w, "%s\t%d\n", d.Date.Format("2006-01-02"), d.TotalStoppedMinutes)
			}
			return w.Flush()
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Stoppage count and minutes per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := client().Statistics()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tSTOPPAGES\tMINUTES")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%d\t%d\n", s.Category, s.Count, s.TotalMinutes)
			}
			return w.Flush()
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Ask the server to recompute indicators now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Refresh(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Refresh scheduled")
			return nil
		},
	}

	var output string
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Download the stoppage report workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client().Report()
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, raw, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s (%d bytes)\n", output, len(raw))
			return nil
		},
	}
	reportCmd.Flags().StringVarP(&output, "output", "o", "stoppages.xlsx", "Output file")

	rootCmd.AddCommand(snapshotCmd, registerCmd, trendCmd, statsCmd, refreshCmd, reportCmd)
}

func categoryList() string {
	names := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"case-distribution/internal/assignment"
	"case-distribution/internal/bootstrap"
	"case-distribution/internal/models"
	"case-distribution/internal/store"

	"github.com/spf13/cobra"
)

func (c *cli) open(cmd *cobra.Command) (*bootstrap.App, error) {
	return bootstrap.New(cmd.Context(), c.cfg, c.logger)
}

func (c *cli) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file]",
		Short: "Load the roster and case catalog from a YAML file",
		Long: `Upserts every member and case type listed in the file. Existing loads are
kept: they are derived from the ledger, not from the seed.

Without an argument the store.seed_path from the config is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.Store.SeedPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no seed file given and store.seed_path is empty")
			}

			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Seed(cmd.Context(), path); err != nil {
				return err
			}
			snap := app.Engine.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "%d members, %d case types\n", len(snap.Members), len(snap.CaseTypes))
			return nil
		},
	}
}

func (c *cli) assignCmd() *cobra.Command {
	var (
		req   models.CaseRequest
		cases string
	)
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a case (or a bundle of cases) to a team member",
		Example: `  engine assign --type Embargos --cases "0001234-56.2026, 0001235-56.2026" --correlated
  engine assign --type HC --cases P7 --triager Ana`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.CaseIDs = models.ParseCaseIDs(cases)

			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			a, err := app.Engine.Assign(cmd.Context(), &req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s -> %s (weight %s)\n", strings.Join(a.CaseIDs, ", "), a.Assignee, formatWeight(a.Weight))
			if a.EscapeValve {
				fmt.Fprintln(out, "no eligible specialist: assigned from the whole available team")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.CaseType, "type", "t", "", "case type from the catalog")
	cmd.Flags().StringVar(&cases, "cases", "", "comma separated case ids")
	cmd.Flags().BoolVar(&req.Correlated, "correlated", false, "charge the bundle as correlated cases")
	cmd.Flags().StringVar(&req.Triager, "triager", "", "member on triage duty this week")
	cmd.Flags().StringVar(&req.RequestID, "request-id", "", "idempotency key; repeating it returns the original assignment")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("cases")
	return cmd
}

func (c *cli) resetCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Zero every accumulated load, keeping the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if period == "" {
				period = time.Now().In(c.cfg.GetLocation()).Format("2006-01")
			}
			reset, err := app.Engine.ResetLoad(cmd.Context(), period)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loads reset for %s (after entry %d)\n", reset.Period, reset.AfterSeq)
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "label for the closed period (default: current month)")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show members, their load and availability today",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			snap := app.Engine.Snapshot()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap.Members)
			}

			today := models.Date(time.Now(), c.cfg.GetLocation())
			elig := assignment.Eligibility{BufferBusinessDays: c.cfg.Policy.LeaveBufferBusinessDays}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MEMBER\tLOAD\tAVAILABLE\tSPECIALTIES")
			for _, m := range snap.Members {
				avail := "yes"
				if !elig.IsAvailable(m, today) {
					avail = "no"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, formatWeight(m.AccumulatedLoad), avail, strings.Join(m.Specialties, ","))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d ledger entries, total load %s\n", len(snap.Entries), formatWeight(snap.TotalLoad()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print members as JSON")
	return cmd
}

func (c *cli) ledgerCmd() *cobra.Command {
	ledger := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the assignment ledger",
	}

	var outPath string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			w := cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outPath, err)
				}
				defer f.Close()
				w = f
			}
			return store.WriteLedgerCSV(w, app.Engine.Snapshot().Entries, c.cfg.GetLocation())
		},
	}
	export.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	ledger.AddCommand(export)
	return ledger
}

func formatWeight(w float64) string {
	return fmt.Sprintf("%.2f", w)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/procurepro/tbe/internal/config"
	"github.com/procurepro/tbe/internal/evaluation"
	"github.com/procurepro/tbe/internal/pkg/money"
	"github.com/procurepro/tbe/internal/report"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <file>",
		Short: "Evaluate a bid set",
		Long: `Evaluate the bids in a YAML or JSON request file ('-' reads stdin).
Weights, TCO settings and options the file leaves out come from the
configuration.

Examples:
  tbe evaluate rfq-42.yaml
  tbe evaluate rfq-42.json --output json
  tbe evaluate rfq-42.yaml --xlsx rfq-42.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: runEvaluate,
	}

	cmd.Flags().StringP("output", "o", "text", "output format (text, json)")
	cmd.Flags().String("xlsx", "", "also write the comparison workbook to this path")
	cmd.Flags().Bool("strict", false, "fail on incomplete bids")
	cmd.Flags().String("price-method", "", "price scoring: inverse_linear, inverse_log, ratio")

	return cmd
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	if output != "text" && output != "json" {
		return fmt.Errorf("unknown output format %q (must be text or json)", output)
	}

	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("strict") {
		appCfg.Scoring.StrictIncomplete, _ = cmd.Flags().GetBool("strict")
	}
	if cmd.Flags().Changed("price-method") {
		appCfg.Scoring.PriceMethod, _ = cmd.Flags().GetString("price-method")
	}

	var req evaluation.Request
	if err := readInput(args[0], cmd.InOrStdin(), &req); err != nil {
		return err
	}

	svc, err := newCLIService(cmd, appCfg)
	if err != nil {
		return err
	}
	run, err := svc.Evaluate(cmd.Context(), req)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
		if err := writeWorkbook(path, run.Outcome); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if output == "json" {
		return writeIndentedJSON(out, run)
	}
	return writeEvaluationText(out, run)
}

// newCLIService builds an evaluation service with in-memory collaborators.
func newCLIService(cmd *cobra.Command, appCfg *config.Config) (*evaluation.Service, error) {
	return evaluation.NewService(appCfg.ServiceConfig(), evaluation.Deps{
		Log: cliLogger(cmd, "text"),
	})
}

func writeWorkbook(path string, o *evaluation.Outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating workbook: %w", err)
	}
	if err := report.WriteXLSX(f, o); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing workbook: %w", err)
	}
	return f.Close()
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeEvaluationText prints the ranking table followed by the executive
// summary and any warnings.
func writeEvaluationText(w io.Writer, run *evaluation.Run) error {
	o := run.Outcome
	fmt.Fprintf(w, "Evaluation %s", run.ID)
	if run.RFQID != "" {
		fmt.Fprintf(w, " (RFQ %s)", run.RFQID)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tBID\tVENDOR\tTOTAL\tPRICE\tQUALITY\tDELIVERY\tCOMPLIANCE\tRECOMMENDATION")
	for _, r := range o.Ranking.Ranked {
		rank := "-"
		if r.Rank != nil {
			rank = strconv.Itoa(*r.Rank)
		}
		vendor := r.VendorName
		if vendor == "" {
			vendor = r.VendorID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rank, r.BidID, vendor, money.Format(r.Total),
			money.Format(r.Scores.Price), money.Format(r.Scores.Quality),
			money.Format(r.Scores.Delivery), money.Format(r.Scores.Compliance),
			r.Recommendation)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	if err := report.WriteText(w, o); err != nil {
		return err
	}

	if len(o.Warnings) > 0 {
		fmt.Fprintln(w)
		for _, wn := range o.Warnings {
			fmt.Fprintf(w, "warning: bid %s: %s: %s\n", wn.BidID, wn.Code, wn.Message)
		}
	}
	return nil
}

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Score one bid against given ranges",
		Long: `Score a single bid without a bid set. The file holds {bid, context}
where context carries the price and delivery ranges the bid is scored
against.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var req evaluation.PreviewRequest
			if err := readInput(args[0], cmd.InOrStdin(), &req); err != nil {
				return err
			}

			svc, err := newCLIService(cmd, appCfg)
			if err != nil {
				return err
			}
			res, err := svc.Preview(cmd.Context(), req.Bid, req.Context)
			if err != nil {
				return err
			}
			return writeIndentedJSON(cmd.OutOrStdout(), res)
		},
	}
	return cmd
}

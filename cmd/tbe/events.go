package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/procurepro/tbe/internal/bus"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect or replay the evaluation event journal",
		Long: `List the events recorded in the journal configured under
bus.journal_path, or replay them onto the configured bus, e.g. to feed a
Kafka topic that was down when the events were first published.`,
		RunE: runEvents,
	}

	cmd.Flags().String("journal", "", "journal file (overrides config)")
	cmd.Flags().String("topic", "", "only events on this topic")
	cmd.Flags().String("rfq", "", "only events for this RFQ")
	cmd.Flags().Duration("since", 0, "only events recorded within this duration")
	cmd.Flags().Int("limit", 0, "maximum number of events (0 = all)")
	cmd.Flags().Bool("replay", false, "publish the matching events to the configured bus")
	cmd.Flags().StringP("output", "o", "text", "output format (text, json)")

	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := appCfg.Bus.JournalPath
	if cmd.Flags().Changed("journal") {
		path, _ = cmd.Flags().GetString("journal")
	}
	if path == "" {
		return fmt.Errorf("no journal configured: set bus.journal_path or pass --journal")
	}

	j, err := bus.OpenJournal(path)
	if err != nil {
		return err
	}
	defer j.Close()

	var f bus.JournalFilter
	f.Topic, _ = cmd.Flags().GetString("topic")
	f.Key, _ = cmd.Flags().GetString("rfq")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		f.Since = time.Now().Add(-since)
	}

	if replay, _ := cmd.Flags().GetBool("replay"); replay {
		target := appCfg.Bus
		target.JournalPath = ""
		log := cliLogger(cmd, "text")
		b, err := bus.NewBus(target, nil, log)
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := j.Replay(cmd.Context(), b, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events to the %s bus\n", n, target.Type)
		return nil
	}

	entries, err := j.Read(f)
	if err != nil {
		return err
	}

	if output, _ := cmd.Flags().GetString("output"); output == "json" {
		return writeIndentedJSON(cmd.OutOrStdout(), entries)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tTOPIC\tRFQ\tEVENT ID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.RecordedAt.Format(time.RFC3339), e.Topic, e.Event.Key, e.Event.ID)
	}
	return tw.Flush()
}

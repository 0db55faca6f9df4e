package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/spf13/cobra"

	"github.com/DrSkyle/cloudsentinel/pkg/engine/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run the scheduled Athena / Logs Insights / Identity Center report",
	Long: `Runs every configured query, exports results as CSV, and publishes the digest.

Example:
  cloudsentinel report --config reports.yaml
  cloudsentinel report --dry-run --local-out ./out`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := handlers.Reports(cmd.Context(), scheduledEvent())
		printOutcomes(cmd, resp.QueriesStatus)
		return err
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Expire ephemeral EC2 and RDS resources past their retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := handlers.Monitor(cmd.Context(), scheduledEvent())
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s accounts=%d scanned=%d skipped=%d expired=%d\n",
			titleStyle.Render("MONITOR"), resp.Accounts, resp.Scanned, resp.Skipped, len(resp.Expired))
		for _, id := range resp.Expired {
			fmt.Fprintln(out, warnStyle.Render("  expired "+id))
		}
		return err
	},
}

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Classify a saved CloudTrail event and send its alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		event, err := readEvent(cmd)
		if err != nil {
			return err
		}
		d, err := handlers.Alerts(cmd.Context(), event)
		if err != nil {
			return err
		}
		switch {
		case d.SuppressedBy != "":
			fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("suppressed by "+d.SuppressedBy))
		case d.Sensitive || d.Other:
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("sensitive=%t other=%t", d.Sensitive, d.Other)))
		default:
			fmt.Fprintln(cmd.OutOrStdout(), "no alert")
		}
		return nil
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Replay a RunInstances / CreateDBInstance event through the tagger",
	RunE: func(cmd *cobra.Command, args []string) error {
		event, err := readEvent(cmd)
		if err != nil {
			return err
		}
		resp, err := handlers.Tag(cmd.Context(), event)
		if err != nil {
			return err
		}
		style := okStyle
		if resp.StatusCode != 200 {
			style = warnStyle
		}
		fmt.Fprintln(cmd.OutOrStdout(), style.Render(fmt.Sprintf("%d %s", resp.StatusCode, resp.Body)))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{alertCmd, tagCmd} {
		c.Flags().String("event", "", "Path to an EventBridge envelope or a bare CloudTrail detail (JSON)")
		_ = c.MarkFlagRequired("event")
	}
}

func scheduledEvent() events.CloudWatchEvent {
	return events.CloudWatchEvent{
		ID:         fmt.Sprintf("cli-%d", time.Now().Unix()),
		DetailType: "Scheduled Event",
		Source:     "cloudsentinel.cli",
		Time:       time.Now().UTC(),
		Detail:     json.RawMessage(`{}`),
	}
}

// readEvent accepts either a full EventBridge envelope or just its detail.
func readEvent(cmd *cobra.Command) (events.CloudWatchEvent, error) {
	path, _ := cmd.Flags().GetString("event")
	data, err := os.ReadFile(path)
	if err != nil {
		return events.CloudWatchEvent{}, fmt.Errorf("failed to read event: %w", err)
	}
	return ParseEvent(data)
}

// ParseEvent decodes an EventBridge envelope, wrapping a bare detail when needed.
func ParseEvent(data []byte) (events.CloudWatchEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return events.CloudWatchEvent{}, fmt.Errorf("failed to parse event: %w", err)
	}
	if _, ok := fields["detail"]; !ok {
		return events.CloudWatchEvent{Source: "cloudsentinel.cli", Detail: json.RawMessage(data)}, nil
	}
	var event events.CloudWatchEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return events.CloudWatchEvent{}, fmt.Errorf("failed to parse event: %w", err)
	}
	return event, nil
}

func printOutcomes(cmd *cobra.Command, outcomes []report.Outcome) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("REPORT"))
	if len(outcomes) == 0 {
		fmt.Fprintln(out, "  no outcomes")
		return
	}
	for _, o := range outcomes {
		style := okStyle
		if o.Status != "SUCCEEDED" {
			style = warnStyle
		}
		link := o.Link
		if link == "" {
			link = report.NoResults
		}
		fmt.Fprintf(out, "  %-40s %s\n    %s\n", o.Title, style.Render(o.Status), flagStyle.Render(link))
	}
}

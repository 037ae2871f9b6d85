package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashahealth/mediwagon/internal/app"
	"github.com/ashahealth/mediwagon/internal/gateway"
	"github.com/ashahealth/mediwagon/internal/policy"
)

const maxReportBytes = 1 << 20

func newSummarizeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize [report-file]",
		Short: "Explain a medical report in plain language",
		Long: `Send a medical report to the agent backend and print a plain-language
summary. The report is read from the file argument or from stdin. Email
addresses and phone numbers are redacted before anything leaves the device.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, _, err := requireSession(cmd, c)
			if err != nil {
				return err
			}
			defer closeIdentity(ids)

			var src io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}
			raw, err := io.ReadAll(io.LimitReader(src, maxReportBytes))
			if err != nil {
				return fmt.Errorf("reading report: %w", err)
			}
			text := strings.TrimSpace(string(raw))
			if text == "" {
				return fmt.Errorf("report is empty")
			}

			scrubbed, redacted := policy.RedactPII(text)
			summary, err := app.NewGateway(c.cfg, nil).SummarizeReport(cmd.Context(), scrubbed)
			if err != nil {
				return describeGatewayError(err)
			}
			out := cmd.OutOrStdout()
			if redacted {
				fmt.Fprintln(out, "(personal details were redacted before sending)")
			}
			fmt.Fprintln(out, summary.SimpleSummary)
			return nil
		},
	}
	return cmd
}

func newRemindCommand(c *cli) *cobra.Command {
	var medication, at string

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Schedule a medication reminder",
		Example: `  mediwagon remind --medication "Paracetamol 500mg" --at "after lunch"
  mediwagon remind --medication Metformin --at 21:00`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, sess, err := requireSession(cmd, c)
			if err != nil {
				return err
			}
			defer closeIdentity(ids)

			medication, at = strings.TrimSpace(medication), strings.TrimSpace(at)
			if medication == "" || at == "" {
				return fmt.Errorf("--medication and --at are required")
			}
			reminder, err := app.NewGateway(c.cfg, nil).ScheduleReminder(cmd.Context(), gateway.ReminderRequest{
				Medication: medication,
				TimeText:   at,
				UserID:     sess.User.ID,
			})
			if err != nil {
				return describeGatewayError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reminder for %s %s at %s.\n", medication, reminder.Status, reminder.ScheduledTime)
			return nil
		},
	}

	cmd.Flags().StringVar(&medication, "medication", "", "Medication name and dose")
	cmd.Flags().StringVar(&at, "at", "", `When to take it, e.g. "21:00" or "after lunch"`)
	return cmd
}

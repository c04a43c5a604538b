package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ticketops/tickctl/internal/audit"
	"github.com/ticketops/tickctl/internal/draftpr"
	"github.com/ticketops/tickctl/internal/notify"
	"github.com/ticketops/tickctl/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [job-id]",
	Short: "Launch the interactive watch view for a draft-PR job",
	Args:  cobra.ExactArgs(1),
	RunE:  runTUI,
}

var tuiYolo bool

func init() {
	tuiCmd.Flags().BoolVar(&tuiYolo, "yolo", false, "Auto-approve plans locally")
}

func runTUI(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	// The TUI renders notifications itself, so the controller reports
	// into a hub instead of the log.
	hub := notify.NewHub()

	opts := draftpr.Options{
		Interval: cfg.Poll.Interval(),
		Yolo:     tuiYolo,
	}
	if hist := openHistory(); hist != nil {
		defer hist.Close()
		opts.Recorder = audit.NewDecisionLog(hist)
	}

	controller := draftpr.New(client, hub, jobID, opts)

	app := tui.New(controller, hub, jobID)
	if err := app.Run(cmd.Context()); err != nil {
		return fmt.Errorf("watch view error: %w", err)
	}
	return nil
}

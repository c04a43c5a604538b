package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ticketops/tickctl/internal/api"
	"github.com/ticketops/tickctl/internal/history"
	"github.com/ticketops/tickctl/internal/poller"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and watch backend jobs",
}

var jobShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Show a job snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backend jobs",
	RunE:  runJobList,
}

var jobWatchCmd = &cobra.Command{
	Use:   "watch [job-id]",
	Short: "Poll a job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobWatch,
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel an active job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobCancel,
}

var jobRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently watched jobs from local history",
	RunE:  runJobRecent,
}

var (
	jobListStatus string
	jobListType   string
	jobListLimit  int
	jobByTicket   bool
	recentLimit   int
)

func init() {
	jobCmd.AddCommand(jobShowCmd, jobListCmd, jobWatchCmd, jobCancelCmd, jobRecentCmd)

	jobShowCmd.Flags().BoolVar(&jobByTicket, "ticket", false, "Treat the argument as a ticket key instead of a job ID")

	jobListCmd.Flags().StringVar(&jobListStatus, "status", "", "Filter by status (started, processing, completed, failed, cancelled)")
	jobListCmd.Flags().StringVar(&jobListType, "type", "", "Filter by job type")
	jobListCmd.Flags().IntVar(&jobListLimit, "limit", 20, "Maximum number of jobs")

	jobRecentCmd.Flags().IntVar(&recentLimit, "limit", 20, "Maximum number of jobs")
}

func runJobShow(cmd *cobra.Command, args []string) error {
	var job *api.Job
	var err error
	if jobByTicket {
		job, err = client.GetJobByTicket(cmd.Context(), args[0])
	} else {
		job, err = client.GetJob(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}

	printJob(job)
	return nil
}

func printJob(job *api.Job) {
	fmt.Printf("ID:      %s\n", job.JobID)
	fmt.Printf("Type:    %s\n", job.JobType)
	fmt.Printf("Status:  %s\n", job.Status)
	if job.TicketKey != "" {
		fmt.Printf("Ticket:  %s\n", job.TicketKey)
	}
	if !job.StartedAt.IsZero() {
		fmt.Printf("Started: %s\n", job.StartedAt.Local().Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Printf("Ended:   %s\n", job.CompletedAt.Local().Format(time.RFC3339))
	}
	if job.Error != "" {
		fmt.Printf("Error:   %s\n", job.Error)
	}
}

func runJobList(cmd *cobra.Command, args []string) error {
	list, err := client.ListJobs(cmd.Context(), api.JobListParams{
		Status:  api.JobStatus(jobListStatus),
		JobType: jobListType,
		Limit:   jobListLimit,
	})
	if err != nil {
		return err
	}

	if len(list.Jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tTICKET\tSTARTED")
	for _, job := range list.Jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(job.JobID), job.JobType, job.Status, job.TicketKey,
			job.StartedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

func runJobWatch(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	hist := openHistory()
	if hist != nil {
		defer hist.Close()
	}

	done := make(chan error, 1)
	p := poller.New(client, notifier, jobID, poller.Options{
		Interval: cfg.Poll.Interval(),
		OnStatusChange: func(status api.JobStatus) {
			fmt.Printf("Status: %s\n", status)
			if status == api.JobStatusCancelled {
				done <- nil
			}
		},
		OnComplete: func(job *api.Job) {
			done <- nil
		},
		OnError: func(err error) {
			done <- err
		},
	})

	p.Start(cmd.Context())
	defer p.Stop()

	// The first poll runs synchronously; the job may already be done.
	if job := p.Job(); job != nil && job.Status.Terminal() {
		printJob(job)
		recordJob(hist, job, "")
		return nil
	}

	fmt.Printf("Watching job %s (interval %s)\n", jobID, cfg.Poll.Interval())

	var watchErr error
	select {
	case watchErr = <-done:
	case <-cmd.Context().Done():
		watchErr = cmd.Context().Err()
	}

	if job := p.Job(); job != nil {
		printJob(job)
		recordJob(hist, job, "")
	}
	return watchErr
}

func runJobCancel(cmd *cobra.Command, args []string) error {
	if err := client.CancelJob(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Cancelled job %s\n", args[0])
	return nil
}

func runJobRecent(cmd *cobra.Command, args []string) error {
	hist := openHistory()
	if hist == nil {
		return fmt.Errorf("job history is unavailable")
	}
	defer hist.Close()

	recs, err := hist.ListRecent(recentLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No recent jobs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tSTAGE\tTICKET\tLAST SEEN")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(rec.JobID), rec.JobType, rec.Status, rec.Stage, rec.TicketKey,
			rec.LastSeen.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

// recordJob mirrors an observed snapshot into local history.
func recordJob(hist *history.Store, job *api.Job, stage string) {
	if hist == nil || job == nil {
		return
	}
	rec := history.JobRecord{
		JobID:     job.JobID,
		JobType:   job.JobType,
		Status:    string(job.Status),
		Stage:     stage,
		TicketKey: job.TicketKey,
	}
	if err := hist.RecordJob(rec); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record job history: %v\n", err)
	}
}

// --- Helpers ---

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

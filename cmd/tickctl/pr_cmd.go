package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ticketops/tickctl/internal/api"
	"github.com/ticketops/tickctl/internal/artifacts"
	"github.com/ticketops/tickctl/internal/audit"
	"github.com/ticketops/tickctl/internal/draftpr"
	"github.com/ticketops/tickctl/internal/history"
	"github.com/ticketops/tickctl/internal/plancache"
)

var prCmd = &cobra.Command{
	Use:   "pr",
	Short: "Manage draft-PR pipeline jobs",
}

var prCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a new draft-PR job for a ticket",
	RunE:  runPRCreate,
}

var prShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Show a draft-PR job with its plan versions",
	Args:  cobra.ExactArgs(1),
	RunE:  runPRShow,
}

var prWatchCmd = &cobra.Command{
	Use:   "watch [job-id]",
	Short: "Watch a draft-PR job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runPRWatch,
}

var prApproveCmd = &cobra.Command{
	Use:   "approve [job-id]",
	Short: "Approve the current plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPRApprove,
}

var prReviseCmd = &cobra.Command{
	Use:   "revise [job-id]",
	Short: "Request a plan revision from feedback",
	Args:  cobra.ExactArgs(1),
	RunE:  runPRRevise,
}

var prPlansCmd = &cobra.Command{
	Use:   "plans [job-id]",
	Short: "List plan versions",
	Args:  cobra.ExactArgs(1),
	RunE:  runPRPlans,
}

var prPlanCmd = &cobra.Command{
	Use:   "plan [job-id] [version]",
	Short: "Print a plan version (latest by default)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPRPlan,
}

var prCompareCmd = &cobra.Command{
	Use:   "compare [job-id]",
	Short: "Compare two plan versions",
	Args:  cobra.ExactArgs(1),
	RunE:  runPRCompare,
}

var prArtifactsCmd = &cobra.Command{
	Use:   "artifacts [job-id]",
	Short: "List a job's artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runPRArtifacts,
}

var prArtifactCmd = &cobra.Command{
	Use:   "artifact [job-id] [name]",
	Short: "Print one artifact's content",
	Args:  cobra.ExactArgs(2),
	RunE:  runPRArtifact,
}

var prRetryCmd = &cobra.Command{
	Use:   "retry [job-id]",
	Short: "Retry a failed draft-PR job",
	Args:  cobra.ExactArgs(1),
	RunE:  runPRRetry,
}

var (
	createTicket  string
	createRepos   []string
	createYolo    bool
	createContext string

	approveHash    string
	reviseFeedback string

	compareFrom   int
	compareTo     int
	compareFormat string
	compareExport string

	artifactsSort string
	artifactsType string

	retryFromStage string
)

func init() {
	prCmd.AddCommand(prCreateCmd, prShowCmd, prWatchCmd, prApproveCmd, prReviseCmd,
		prPlansCmd, prPlanCmd, prCompareCmd, prArtifactsCmd, prArtifactCmd, prRetryCmd)

	prCreateCmd.Flags().StringVar(&createTicket, "ticket", "", "Ticket key (required)")
	prCreateCmd.Flags().StringArrayVar(&createRepos, "repo", nil, "Repository URL, optionally url@branch (repeatable)")
	prCreateCmd.Flags().BoolVar(&createYolo, "yolo", false, "Auto-approve plans")
	prCreateCmd.Flags().StringVar(&createContext, "context", "", "Additional context for the planner")
	prCreateCmd.MarkFlagRequired("ticket")

	prWatchCmd.Flags().BoolVar(&createYolo, "yolo", false, "Auto-approve plans locally")

	prApproveCmd.Flags().StringVar(&approveHash, "hash", "", "Plan hash to approve (latest by default)")

	prReviseCmd.Flags().StringVar(&reviseFeedback, "feedback", "", "Feedback for the revision (required)")
	prReviseCmd.MarkFlagRequired("feedback")

	prCompareCmd.Flags().IntVar(&compareFrom, "from", 0, "From version (required)")
	prCompareCmd.Flags().IntVar(&compareTo, "to", 0, "To version (required)")
	prCompareCmd.Flags().StringVar(&compareFormat, "format", "summary", "Comparison format (summary, structured, unified)")
	prCompareCmd.Flags().StringVar(&compareExport, "export", "", "Write the comparison to a file (.md or .json)")
	prCompareCmd.MarkFlagRequired("from")
	prCompareCmd.MarkFlagRequired("to")

	prArtifactsCmd.Flags().StringVar(&artifactsSort, "sort", "name", "Sort key (name, size, date, type)")
	prArtifactsCmd.Flags().StringVar(&artifactsType, "type", "", "Filter by name substring")

	prRetryCmd.Flags().StringVar(&retryFromStage, "from-stage", "", "Pipeline stage to restart from")
}

// newController builds a plan-approval controller wired to the decision
// log when history is available.
func newController(jobID string, opts draftpr.Options) (*draftpr.Controller, func()) {
	hist := openHistory()
	closeFn := func() {}

	opts.Interval = cfg.Poll.Interval()
	if hist != nil {
		opts.Recorder = audit.NewDecisionLog(hist)
		closeFn = func() { hist.Close() }
	}
	return draftpr.New(client, notifier, jobID, opts), closeFn
}

func runPRCreate(cmd *cobra.Command, args []string) error {
	req := api.CreateDraftPRRequest{
		TicketKey:         createTicket,
		AdditionalContext: createContext,
	}
	if createYolo {
		req.Mode = "yolo"
	}
	for _, repo := range createRepos {
		in := api.RepoInput{URL: repo}
		if at := strings.LastIndex(repo, "@"); at > 0 {
			in.URL, in.Branch = repo[:at], repo[at+1:]
		}
		req.Repos = append(req.Repos, in)
	}

	accepted, err := client.CreateDraftPR(cmd.Context(), req)
	if err != nil {
		return err
	}

	fmt.Printf("Submitted draft-PR job %s for %s\n", accepted.JobID, createTicket)
	if accepted.SafetyNote != "" {
		fmt.Println(accepted.SafetyNote)
	}
	fmt.Printf("Watch it with: tickctl pr watch %s\n", accepted.JobID)

	if hist := openHistory(); hist != nil {
		defer hist.Close()
		hist.RecordJob(history.JobRecord{
			JobID:     accepted.JobID,
			JobType:   "draft_pr",
			Status:    accepted.Status,
			TicketKey: createTicket,
		})
		audit.NewDecisionLog(hist).Record("create_draft_pr", req, "ok", accepted.JobID, "")
	}
	return nil
}

func runPRShow(cmd *cobra.Command, args []string) error {
	job, err := client.GetDraftPRJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printJob(&job.Job)
	fmt.Printf("Stage:   %s\n", job.Stage)
	if job.YoloMode() {
		fmt.Println("Mode:    yolo (auto-approve)")
	}
	if url := job.PRURL(); url != "" {
		fmt.Printf("PR:      %s\n", url)
	}

	if len(job.PlanVersions) > 0 {
		fmt.Println("\nPlan versions:")
		for _, v := range job.PlanVersions {
			marker := ""
			if v.Hash == job.ApprovedPlanHash && job.ApprovedPlanHash != "" {
				marker = "  (approved)"
			} else if v.Version == job.PlanVersions[len(job.PlanVersions)-1].Version {
				marker = "  (latest)"
			}
			fmt.Printf("  v%d  %s%s\n", v.Version, truncateID(v.Hash), marker)
		}
	}
	return nil
}

func runPRWatch(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	done := make(chan error, 1)
	controller, closeHist := newController(jobID, draftpr.Options{
		Yolo: createYolo,
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
	defer closeHist()

	controller.Start(cmd.Context())
	defer controller.Stop()

	if job := controller.Poller().Job(); job != nil && job.Status.Terminal() {
		return printPRResult(controller)
	}

	fmt.Printf("Watching draft-PR job %s (interval %s)\n", jobID, cfg.Poll.Interval())

	var watchErr error
	select {
	case watchErr = <-done:
	case <-cmd.Context().Done():
		watchErr = cmd.Context().Err()
	}

	if err := printPRResult(controller); err != nil {
		return err
	}
	return watchErr
}

func printPRResult(controller *draftpr.Controller) error {
	job := controller.Poller().Job()
	if job == nil {
		return fmt.Errorf("no job snapshot")
	}
	printJob(job)
	if stage := controller.Stage(); stage != "" {
		fmt.Printf("Stage:   %s\n", stage)
	}
	if url := controller.PRURL(); url != "" {
		fmt.Printf("PR:      %s\n", url)
	}
	return nil
}

func runPRApprove(cmd *cobra.Command, args []string) error {
	controller, closeHist := newController(args[0], draftpr.Options{})
	defer closeHist()

	controller.Refresh(cmd.Context())

	hash := approveHash
	if hash == "" {
		latest := controller.LatestPlan()
		if latest == nil {
			return fmt.Errorf("job %s has no plan to approve", args[0])
		}
		hash = latest.Hash
	}

	result, err := controller.Approve(cmd.Context(), hash)
	if err != nil {
		return err
	}
	fmt.Printf("Approved plan %s, stage is now %s\n", truncateID(result.PlanHash), result.Stage)
	return nil
}

func runPRRevise(cmd *cobra.Command, args []string) error {
	controller, closeHist := newController(args[0], draftpr.Options{})
	defer closeHist()

	result, err := controller.Revise(cmd.Context(), reviseFeedback)
	if err != nil {
		return err
	}
	fmt.Printf("Plan revised to v%d (%s)\n", result.PlanVersion, truncateID(result.PlanHash))
	if result.ChangesSummary != "" {
		fmt.Println(result.ChangesSummary)
	}
	return nil
}

func runPRPlans(cmd *cobra.Command, args []string) error {
	versions, err := client.ListPlanVersions(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Println("No plan versions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tHASH\tCREATED")
	for _, v := range versions {
		fmt.Fprintf(w, "v%d\t%s\t%s\n", v.Version, truncateID(v.Hash),
			v.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

func runPRPlan(cmd *cobra.Command, args []string) error {
	var plan *api.PlanVersion
	var err error
	if len(args) == 2 {
		var version int
		if _, convErr := fmt.Sscanf(args[1], "v%d", &version); convErr != nil {
			if _, convErr = fmt.Sscanf(args[1], "%d", &version); convErr != nil {
				return fmt.Errorf("invalid version %q", args[1])
			}
		}
		plan, err = client.GetPlanVersion(cmd.Context(), args[0], version)
	} else {
		plan, err = client.GetLatestPlan(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("# Plan v%d (%s)\n\n", plan.Version, truncateID(plan.Hash))
	fmt.Println(string(plan.Content))
	return nil
}

func runPRCompare(cmd *cobra.Command, args []string) error {
	cache := plancache.New(client, cfg.Cache.TTL(), cfg.Cache.MaxEntries)

	cmp, err := cache.Fetch(cmd.Context(), args[0], compareFrom, compareTo, api.CompareFormat(compareFormat))
	if err != nil {
		return err
	}

	if compareExport != "" {
		return exportComparison(cmp, compareExport)
	}

	fmt.Print(plancache.Markdown(cmp))
	return nil
}

func exportComparison(cmp *api.PlanComparison, path string) error {
	var data []byte
	switch filepath.Ext(path) {
	case ".json":
		var err error
		data, err = plancache.JSON(cmp)
		if err != nil {
			return err
		}
	default:
		data = []byte(plancache.Markdown(cmp))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Printf("Wrote comparison to %s\n", path)
	return nil
}

func runPRArtifacts(cmd *cobra.Command, args []string) error {
	registry := artifacts.New(client, args[0])
	if err := registry.Load(cmd.Context()); err != nil {
		return err
	}

	registry.SetSort(artifacts.SortBy(artifactsSort))
	if artifactsType != "" {
		registry.SetFilters(artifacts.Filters{Type: artifactsType})
	}

	names := registry.Sorted()
	if len(names) == 0 {
		fmt.Println("No artifacts")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tSIZE\tCREATED\tDESCRIPTION")
	for _, name := range names {
		size, created := "-", "-"
		if meta := registry.Metadata(name); meta != nil {
			size = artifacts.FormatSize(meta.SizeBytes)
			created = artifacts.FormatDate(meta.CreatedAt, now)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			artifacts.DisplayName(name), artifacts.Category(name), size, created,
			artifacts.Description(name))
	}
	w.Flush()

	s := registry.Summary()
	fmt.Printf("\n%d artifacts (%d with metadata), %s total\n",
		s.TotalCount, s.WithMetadata, artifacts.FormatSize(s.TotalSize))
	return nil
}

func runPRArtifact(cmd *cobra.Command, args []string) error {
	data, err := client.GetArtifact(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	return nil
}

func runPRRetry(cmd *cobra.Command, args []string) error {
	accepted, err := client.RetryDraftPRJob(cmd.Context(), args[0], api.RetryJobRequest{
		FromStage: api.PipelineStage(retryFromStage),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Retrying as job %s\n", accepted.JobID)

	if hist := openHistory(); hist != nil {
		defer hist.Close()
		audit.NewDecisionLog(hist).Record("retry_job", map[string]string{"from_stage": retryFromStage}, "ok", args[0], "")
	}
	return nil
}

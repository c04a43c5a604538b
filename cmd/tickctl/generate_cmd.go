package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ticketops/tickctl/internal/api"
)

var generateCmd = &cobra.Command{
	Use:   "generate [ticket-key]",
	Short: "Draft a ticket description (preview, nothing is written back)",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

var (
	generateRepos   []string
	generateContext string
	generateAsync   bool
)

func init() {
	generateCmd.Flags().StringArrayVar(&generateRepos, "repo", nil, "Repository URL, optionally url@branch (repeatable)")
	generateCmd.Flags().StringVar(&generateContext, "context", "", "Additional context for the generator")
	generateCmd.Flags().BoolVar(&generateAsync, "async", false, "Force asynchronous processing")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req := api.GenerateTicketRequest{
		TicketKey:         args[0],
		AdditionalContext: generateContext,
		AsyncMode:         generateAsync,
	}
	for _, repo := range generateRepos {
		in := api.RepoInput{URL: repo}
		if at := strings.LastIndex(repo, "@"); at > 0 {
			in.URL, in.Branch = repo[:at], repo[at+1:]
		}
		req.Repos = append(req.Repos, in)
	}

	outcome, err := client.GenerateTicket(cmd.Context(), req)
	if err != nil {
		return err
	}

	switch out := outcome.(type) {
	case *api.Accepted:
		fmt.Printf("Generation queued as job %s\n", out.JobID)
		if out.Message != "" {
			fmt.Println(out.Message)
		}
		fmt.Printf("Watch it with: tickctl job watch %s\n", out.JobID)
	case *api.Completed:
		os.Stdout.Write(out.Raw)
		fmt.Println()
	default:
		return fmt.Errorf("unexpected submit outcome %T", outcome)
	}
	return nil
}

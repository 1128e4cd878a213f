package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/services"
)

// runTaskID continues an existing task instead of allocating one
var runTaskID string

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)

	runCmd.Flags().StringVar(&runTaskID, "task-id", "", "reuse this task id")
}

// runCmd plans and runs a task
var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Plan and run a task",
	Long: `Plan the task, run every step and print the final answer.

When a step asks the user to choose, the run stops and prints the options
with a token. Answer with 'taskctl resume'.

Examples:
  taskctl run "Summarize current AI trends"
  taskctl run --agent alice "Write a blog post about agents"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := strings.Join(args, " ")
		return withServices(cmd.Context(), func(svc *services.Services) error {
			out, err := svc.Orchestrator.Run(cmd.Context(), plan.Request{
				AgentID: agentID,
				TaskID:  runTaskID,
				Task:    task,
			})
			if out != nil {
				renderOutcome(cmd.OutOrStdout(), out)
			}
			return err
		})
	},
}

// resumeCmd answers a pending confirmation
var resumeCmd = &cobra.Command{
	Use:   "resume <task-id> <token> <choice>",
	Short: "Answer a task's pending confirmation and continue it",
	Long: `Answer the pending confirmation of a suspended task. The choice is an
option number or a free-text reply containing one.

Examples:
  taskctl resume 3f2a... 9c1e... 2`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		choice := strings.Join(args[2:], " ")
		return withServices(cmd.Context(), func(svc *services.Services) error {
			out, err := svc.Orchestrator.Resume(cmd.Context(), agentID, args[0], args[1], choice)
			if out != nil {
				renderOutcome(cmd.OutOrStdout(), out)
			}
			return err
		})
	},
}

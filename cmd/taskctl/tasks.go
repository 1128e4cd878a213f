package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taskd/internal/services"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
)

var (
	// showFile prints one artifact in full instead of the summary
	showFile string
	// exportOutput is the export destination, stdout when empty
	exportOutput string
	// importOverwrite replaces an existing task on import
	importOverwrite bool
	// compressBudget overrides compression.budget
	compressBudget int
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(watchCmd)

	showCmd.Flags().StringVarP(&showFile, "file", "f", "", "artifact to print (todo, history, resource, summary, scratchpad)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "replace an existing task")
	compressCmd.Flags().IntVar(&compressBudget, "budget", 0, "total character budget (default from config)")
}

// listCmd lists an agent's tasks
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd.Context(), func(svc *services.Services) error {
			list, err := svc.Store.ListTasks(cmd.Context(), agentID)
			if err != nil {
				return err
			}
			renderTaskList(cmd.OutOrStdout(), list)
			return nil
		})
	},
}

// showCmd prints a task summary or one artifact
var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task summary or one of its artifacts",
	Long: `Show a task's status with a preview of each artifact, or print one
artifact in full with --file.

Examples:
  taskctl show 3f2a...
  taskctl show 3f2a... --file todo`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *services.Services) error {
			if showFile != "" {
				ft, err := taskcontext.ParseFileType(showFile)
				if err != nil {
					return err
				}
				tc, err := svc.Store.LoadTask(cmd.Context(), agentID, args[0])
				if err != nil {
					return err
				}
				f := tc.File(ft)
				if f == nil {
					return fmt.Errorf("task %s has no %s artifact", args[0], ft)
				}
				_, err = io.WriteString(cmd.OutOrStdout(), f.Content)
				return err
			}
			sum, err := svc.Store.GetSummary(cmd.Context(), agentID, args[0])
			if err != nil {
				return err
			}
			renderSummary(cmd.OutOrStdout(), sum)
			return nil
		})
	},
}

// exportCmd writes a task as one JSON document
var exportCmd = &cobra.Command{
	Use:   "export <task-id>",
	Short: "Export a task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *services.Services) error {
			data, err := svc.Store.Export(cmd.Context(), agentID, args[0])
			if err != nil {
				return err
			}
			if exportOutput == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(exportOutput, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", exportOutput, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %s to %s\n", args[0], exportOutput)
			return nil
		})
	},
}

// importCmd restores a task from an exported document
var importCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Import a task from an exported JSON document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return withServices(cmd.Context(), func(svc *services.Services) error {
			tc, err := svc.Store.Import(cmd.Context(), agentID, data, importOverwrite)
			if err != nil {
				if errors.Is(err, taskcontext.ErrTaskExists) {
					return fmt.Errorf("%w (use --overwrite to replace it)", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s: %s\n", tc.TaskID, tc.Title)
			return nil
		})
	},
}

// compressCmd shrinks a task's artifacts to fit a budget
var compressCmd = &cobra.Command{
	Use:   "compress <task-id>",
	Short: "Summarize a task's artifacts to fit a character budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *services.Services) error {
			budget := compressBudget
			if budget <= 0 {
				budget = svc.Config.Compression.Budget
			}
			res, err := svc.Store.Compress(cmd.Context(), agentID, args[0], budget, svc.Compression)
			if err != nil {
				return err
			}
			renderCompress(cmd.OutOrStdout(), args[0], res)
			return nil
		})
	},
}

// watchCmd follows artifact changes of a task
var watchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Print artifact changes of a task as they happen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *services.Services) error {
			changes, err := svc.Store.Watch(cmd.Context(), agentID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s (ctrl-c to stop)\n", args[0])
			for ch := range changes {
				renderChange(cmd.OutOrStdout(), ch)
			}
			return nil
		})
	},
}

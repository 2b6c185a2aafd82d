package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [job_id]",
	Short: "List recent runs of a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("Control secret not found. Please set it using the --token flag or the AUTOPLANE_TOKEN environment variable")
			return
		}

		client := NewSchedulerClient(url, token)
		runs, err := client.ListRuns(jobID, runsLimit)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		if len(runs) == 0 {
			cmd.Println("No runs recorded")
			return
		}

		for _, run := range runs {
			line := colorizeStatus(run.Status)
			cmd.Printf("%s  %s  %s%s%s  attempt %d  %s\n",
				line,
				run.StartedAt.Format(time.RFC3339),
				colorCyan, formatDuration(time.Duration(run.DurationMs)*time.Millisecond), colorReset,
				run.Attempt,
				run.Source)
			if run.Summary != nil {
				cmd.Printf("    %s%s%s\n", colorDim, *run.Summary, colorReset)
			}
			if run.Error != nil {
				cmd.Printf("    %s%s%s\n", colorRed, *run.Error, colorReset)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "l", 20, "Maximum number of runs to list")
}

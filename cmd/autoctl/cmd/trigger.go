package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [job_id]",
	Short: "Run a job immediately",
	Long: `Claim and run a job right now, outside its schedule.

The scheduler responds 409 when another runner already holds the job's lease;
autoctl surfaces that as "already running".`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("Control secret not found. Please set it using the --token flag or the AUTOPLANE_TOKEN environment variable")
			return
		}

		client := NewSchedulerClient(url, token)
		result, err := client.TriggerJob(jobID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				switch apiErr.StatusCode {
				case 404:
					cmd.Printf("Job %s not found\n", jobID)
				case 409:
					cmd.Printf("Job %s is already running\n", jobID)
				default:
					cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
				}
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Run started!\nRun ID: %s\n", result.RunID)
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}

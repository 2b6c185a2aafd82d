package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pokeCmd = &cobra.Command{
	Use:   "poke",
	Short: "Nudge the scheduler to re-check due jobs",
	Long: `Ask the scheduler to wake up and re-check which jobs are due.

Useful after editing job rows out of band: the wake-loop sleeps until the
next known due time, so it will not notice an earlier schedule on its own.`,
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("Control secret not found. Please set it using the --token flag or the AUTOPLANE_TOKEN environment variable")
			return
		}

		client := NewSchedulerClient(url, token)
		if err := client.Poke(); err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Println("✓ Scheduler poked")
	},
}

func init() {
	rootCmd.AddCommand(pokeCmd)
}

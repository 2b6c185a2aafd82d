package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "autoctl",
	Short: "Autoctl is a command line tool for operating the autoplane scheduler",
	Long: `autoctl is the command-line interface for the autoplane automation-job scheduler.

Autoplane runs natural-language automation jobs against per-site workspaces on a
schedule (cron), at a fixed time (one-time), or on demand (webhook). Each running
scheduler exposes a small control API; autoctl talks to it.

Common workflows:

  Register a cron job:
    autoctl create --site my-site --name "daily-digest" --trigger cron \
      --cron "0 9 * * *" --tz "Europe/Istanbul" --prompt "Summarize yesterday's inbox"

  Trigger a job right now:
    autoctl trigger <job-id>

  Check a job's lifecycle state:
    autoctl status <job-id>

  Inspect recent runs:
    autoctl runs <job-id> --limit 10

  Nudge the wake-loop after editing rows out of band:
    autoctl poke

Configuration:
  Set the API endpoint and secret via environment variables or a config file:
    AUTOPLANE_API_URL   Scheduler control API endpoint (default: http://localhost:6170)
    AUTOPLANE_TOKEN     Control secret for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".autoctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".autoctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "AUTOPLANE_VARNAME"
	viper.SetEnvPrefix("AUTOPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.autoctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6170", "Scheduler control API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Control secret for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

package cmd

import (
	"time"

	"autoplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new automation job",
	Long: `Register a new automation job with the scheduler.

Example:
  autoctl create --site my-site --name "daily-digest" --trigger cron --cron "0 9 * * *" --prompt "Summarize yesterday's inbox"
  autoctl create --site my-site --name "launch-check" --trigger one_time --at "2026-09-15T08:00:00Z" --prompt "Verify the launch checklist"
  autoctl create --site my-site --name "on-demand-report" --trigger webhook --prompt "Generate the weekly report"`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		site, _ := flags.GetString("site")
		name, _ := flags.GetString("name")
		trigger, _ := flags.GetString("trigger")
		cronExpr, _ := flags.GetString("cron")
		tz, _ := flags.GetString("tz")
		at, _ := flags.GetString("at")
		prompt, _ := flags.GetString("prompt")
		model, _ := flags.GetString("model")
		thinking, _ := flags.GetBool("thinking")
		timeout, _ := flags.GetInt("timeout")
		skills, _ := flags.GetStringSlice("skills")
		responseTool, _ := flags.GetString("response-tool")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("Control secret not found. Please set it using the --token flag or the AUTOPLANE_TOKEN environment variable")
			return
		}

		if site == "" {
			cmd.Println("Error: --site is required")
			return
		}

		if name == "" {
			cmd.Println("Error: --name is required")
			return
		}

		if prompt == "" {
			cmd.Println("Error: --prompt is required")
			return
		}

		req := api.CreateJobRequest{
			SiteID:         site,
			Name:           name,
			TriggerType:    trigger,
			CronSchedule:   cronExpr,
			CronTimezone:   tz,
			ActionPrompt:   prompt,
			ActionModel:    model,
			ActionThinking: thinking,
			TimeoutSeconds: timeout,
			Skills:         skills,
			ResponseTool:   responseTool,
		}

		if at != "" {
			runAt, err := time.Parse(time.RFC3339, at)
			if err != nil {
				cmd.Printf("Error: --at must be an RFC3339 timestamp: %v\n", err)
				return
			}
			req.RunAt = &runAt
		}

		client := NewSchedulerClient(url, token)
		result, err := client.CreateJob(req)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Job created!\nID: %s\nName: %s\n", result.JobID, name)
		if result.NextRunAt != nil {
			cmd.Printf("Next run: %s\n", result.NextRunAt.Format(time.RFC3339))
		}
	},
}

func init() {
	flags := createCmd.Flags()
	flags.StringP("site", "s", "", "Site whose workspace the job runs in (required)")
	flags.StringP("name", "n", "", "Name of the job (required)")
	flags.String("trigger", "cron", "Trigger type: cron, webhook or one_time")
	flags.String("cron", "", "Cron schedule, five fields (cron trigger)")
	flags.String("tz", "", "IANA timezone for the cron schedule (default UTC)")
	flags.String("at", "", "RFC3339 run time (one_time trigger)")
	flags.StringP("prompt", "p", "", "Natural-language action prompt (required)")
	flags.String("model", "", "Model override for the agent (optional)")
	flags.Bool("thinking", false, "Enable extended thinking for the agent")
	flags.Int("timeout", 0, "Per-run timeout in seconds (optional)")
	flags.StringSlice("skills", []string{}, "Skill names to load into the agent")
	flags.String("response-tool", "", "Tool the agent must invoke to report its result")

	rootCmd.AddCommand(createCmd)
}

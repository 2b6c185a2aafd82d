package cmd

import (
	"fmt"
	"time"

	"autoplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get lifecycle state of a job",
	Long:  `Retrieve a job's lifecycle state: whether it is active, its current status (idle, running, disabled), next scheduled run, and the outcome of its last run.`,
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
		job, err := client.GetJob(jobID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		printStatus(cmd, job)
	},
}

func printStatus(cmd *cobra.Command, job *api.JobStatusResponse) {
	icon := statusIcon(job.Status)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s        %s\n", colorDim, colorReset, job.ID)
	cmd.Printf("%sName:%s      %s\n", colorDim, colorReset, job.Name)
	cmd.Printf("%sSite:%s      %s\n", colorDim, colorReset, job.SiteID)
	cmd.Printf("%sTrigger:%s   %s\n", colorDim, colorReset, job.TriggerType)
	cmd.Printf("%sStatus:%s    %s\n", colorDim, colorReset, colorizeStatus(job.Status))

	if job.IsActive {
		cmd.Printf("%sActive:%s    %syes%s\n", colorDim, colorReset, colorGreen, colorReset)
	} else {
		cmd.Printf("%sActive:%s    %sno%s\n", colorDim, colorReset, colorRed, colorReset)
	}

	cmd.Printf("%sNext run:%s  %s\n", colorDim, colorReset, formatTimeWithRelative(job.NextRunAt))
	cmd.Printf("%sLast run:%s  %s\n", colorDim, colorReset, formatTimeWithRelative(job.LastRunAt))

	if job.LastRunStatus != nil {
		cmd.Printf("%sLast result:%s %s\n", colorDim, colorReset, colorizeStatus(*job.LastRunStatus))
	}
	if job.LastRunDurationMs != nil {
		cmd.Printf("%sDuration:%s  %s\n", colorDim, colorReset,
			formatDuration(time.Duration(*job.LastRunDurationMs)*time.Millisecond))
	}
	if job.LastRunError != nil {
		cmd.Printf("%sError:%s     %s%s%s\n", colorDim, colorReset, colorRed, *job.LastRunError, colorReset)
	}
	if job.ConsecutiveFailures > 0 {
		cmd.Printf("%sFailures:%s  %s%d in a row%s\n", colorDim, colorReset, colorYellow, job.ConsecutiveFailures, colorReset)
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "idle", "success":
		return colorGreen + "✓" + colorReset
	case "running":
		return colorYellow + "⏳" + colorReset
	case "disabled", "failure":
		return colorRed + "✗" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "idle", "success":
		return icon + " " + colorGreen + status + colorReset
	case "running":
		return icon + " " + colorYellow + status + colorReset
	case "disabled", "failure":
		return icon + " " + colorRed + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	if t.After(time.Now()) {
		return fmt.Sprintf("%s %s(in %s)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(*t), colorReset)
	}
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(*t), colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)
	if duration < 0 {
		duration = -duration
	}

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

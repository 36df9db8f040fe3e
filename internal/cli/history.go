package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse stored analyses",
}

var historyRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := apiClientFromFlags(cmd)
		limit, _ := cmd.Flags().GetInt("limit")

		analyses, err := client.RecentAnalyses(limit)
		if err != nil {
			return fmt.Errorf("listing analyses failed: %w", err)
		}

		if outputFormat(cmd) == "json" {
			return printJSON(analyses)
		}
		if len(analyses) == 0 {
			printInfo("No stored analyses.")
			return nil
		}
		for _, a := range analyses {
			fmt.Printf("%s  %-8s  %-20s  %s\n",
				a.CreatedAt.Format("2006-01-02 15:04"), a.RiskLevel, a.Intent, a.Query)
			fmt.Printf("    id: %s\n", a.ID)
		}
		return nil
	},
}

var historyTrendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show daily analysis volume and risk trends",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := apiClientFromFlags(cmd)
		days, _ := cmd.Flags().GetInt("days")

		trends, err := client.RiskTrends(days)
		if err != nil {
			return fmt.Errorf("fetching trends failed: %w", err)
		}

		if outputFormat(cmd) == "json" {
			return printJSON(trends)
		}
		if len(trends) == 0 {
			printInfo("No analyses in the requested period.")
			return nil
		}
		fmt.Printf("%-12s  %8s  %10s  %12s\n", "DAY", "TOTAL", "HIGH RISK", "AVG MS")
		for _, p := range trends {
			fmt.Printf("%-12s  %8d  %10d  %12.0f\n",
				p.Day.Format("2006-01-02"), p.Total, p.HighRisk, p.AvgDurationMS)
		}
		return nil
	},
}

var historyGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one stored analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := apiClientFromFlags(cmd)

		result, err := client.AnalysisByID(args[0])
		if err != nil {
			return fmt.Errorf("fetching analysis failed: %w", err)
		}

		if outputFormat(cmd) == "json" {
			return printJSON(result)
		}
		fmt.Printf("Query: %s\n\n", result.Query)
		printAnalysis(result)
		return nil
	},
}

func init() {
	historyRecentCmd.Flags().Int("limit", 10, "maximum analyses to list")
	historyTrendsCmd.Flags().Int("days", 7, "number of days to cover")
	addServerFlags(historyRecentCmd)
	addServerFlags(historyTrendsCmd)
	addServerFlags(historyGetCmd)

	historyCmd.AddCommand(historyRecentCmd)
	historyCmd.AddCommand(historyTrendsCmd)
	historyCmd.AddCommand(historyGetCmd)
	rootCmd.AddCommand(historyCmd)
}

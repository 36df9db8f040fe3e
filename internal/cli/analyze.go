package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/athena-ops/athena-stack/internal/models"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [query]",
	Short: "Run an analysis against a running athena service",
	Long: `Sends a natural language query to the analysis API and prints the
result. Use --combined to run every agent regardless of intent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

var recommendCmd = &cobra.Command{
	Use:   "recommend [query]",
	Short: "Get actionable recommendations for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecommend,
}

var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "List the intent categories the service understands",
	RunE:  runIntents,
}

func init() {
	analyzeCmd.Flags().Int("hours", 0, "time window in hours (default: server default)")
	analyzeCmd.Flags().StringSlice("types", nil, "restrict to specific agents (logs, metrics, security, performance)")
	analyzeCmd.Flags().Bool("combined", false, "run all agents")
	addServerFlags(analyzeCmd)
	addServerFlags(recommendCmd)
	addServerFlags(intentsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(intentsCmd)
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "service URL (default: http://localhost:<server.port>)")
	cmd.Flags().String("token", "", "bearer token for authenticated services")
}

func apiClientFromFlags(cmd *cobra.Command) *APIClient {
	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL == "" {
		serverURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	token, _ := cmd.Flags().GetString("token")
	return NewAPIClient(serverURL, token)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	client := apiClientFromFlags(cmd)
	hours, _ := cmd.Flags().GetInt("hours")
	types, _ := cmd.Flags().GetStringSlice("types")
	combined, _ := cmd.Flags().GetBool("combined")

	req := models.AnalysisRequest{
		Query:           strings.Join(args, " "),
		TimeWindowHours: hours,
		AnalysisTypes:   types,
	}

	var (
		result *models.AnalysisResult
		err    error
	)
	if combined {
		result, err = client.AnalyzeCombined(req)
	} else {
		result, err = client.Analyze(req)
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if outputFormat(cmd) == "json" {
		return printJSON(result)
	}
	printAnalysis(result)
	return nil
}

func runRecommend(cmd *cobra.Command, args []string) error {
	client := apiClientFromFlags(cmd)

	recs, err := client.Recommendations(models.AnalysisRequest{Query: strings.Join(args, " ")})
	if err != nil {
		return fmt.Errorf("recommendations failed: %w", err)
	}

	if outputFormat(cmd) == "json" {
		return printJSON(recs)
	}
	if len(recs) == 0 {
		printInfo("No recommendations.")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("  [%s] %s\n", riskString(r.Priority), r.Action)
		if r.Reason != "" {
			fmt.Printf("         %s\n", r.Reason)
		}
	}
	return nil
}

func runIntents(cmd *cobra.Command, args []string) error {
	client := apiClientFromFlags(cmd)

	intents, err := client.Intents()
	if err != nil {
		return fmt.Errorf("listing intents failed: %w", err)
	}

	if outputFormat(cmd) == "json" {
		return printJSON(intents)
	}
	for category, examples := range intents {
		fmt.Printf("%s\n", category)
		for _, example := range examples {
			fmt.Printf("  e.g. %q\n", example)
		}
	}
	return nil
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("output")
	return format
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAnalysis(result *models.AnalysisResult) {
	fmt.Printf("Risk level: %s\n", riskString(result.RiskLevel))
	fmt.Printf("Intent:     %s\n\n", result.Intent)
	fmt.Println(result.Summary)

	if len(result.Insights) > 0 {
		fmt.Println("\nInsights:")
		for _, insight := range result.Insights {
			fmt.Printf("  [%d] %s\n", insight.Importance, insight.Summary)
		}
	}
	if len(result.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, rec := range result.Recommendations {
			fmt.Printf("  [%s] %s\n", riskString(rec.Priority), rec.Action)
		}
	}
	fmt.Printf("\nAnalysis ID: %s (%dms)\n", result.ID, result.DurationMS)
}

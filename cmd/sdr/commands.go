package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/sdr/internal/config"
	"github.com/kalambet/sdr/internal/evaluation"
	"github.com/kalambet/sdr/internal/scoring"
	"github.com/kalambet/sdr/internal/search"
	"github.com/kalambet/sdr/internal/storage"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// --- leads ---

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Manage leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, _ := cmd.Flags().GetString("stage")
		query, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		if stage != "" {
			params.Set("stage", stage)
		}
		if query != "" {
			params.Set("search", query)
		}
		resp, err := client.get(cmd.Context(), "/api/leads/?"+params.Encode())
		if err != nil {
			return err
		}

		var leads []storage.Lead
		if err := decodeJSON(resp, &leads); err != nil {
			return err
		}
		if len(leads) == 0 {
			fmt.Fprintln(stdout, "No leads found.")
			return nil
		}

		for _, l := range leads {
			fmt.Fprintf(stdout, "%s  %-24s %-24s %-18s %s\n",
				colorize(colorCyan, fmt.Sprintf("%5d", l.ID)),
				truncate(l.FullName(), 24),
				truncate(l.CompanyName, 24),
				l.PipelineStage,
				colorize(scoreColor(l.LeadScore), fmt.Sprintf("%.1f", l.LeadScore)),
			)
		}
		return nil
	},
}

var leadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a lead with its interactions and messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/leads/%d", id))
		if err != nil {
			return err
		}
		var lead any
		if err := decodeJSON(resp, &lead); err != nil {
			return err
		}
		return printJSON(lead)
	},
}

var leadsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a lead",
	Long: `Create a lead.

Examples:
  sdr leads create --first Ann --last Lee --email ann@acme.io --company Acme --title CTO`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{}
		for flag, field := range map[string]string{
			"first":    "first_name",
			"last":     "last_name",
			"email":    "email",
			"company":  "company_name",
			"title":    "job_title",
			"phone":    "phone",
			"size":     "company_size",
			"industry": "industry",
			"website":  "company_website",
			"linkedin": "linkedin_url",
			"notes":    "notes",
		} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				req[field] = v
			}
		}
		for _, f := range []string{"first_name", "last_name", "email", "company_name"} {
			if _, ok := req[f]; !ok {
				return fmt.Errorf("--first, --last, --email and --company are required")
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/leads/", req)
		if err != nil {
			return err
		}
		var lead storage.Lead
		if err := decodeJSON(resp, &lead); err != nil {
			return err
		}

		printSuccess("Created lead %d (%s)", lead.ID, lead.FullName())
		return nil
	},
}

var leadsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a lead and its activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), fmt.Sprintf("/api/leads/%d", id))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s", result["message"])
		return nil
	},
}

var leadsQualifyCmd = &cobra.Command{
	Use:   "qualify <id>",
	Short: "Qualify a lead with the completion model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Qualifying lead %d...", id)
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/api/leads/%d/qualify", id), nil)
		if err != nil {
			return err
		}
		var q scoring.Qualification
		if err := decodeJSON(resp, &q); err != nil {
			return err
		}

		if q.Fallback {
			printWarning("model reply was not valid JSON; default assessment used")
		}
		if q.Score != nil {
			printStatus("Score", "%.0f/100", *q.Score)
		}
		if q.RecommendedStage != nil {
			printStatus("Recommended stage", "%s", *q.RecommendedStage)
		}
		printList("Reasons", q.Reasons)
		printList("Pain points", q.PainPoints)
		printList("Next actions", q.NextActions)
		return nil
	},
}

var leadsScoreCmd = &cobra.Command{
	Use:   "score <id>",
	Short: "Score a lead against the active criteria",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		rawIDs, _ := cmd.Flags().GetInt64Slice("criteria")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var body any
		if len(rawIDs) > 0 {
			body = map[string]any{"criteria_ids": rawIDs}
		}
		printStep("Scoring lead %d...", id)
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/api/leads/%d/score", id), body)
		if err != nil {
			return err
		}
		var res scoring.ScoreResult
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}

		if res.Fallback {
			printWarning("model reply was not valid JSON; averaged default scores used")
		}
		printStatus("Total", "%s", colorize(scoreColor(res.TotalScore), fmt.Sprintf("%.2f", res.TotalScore)))
		if res.WeightedScore != nil {
			printStatus("Weighted", "%.2f", *res.WeightedScore)
		}
		for name, s := range res.CriteriaScores {
			printStatus("  "+name, "%.1f", s)
		}
		printList("Recommendations", res.Recommendations)
		return nil
	},
}

var leadsPipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Show lead counts per pipeline stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		stats, err := fetchPipeline(cmd.Context(), client)
		if err != nil {
			return err
		}
		for _, st := range storage.PipelineStages {
			printStatus(string(st), "%d", stats[st])
		}
		return nil
	},
}

func printList(label string, items []string) {
	if len(items) == 0 {
		return
	}
	printStatus(label, "")
	for _, it := range items {
		fmt.Fprintf(stdout, "    - %s\n", it)
	}
}

func init() {
	leadsListCmd.Flags().String("stage", "", "filter by pipeline stage")
	leadsListCmd.Flags().String("search", "", "filter by name, company or email")
	leadsListCmd.Flags().Int("limit", 100, "maximum number of leads")

	for _, f := range []struct{ name, usage string }{
		{"first", "first name"},
		{"last", "last name"},
		{"email", "email address"},
		{"company", "company name"},
		{"title", "job title"},
		{"phone", "phone number"},
		{"size", "company size"},
		{"industry", "industry"},
		{"website", "company website"},
		{"linkedin", "LinkedIn profile URL"},
		{"notes", "free-form notes"},
	} {
		leadsCreateCmd.Flags().String(f.name, "", f.usage)
	}

	leadsScoreCmd.Flags().Int64Slice("criteria", nil, "criterion ids to score against (default: all active)")

	leadsCmd.AddCommand(leadsListCmd, leadsShowCmd, leadsCreateCmd, leadsDeleteCmd,
		leadsQualifyCmd, leadsScoreCmd, leadsPipelineCmd)
}

// --- criteria ---

var criteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "Manage scoring criteria",
}

var criteriaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scoring criteria",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/scoring/criteria/?active_only=%t", !all))
		if err != nil {
			return err
		}
		var criteria []storage.ScoringCriterion
		if err := decodeJSON(resp, &criteria); err != nil {
			return err
		}
		if len(criteria) == 0 {
			fmt.Fprintln(stdout, "No scoring criteria. Run 'sdr criteria seed' to create the defaults.")
			return nil
		}

		for _, c := range criteria {
			state := ""
			if !c.IsActive {
				state = colorize(colorYellow, " (inactive)")
			}
			fmt.Fprintf(stdout, "%s  %-24s weight %.1f%s\n",
				colorize(colorCyan, fmt.Sprintf("%4d", c.ID)), c.Name, c.Weight, state)
		}
		return nil
	},
}

var criteriaSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the default scoring criteria",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/scoring/criteria/defaults", nil)
		if err != nil {
			return err
		}
		var result struct {
			Message string `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s", result.Message)
		return nil
	},
}

func init() {
	criteriaListCmd.Flags().Bool("all", false, "include inactive criteria")
	criteriaCmd.AddCommand(criteriaListCmd, criteriaSeedCmd)
}

// --- message ---

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Draft outreach messages",
}

var messageGenerateCmd = &cobra.Command{
	Use:   "generate <lead-id>",
	Short: "Generate a personalized message for a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		messageType, _ := cmd.Flags().GetString("type")
		instructions, _ := cmd.Flags().GetString("instructions")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/api/leads/%d/messages/generate", id), map[string]any{
			"message_type":        messageType,
			"custom_instructions": instructions,
		})
		if err != nil {
			return err
		}
		var msg storage.Message
		if err := decodeJSON(resp, &msg); err != nil {
			return err
		}

		fmt.Fprintln(stdout, msg.Content)
		printSuccess("Saved as message %d", msg.ID)
		return nil
	},
}

func init() {
	messageGenerateCmd.Flags().String("type", "email", "message type (email, linkedin, follow_up, ...)")
	messageGenerateCmd.Flags().String("instructions", "", "extra guidance for the draft")
	messageCmd.AddCommand(messageGenerateCmd)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search leads, interactions and messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/api/search?query=%s&limit=%d", url.QueryEscape(query), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var results []search.Result
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(stdout, "No results found.")
			return nil
		}

		for _, r := range results {
			fmt.Fprintf(stdout, "\n%s [%s #%d]\n", colorize(colorBold, r.Title), r.Type, r.ID)
			fmt.Fprintf(stdout, "  %s\n", r.Content)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", search.DefaultLimit, "maximum number of results")
}

// --- eval ---

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run and inspect prompt evaluations",
}

var evalRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run evaluation cases from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		cases, err := evaluation.LoadCases(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Running %d evaluation cases...", len(cases))
		resp, err := client.post(cmd.Context(), "/api/evaluations/run", map[string]any{"test_cases": cases})
		if err != nil {
			return err
		}
		return printEvaluations(resp)
	},
}

var evalDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Run the built-in evaluation cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Running default evaluation cases...")
		resp, err := client.post(cmd.Context(), "/api/evaluations/run-defaults", nil)
		if err != nil {
			return err
		}
		return printEvaluations(resp)
	},
}

var evalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize recorded evaluations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/api/evaluations/summary"
		if limit > 0 {
			path += "?limit=" + strconv.Itoa(limit)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var sum storage.EvaluationSummary
		if err := decodeJSON(resp, &sum); err != nil {
			return err
		}

		printStatus("Total", "%d", sum.TotalTests)
		printStatus("Passed", "%d", sum.PassedTests)
		printStatus("Failed", "%d", sum.FailedTests)
		if sum.AverageScore != nil {
			printStatus("Average score", "%.3f", *sum.AverageScore)
		}
		if sum.AverageExecutionTimeMS != nil {
			printStatus("Average time", "%.0f ms", *sum.AverageExecutionTimeMS)
		}
		return nil
	},
}

func printEvaluations(resp *http.Response) error {
	var results []storage.Evaluation
	if err := decodeJSON(resp, &results); err != nil {
		return err
	}

	passed := 0
	for _, r := range results {
		mark := colorize(colorRed, "FAIL")
		switch {
		case r.Passed:
			passed++
			mark = colorize(colorGreen, "PASS")
		case r.Score == nil:
			mark = colorize(colorYellow, "----")
		}
		score := "n/a"
		if r.Score != nil {
			score = fmt.Sprintf("%.3f", *r.Score)
		}
		fmt.Fprintf(stdout, "%s  %-32s score %-6s %5d ms\n", mark, truncate(r.TestName, 32), score, r.ExecutionTimeMS)
	}
	if len(results) > 0 {
		printStatus("Run", "%s", results[0].RunID)
	}
	printStatus("Passed", "%d/%d", passed, len(results))
	return nil
}

func init() {
	evalRunCmd.Flags().String("file", "", "YAML file of test cases")
	evalSummaryCmd.Flags().Int("limit", 0, "only summarize the newest N records")
	evalCmd.AddCommand(evalRunCmd, evalDefaultsCmd, evalSummaryCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Valid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if key == "completion.api_key" {
			printSuccess("Stored %s in the secret store", key)
			return nil
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}

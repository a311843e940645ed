package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/basisfind/basisfind/internal/config"
	"github.com/basisfind/basisfind/internal/report"
	"github.com/basisfind/basisfind/internal/retrieval"
	"github.com/basisfind/basisfind/internal/storage"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Ingest basis reports from a directory",
	Long: `Ingest basis reports from a directory.

Walks the directory recursively, extracts header fields and sections from
every supported document (PDF, DOCX, TXT, MD), and rebuilds the search index.

Examples:
  basisfind ingest ~/reports
  basisfind ingest ~/reports --force
  basisfind ingest --skip-reindex`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		skipReindex, _ := cmd.Flags().GetBool("skip-reindex")

		req := map[string]any{
			"force":        force,
			"skip_reindex": skipReindex,
		}
		if len(args) == 1 {
			req["dir"] = args[0]
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/ingest", req)
		if err != nil {
			return err
		}

		var result struct {
			Processed  int    `json:"processed"`
			Skipped    int    `json:"skipped"`
			Failed     int    `json:"failed"`
			Indexed    int    `json:"indexed"`
			IndexError string `json:"index_error"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Ingested %d reports (%d skipped, %d failed)", result.Processed, result.Skipped, result.Failed)
		if result.IndexError != "" {
			printWarning("Indexing failed: %s", result.IndexError)
		} else if !skipReindex {
			printSuccess("Indexed %d reports", result.Indexed)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().Bool("force", false, "reprocess files even if unchanged")
	ingestCmd.Flags().Bool("skip-reindex", false, "skip rebuilding the search index")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over ingested reports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/search", map[string]any{
			"query":     query,
			"top_k":     limit,
			"threshold": threshold,
		})
		if err != nil {
			return err
		}

		var result struct {
			Count   int                `json:"count"`
			Results []retrieval.Result `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Count == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for _, r := range result.Results {
			name := r.ProjectName
			if name == "" {
				name = r.FileName
			}
			fmt.Printf("\n%s %s [similarity: %.3f, trust: %.2f]\n",
				colorize(colorBold, fmt.Sprintf("%d.", r.Rank)),
				colorize(colorCyan, name),
				r.SimilarityScore,
				r.TrustScore,
			)
			if len(r.TrustBadges) > 0 {
				fmt.Printf("   %s\n", strings.Join(r.TrustBadges, " | "))
			}
			fmt.Printf("   %s  (id %d)\n", r.SourcePath, r.ID)
			if r.Snippet != "" {
				fmt.Printf("   %s\n", r.Snippet)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 10, "maximum number of results")
	searchCmd.Flags().Float64("threshold", 0.3, "minimum similarity score in [0,1]")
}

// --- reindex ---

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from stored reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reindex", nil)
		if err != nil {
			return err
		}

		var result struct {
			Indexed int `json:"indexed"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed %d reports", result.Indexed)
		return nil
	},
}

// --- reports ---

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage ingested reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/reports")
		if err != nil {
			return err
		}

		var reports []report.Report
		if err := decodeJSON(resp, &reports); err != nil {
			return err
		}

		if len(reports) == 0 {
			fmt.Println("No reports ingested.")
			return nil
		}

		for _, r := range reports {
			name := r.ProjectName
			if name == "" {
				name = r.FileName
			}
			if len(name) > 60 {
				name = name[:60] + "..."
			}
			fmt.Printf("%s  %.2f  %8s  %-10s  %s\n",
				colorize(colorCyan, fmt.Sprintf("%5d", r.ID)),
				r.TrustScore,
				humanSize(r.FileSize),
				relativeTime(r.IndexedAt),
				name,
			)
		}
		return nil
	},
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/reports/"+args[0])
		if err != nil {
			return err
		}

		var rep any
		if err := decodeJSON(resp, &rep); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	},
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a report and its embeddings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete report %s and its embeddings. Use --confirm to proceed.", args[0])
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/reports/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted report %s", args[0])
		return nil
	},
}

var reportsFeedbackCmd = &cobra.Command{
	Use:   "feedback <id>",
	Short: "Record feedback on a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		up, _ := cmd.Flags().GetBool("up")
		down, _ := cmd.Flags().GetBool("down")
		query, _ := cmd.Flags().GetString("query")
		note, _ := cmd.Flags().GetString("note")

		if up == down {
			return fmt.Errorf("exactly one of --up or --down is required")
		}
		kind := storage.FeedbackThumbsUp
		if down {
			kind = storage.FeedbackThumbsDown
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reports/"+args[0]+"/feedback", map[string]any{
			"kind":  kind,
			"query": query,
			"note":  note,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Recorded %s for report %s", kind, args[0])
		return nil
	},
}

func init() {
	reportsDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")
	reportsFeedbackCmd.Flags().Bool("up", false, "thumbs up")
	reportsFeedbackCmd.Flags().Bool("down", false, "thumbs down")
	reportsFeedbackCmd.Flags().String("query", "", "the search query this feedback relates to")
	reportsFeedbackCmd.Flags().String("note", "", "free-form note")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsDeleteCmd)
	reportsCmd.AddCommand(reportsFeedbackCmd)
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/stats")
		if err != nil {
			return err
		}

		var st struct {
			Reports       int     `json:"reports"`
			Embeddings    int     `json:"embeddings"`
			Feedback      int     `json:"feedback"`
			Searches      int     `json:"searches"`
			AvgTrustScore float64 `json:"average_trust_score"`
			Index         struct {
				Ready bool   `json:"ready"`
				Size  int    `json:"size"`
				Model string `json:"model"`
			} `json:"index"`
		}
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}

		printStatus("Reports", "%d", st.Reports)
		printStatus("Embeddings", "%d", st.Embeddings)
		printStatus("Feedback", "%d", st.Feedback)
		printStatus("Searches", "%d", st.Searches)
		printStatus("Avg trust", "%.2f", st.AvgTrustScore)
		if st.Index.Ready {
			printStatus("Index", "ready (%d vectors, model %s)", st.Index.Size, st.Index.Model)
		} else {
			printStatus("Index", "not built")
		}
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent search queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/search-history?limit=%d", limit))
		if err != nil {
			return err
		}

		var queries []storage.SearchQuery
		if err := decodeJSON(resp, &queries); err != nil {
			return err
		}

		if len(queries) == 0 {
			fmt.Println("No searches recorded.")
			return nil
		}

		for _, q := range queries {
			fmt.Printf("%s  %s  (%d results)\n",
				q.CreatedAt.Format("2006-01-02 15:04"),
				colorize(colorBold, q.Query),
				q.ResultCount,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of queries to list")
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

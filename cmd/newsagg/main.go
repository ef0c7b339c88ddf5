package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marianbasti/news-aggregator/internal/collect"
	"github.com/marianbasti/news-aggregator/internal/compare"
	"github.com/marianbasti/news-aggregator/internal/config"
	"github.com/marianbasti/news-aggregator/internal/database"
	"github.com/marianbasti/news-aggregator/internal/pipeline"
	"github.com/marianbasti/news-aggregator/internal/relate"
	"github.com/marianbasti/news-aggregator/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newsagg",
	Short:   "Multi-source news analysis",
	Long:    "newsagg collects news from feeds and APIs, triages each article with an LLM, escalates suspicious coverage into deep bias analysis, and compares how different outlets report the same story.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if strings.EqualFold(cfg.Logging.Level, "debug") {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(triageCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(relatedCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newsagg", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newsagg/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, API keys, and LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and pipeline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Articles:")
		fmt.Printf("  Total collected: %d\n", stats.TotalArticles)
		fmt.Printf("  Pending triage: %d\n", stats.Pending)
		fmt.Printf("  Triaged: %d\n", stats.Triaged)
		fmt.Printf("  Triage failures: %d\n", stats.Failed)
		fmt.Println("\nDeep analysis:")
		fmt.Printf("  Escalated: %d\n", stats.Escalated)
		fmt.Printf("  Completed: %d\n", stats.DeepDone)
		fmt.Printf("  Failed (retryable): %d\n", stats.DeepFailed)
		fmt.Println("\nComparisons:")
		fmt.Printf("  Generated: %d\n", stats.Comparisons)
		return nil
	},
}

// --- collect command ---

var collectDaysBack int

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect articles from configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("Collecting articles from sources...")

		collector := collect.NewCollector(cfg, db, collectDaysBack)
		result := collector.Collect()

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  Stored: %d\n", result.Stored)
		fmt.Printf("  Errors: %d\n", result.Errors)

		if len(result.Sources) > 0 {
			fmt.Println("\nArticles by source:")
			// Sort sources by count descending
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().IntVar(&collectDaysBack, "days-back", 1, "How many days of articles to collect")
}

// --- run command ---

var (
	dryRun      bool
	runDaysBack int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: collect -> fetch -> triage -> deep analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		ctx := context.Background()

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun()
		} else {
			result = pipe.Run(ctx, runDaysBack)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if !dryRun {
			fmt.Println("\nPipeline complete! Run 'newsagg serve' to browse the results.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	runCmd.Flags().IntVar(&runDaysBack, "days-back", 1, "How many days of articles to collect")
}

// --- triage command ---

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Triage all pending articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		triager := pipe.Triager()
		result, err := triager.Run(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Triaged %d articles: %d succeeded, %d failed, %d escalated\n",
			result.Processed, result.Succeeded, result.Failed, result.Escalated)
		return nil
	},
}

// --- analyze command ---

var analyzeAll bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze [article-id]",
	Short: "Run deep analysis on an escalated article, or all pending with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !analyzeAll && len(args) == 0 {
			return fmt.Errorf("provide an article ID or --all")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		analyzer := pipe.Analyzer()
		ctx := context.Background()

		if analyzeAll {
			processed, failed, err := analyzer.RunPending(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Analyzed %d articles, %d failed\n", processed, failed)
			return nil
		}

		id, err := parseArticleID(args[0])
		if err != nil {
			return err
		}
		result, err := analyzer.Analyze(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeAll, "all", false, "Analyze every escalated article awaiting deep analysis")
}

// --- related command ---

var relatedCmd = &cobra.Command{
	Use:   "related [article-id]",
	Short: "List articles covering the same story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseArticleID(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		engine := relate.NewEngine(db, cfg.Grouping.Window())
		related, err := engine.FindRelated(id)
		if err != nil {
			return err
		}

		if len(related) == 0 {
			fmt.Println("No related coverage found.")
			return nil
		}
		for _, a := range related {
			fmt.Printf("  [%d] %s (%s)\n", a.ID, a.Title, a.SourceName())
		}
		return nil
	},
}

// --- compare command ---

var compareShow bool

var compareCmd = &cobra.Command{
	Use:   "compare [article-id]",
	Short: "Generate a cross-source comparison for a story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseArticleID(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		engine := relate.NewEngine(db, cfg.Grouping.Window())
		comparer := compare.NewComparer(db, engine, pipe.Provider(), cfg.Analysis.CallTimeout())

		if compareShow {
			result, err := comparer.GetComparison(id)
			if err != nil {
				return err
			}
			if result == nil {
				return fmt.Errorf("no comparison exists for article %d; run without --show to generate one", id)
			}
			return printJSON(result)
		}

		result, err := comparer.Compare(context.Background(), id)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	compareCmd.Flags().BoolVar(&compareShow, "show", false, "Print the stored comparison without regenerating")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		pipe := pipeline.New(cfg, db)
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, pipe, cfg.Grouping.Window(), cfg.Analysis.CallTimeout(), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func parseArticleID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid article ID: %s", s)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "newsagg.db")
	return database.Open(dbPath)
}

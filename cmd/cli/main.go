package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dannyviti/gh-pr-analyzer/internal/analyzer"
	"github.com/dannyviti/gh-pr-analyzer/internal/collector"
	"github.com/dannyviti/gh-pr-analyzer/internal/config"
	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
	"github.com/dannyviti/gh-pr-analyzer/internal/report"
	"github.com/dannyviti/gh-pr-analyzer/internal/reviewer"
	"github.com/dannyviti/gh-pr-analyzer/internal/storage"
	"github.com/dannyviti/gh-pr-analyzer/internal/storage/postgres"
	"github.com/dannyviti/gh-pr-analyzer/internal/storage/sqlite"
	"github.com/dannyviti/gh-pr-analyzer/pkg/client"
)

var (
	verbose bool
	quiet   bool
	debug   bool

	months       int
	outputPath   string
	batchSize    int
	batchDelay   float64
	maxRetries   int
	waitForReset bool
	saveRun      bool

	reviewerThreshold int
	includeTeams      bool
	reviewerPeriod    int

	mergeOutputDir string
	runsLimit      int
)

var rootCmd = &cobra.Command{
	Use:   "gh-pr-analyzer",
	Short: "GitHub pull request lifecycle analysis tool",
	Long: `A CLI tool for analyzing GitHub pull request lifecycles and reviewer workload.

It fetches pull requests with their reviews, comments, timelines, and commits
through a quota-aware batched fetcher, computes timing and workload metrics,
and exports CSV reports for spreadsheet analysis.`,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [owner/repo]",
	Short: "Analyze pull request lifecycles",
	Long:  `Fetch recent pull requests and compute time-to-first-review, time-to-merge, and commit lead time metrics, exported as CSV.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var reviewersCmd = &cobra.Command{
	Use:   "reviewers [owner/repo]",
	Short: "Analyze reviewer workload",
	Long:  `Fetch recent pull requests with their review requests and compute per-reviewer workload, overload status, and distribution metrics, exported as CSV.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewers,
}

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Check the GitHub API rate limit",
	Long:  `Make a single lightweight rate-limit call and report the current quota state without fetching any data.`,
	Args:  cobra.NoArgs,
	RunE:  runQuota,
}

var usernameCmd = &cobra.Command{
	Use:   "username [user-id]",
	Short: "Resolve a numeric GitHub user ID to a login",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsername,
}

var mergeReportsCmd = &cobra.Command{
	Use:   "merge-reports [dir]",
	Short: "Merge per-repository tracking CSVs",
	Long:  `Discover pr_tracking_*.csv files in a directory and merge them into combined cross-repository CSV files.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runMergeReports,
}

var runsCmd = &cobra.Command{
	Use:   "runs [owner/repo]",
	Short: "List stored analysis runs",
	Long:  `List analysis runs recorded by previous --save invocations, via the runs API server.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	for _, cmd := range []*cobra.Command{analyzeCmd, reviewersCmd} {
		cmd.Flags().IntVar(&months, "months", 1, "how many months of pull requests to analyze")
		cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output CSV path (default: auto-named in current directory)")
		cmd.Flags().IntVar(&batchSize, "batch-size", 10, "pull requests fetched per batch")
		cmd.Flags().Float64Var(&batchDelay, "batch-delay", 0.1, "pause between batches in seconds")
		cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "attempts per API call before giving up")
		cmd.Flags().BoolVar(&waitForReset, "wait-for-reset", false, "wait for the quota window to reset instead of aborting")
		cmd.Flags().BoolVar(&saveRun, "save", false, "record the run in storage for trend tracking")
	}

	reviewersCmd.Flags().IntVar(&reviewerThreshold, "reviewer-threshold", 10, "request count at which a reviewer is overloaded")
	reviewersCmd.Flags().BoolVar(&includeTeams, "include-teams", false, "expand requested teams into their members")
	reviewersCmd.Flags().IntVar(&reviewerPeriod, "reviewer-period", 0, "months used for per-month request averages (default: --months)")

	mergeReportsCmd.Flags().StringVar(&mergeOutputDir, "output-dir", "", "directory for combined CSVs (default: input directory)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reviewersCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(usernameCmd)
	rootCmd.AddCommand(mergeReportsCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	level := zapcore.WarnLevel
	switch {
	case debug:
		level = zapcore.DebugLevel
	case verbose:
		level = zapcore.InfoLevel
	case quiet:
		level = zapcore.ErrorLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = !debug
	return cfg.Build()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Flags win over environment values when set explicitly.
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = batchSize
	}
	if cmd.Flags().Changed("batch-delay") {
		cfg.BatchDelay = time.Duration(batchDelay * float64(time.Second))
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.MaxRetries = maxRetries
	}
	if cmd.Flags().Changed("wait-for-reset") {
		cfg.WaitForReset = waitForReset
	}
	if cmd.Flags().Changed("reviewer-threshold") {
		cfg.ReviewerThreshold = reviewerThreshold
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// splitRepoArg validates and splits an owner/repo argument.
func splitRepoArg(arg string) (string, string, error) {
	parts := strings.Split(arg, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be in owner/repo format, got %q", arg)
	}
	return parts[0], parts[1], nil
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func defaultOutputPath(prefix, owner, repo string) string {
	return fmt.Sprintf("%s_%s_%s_%s.csv", prefix, owner, repo, time.Now().Format("20060102"))
}

// fetchBundles runs the shared fetch pipeline: list the window of pull
// requests, then drive the batched composite fetch with progress output.
func fetchBundles(ctx context.Context, cfg *config.Config, logger *zap.Logger, owner, repo string, window int, fetcherOpts ...collector.FetcherOption) ([]*domain.PRBundle, error) {
	quota := collector.NewQuotaTracker(logger)
	caller := collector.NewCaller(quota, cfg.MaxRetries, cfg.BaseRetryDelay, logger)
	coll := collector.NewGitHubCollector(cfg.GitHubToken, quota, caller, logger)

	repoInfo, err := coll.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	fmt.Printf("Repository: %s\n", repoInfo.FullName)

	since := time.Now().AddDate(0, -window, 0)
	fmt.Printf("Fetching pull requests created since %s...\n", since.Format("2006-01-02"))

	prs, err := coll.ListPullRequests(ctx, owner, repo, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list pull requests: %w", err)
	}
	fmt.Printf("Found %d pull requests\n", len(prs))
	if len(prs) == 0 {
		return nil, nil
	}

	teams := collector.NewTeamExpander(coll, owner, logger)
	fetcher := collector.NewPRFetcher(coll, teams, owner, repo, logger, fetcherOpts...)

	opts := []collector.SchedulerOption{
		collector.WithProgress(func(p domain.Progress) {
			fmt.Printf("\rBatch %d/%d | complete: %d, partial: %d, failed: %d | quota remaining: %d",
				p.BatchIndex+1, p.TotalBatches, p.Completed, p.Partial, p.Failed, p.Quota.Remaining)
		}),
	}
	if cfg.WaitForReset {
		opts = append(opts, collector.WithWaitForReset())
	}
	scheduler := collector.NewBatchScheduler(fetcher, quota, cfg.BatchSize, cfg.BatchDelay, logger, opts...)

	bundles, err := scheduler.Run(ctx, prs)
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("fetch aborted: %w", err)
	}
	return bundles, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	owner, repo, err := splitRepoArg(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	startedAt := time.Now().UTC()

	bundles, err := fetchBundles(ctx, cfg, logger, owner, repo, months)
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		fmt.Println("No pull requests in the analysis window.")
		return nil
	}

	result := analyzer.NewAnalyzer(logger).Analyze(owner+"/"+repo, bundles)

	output := outputPath
	if output == "" {
		output = defaultOutputPath("pr_analysis", owner, repo)
	}
	reporter, err := report.NewCSVReporter(output, logger)
	if err != nil {
		return err
	}
	if err := reporter.WriteLifecycleReport(result); err != nil {
		return err
	}

	printLifecycleSummary(result)
	fmt.Printf("\nReport written to %s\n", output)

	if saveRun {
		return persistRun(ctx, cfg, result, owner, repo, domain.RunModeLifecycle, startedAt, output, bundles)
	}
	return nil
}

func runReviewers(cmd *cobra.Command, args []string) error {
	owner, repo, err := splitRepoArg(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	startedAt := time.Now().UTC()

	bundles, err := fetchBundles(ctx, cfg, logger, owner, repo, months,
		collector.WithReviewerRequests(includeTeams))
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		fmt.Println("No pull requests in the analysis window.")
		return nil
	}

	summary := reviewer.NewAnalyzer(cfg.ReviewerThreshold, logger).
		Analyze(owner+"/"+repo, bundles, includeTeams)

	period := reviewerPeriod
	if period < 1 {
		period = months
	}

	output := outputPath
	if output == "" {
		output = defaultOutputPath("pr_reviewers", owner, repo)
	}
	reporter, err := report.NewCSVReporter(output, logger)
	if err != nil {
		return err
	}
	if err := reporter.WriteReviewerReport(summary, period); err != nil {
		return err
	}

	printReviewerSummary(summary)
	fmt.Printf("\nReport written to %s\n", output)

	if saveRun {
		result := analyzer.NewAnalyzer(logger).Analyze(owner+"/"+repo, bundles)
		return persistRun(ctx, cfg, result, owner, repo, domain.RunModeReviewers, startedAt, output, bundles)
	}
	return nil
}

func runQuota(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	quota := collector.NewQuotaTracker(logger)
	caller := collector.NewCaller(quota, cfg.MaxRetries, cfg.BaseRetryDelay, logger)
	coll := collector.NewGitHubCollector(cfg.GitHubToken, quota, caller, logger)

	state, err := coll.RateLimit(context.Background())
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}

	status := "OK"
	switch {
	case quota.BelowCritical():
		status = "CRITICAL"
	case quota.BelowWarning():
		status = "WARNING"
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Limit", fmt.Sprintf("%d", state.Limit)})
	table.Append([]string{"Remaining", fmt.Sprintf("%d", state.Remaining)})
	table.Append([]string{"Resets At", state.ResetAt.Local().Format("2006-01-02 15:04:05")})
	table.Append([]string{"Until Reset", state.UntilReset(time.Now()).Round(time.Second).String()})
	table.Append([]string{"Status", status})
	table.Render()

	return nil
}

func runUsername(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("user ID must be numeric, got %q", args[0])
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	quota := collector.NewQuotaTracker(logger)
	caller := collector.NewCaller(quota, cfg.MaxRetries, cfg.BaseRetryDelay, logger)
	coll := collector.NewGitHubCollector(cfg.GitHubToken, quota, caller, logger)

	user, err := coll.GetUserByID(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve user %d: %w", id, err)
	}

	fmt.Printf("User ID %d is %s", id, user.Login)
	if user.Name != "" {
		fmt.Printf(" (%s)", user.Name)
	}
	fmt.Println()
	return nil
}

func runMergeReports(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	merger := report.NewMerger(args[0], mergeOutputDir, logger)
	result, err := merger.Merge()
	if err != nil {
		return err
	}

	fmt.Printf("Merged %d repositories:\n", len(result.Repositories))
	for _, repo := range result.Repositories {
		fmt.Printf("  - %s\n", repo)
	}
	if result.PRRows > 0 {
		fmt.Printf("PR metrics:    %s (%d rows)\n", result.PROutput, result.PRRows)
	}
	if result.ReviewerRows > 0 {
		fmt.Printf("Reviewer data: %s (%d rows)\n", result.ReviewerOut, result.ReviewerRows)
	}
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	api := client.NewClient(cfg.APIEndpoint)

	var runs []*domain.AnalysisRun
	if len(args) == 1 {
		owner, repo, err := splitRepoArg(args[0])
		if err != nil {
			return err
		}
		runs, err = api.ListRepoRuns(owner, repo, runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
	} else {
		runs, err = api.ListRuns(runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
	}

	if len(runs) == 0 {
		fmt.Println("No stored runs found.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Repository", "Mode", "Started", "PRs", "Complete", "Partial", "Failed"})
	for _, run := range runs {
		table.Append([]string{
			run.ID,
			run.FullName(),
			run.Mode,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", run.TotalPRs),
			fmt.Sprintf("%d", run.Complete),
			fmt.Sprintf("%d", run.Partial),
			fmt.Sprintf("%d", run.Failed),
		})
	}
	table.Render()

	return nil
}

func persistRun(ctx context.Context, cfg *config.Config, result *domain.AnalysisResult, owner, repo, mode string, startedAt time.Time, output string, bundles []*domain.PRBundle) error {
	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	var complete, partial, failed int
	for _, b := range bundles {
		switch b.Status {
		case domain.FetchComplete:
			complete++
		case domain.FetchPartial:
			partial++
		case domain.FetchFailed:
			failed++
		}
	}

	run := &domain.AnalysisRun{
		ID:          uuid.New().String(),
		Owner:       owner,
		Repo:        repo,
		Mode:        mode,
		Months:      months,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
		TotalPRs:    len(bundles),
		Complete:    complete,
		Partial:     partial,
		Failed:      failed,
		OutputPath:  output,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	if err := store.SavePRResults(ctx, run.ID, result.Details); err != nil {
		return fmt.Errorf("failed to save PR results: %w", err)
	}

	fmt.Printf("Run saved with ID %s\n", run.ID)
	return nil
}

func printLifecycleSummary(result *domain.AnalysisResult) {
	s := result.Summary

	fmt.Printf("\nLifecycle Summary: %s\n\n", s.Repository)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"PRs Analyzed", fmt.Sprintf("%d", s.TotalAnalyzed)})
	table.Append([]string{"Merged PRs", fmt.Sprintf("%d", s.MergedPRs)})
	table.Append([]string{"Reviewed PRs", fmt.Sprintf("%d", s.ReviewedPRs)})
	table.Append([]string{"Partial Fetches", fmt.Sprintf("%d", s.PartialPRs)})
	table.Append([]string{"Failed Fetches", fmt.Sprintf("%d", s.FailedPRs)})
	table.Append([]string{"Avg Time to First Review", formatHours(s.AvgTimeToFirstReview)})
	table.Append([]string{"Avg Time to Merge", formatHours(s.AvgTimeToMerge)})
	table.Append([]string{"Avg Commit Lead Time", formatHours(s.AvgCommitLeadTime)})
	table.Render()
}

func printReviewerSummary(summary *domain.WorkloadSummary) {
	fmt.Printf("\nReviewer Workload: %s\n\n", summary.Repository)

	stats := summary.Statistics
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"PRs Analyzed", fmt.Sprintf("%d", summary.TotalPRs)})
	table.Append([]string{"Reviewers", fmt.Sprintf("%d", stats.TotalReviewers)})
	table.Append([]string{"Review Requests", fmt.Sprintf("%d", stats.TotalRequests)})
	table.Append([]string{"Mean Requests", fmt.Sprintf("%.2f", stats.Mean)})
	table.Append([]string{"Median Requests", fmt.Sprintf("%.2f", stats.Median)})
	table.Append([]string{"Overloaded", fmt.Sprintf("%d", len(summary.Overload.Overloaded))})
	table.Append([]string{"High Load", fmt.Sprintf("%d", len(summary.Overload.High))})
	table.Append([]string{"Gini Coefficient", fmt.Sprintf("%.3f", summary.Distribution.GiniCoefficient)})
	table.Render()

	if len(summary.Overload.Overloaded) > 0 {
		fmt.Printf("\nOverloaded reviewers: %s\n", strings.Join(summary.Overload.Overloaded, ", "))
	}
	if len(summary.DegradedTeams) > 0 {
		fmt.Printf("Teams that could not be expanded: %s\n", strings.Join(summary.DegradedTeams, ", "))
	}
}

func formatHours(h *float64) string {
	if h == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f h", *h)
}

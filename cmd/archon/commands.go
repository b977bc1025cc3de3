package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/selfarchitectai/archon-core/internal/config"
	"github.com/selfarchitectai/archon-core/internal/dispatch"
	"github.com/selfarchitectai/archon-core/internal/domain"
	"github.com/selfarchitectai/archon-core/internal/ledger"
	"github.com/selfarchitectai/archon-core/internal/notify"
	"github.com/selfarchitectai/archon-core/internal/optimizer"
	"github.com/selfarchitectai/archon-core/internal/plansource"
	"github.com/selfarchitectai/archon-core/internal/production"
	"github.com/selfarchitectai/archon-core/internal/supervisor"
	"github.com/selfarchitectai/archon-core/internal/telemetry"
	"github.com/selfarchitectai/archon-core/internal/trust"
	"github.com/selfarchitectai/archon-core/web/api"
)

var (
	evaluateSource string
	decisionsLimit int
	summaryDays    int
	summaryExport  string
	weightsReason  string
)

func init() {
	evaluateCmd := &cobra.Command{
		Use:   "evaluate FILE",
		Short: "Evaluate a plan file and record the decision",
		Args:  cobra.ExactArgs(1),
		RunE:  runEvaluate,
	}
	evaluateCmd.Flags().StringVar(&evaluateSource, "source", "", "submitting agent (overrides the plan file)")
	rootCmd.AddCommand(evaluateCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor, production line, and status API",
		RunE:  runRun,
	}
	rootCmd.AddCommand(runCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show system health and trust weights",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	weightsCmd := &cobra.Command{
		Use:   "weights",
		Short: "Show or set agent trust weights",
		RunE:  runWeightsShow,
	}
	weightsSetCmd := &cobra.Command{
		Use:   "set AGENT=WEIGHT [AGENT=WEIGHT...]",
		Short: "Replace the weight allocation",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runWeightsSet,
	}
	weightsSetCmd.Flags().StringVar(&weightsReason, "reason", "manual adjustment", "history entry reason")
	weightsCmd.AddCommand(weightsSetCmd)
	rootCmd.AddCommand(weightsCmd)

	decisionsCmd := &cobra.Command{
		Use:   "decisions",
		Short: "List recent decisions",
		RunE:  runDecisions,
	}
	decisionsCmd.Flags().IntVar(&decisionsLimit, "limit", 20, "number of decisions to show")
	rootCmd.AddCommand(decisionsCmd)

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the telemetry summary for a trailing window",
		RunE:  runSummary,
	}
	summaryCmd.Flags().IntVar(&summaryDays, "days", 7, "window in days")
	summaryCmd.Flags().StringVar(&summaryExport, "export", "", "write raw telemetry as CSV to this file")
	rootCmd.AddCommand(summaryCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// core bundles the wired evaluation stack shared by every command.
type core struct {
	cfg       *config.Config
	store     *ledger.Store
	book      *trust.Book
	collector *telemetry.Collector
	sup       *supervisor.Engine
}

func openCore(cfg *config.Config) (*core, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	store, err := ledger.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, err
	}

	book, err := trust.NewBook(store, cfg.Weights.Min, cfg.Weights.Max)
	if err != nil {
		store.Close()
		return nil, err
	}

	scorer := trust.NewEngine(book, store)
	collector := telemetry.NewCollector(store, book)
	sup := supervisor.NewEngine(supervisor.Thresholds{
		Trust:    cfg.Supervisor.TrustThreshold,
		Cohesion: cfg.Supervisor.CohesionThreshold,
	}, scorer, store, collector, book)

	return &core{cfg: cfg, store: store, book: book, collector: collector, sup: sup}, nil
}

func (c *core) Close() error {
	return c.store.Close()
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	sp, err := plansource.ParsePlanFile(args[0])
	if err != nil {
		return err
	}
	if evaluateSource != "" {
		sp.Source = evaluateSource
	}

	decision, err := c.sup.EvaluatePlan(sp.Plan, sp.Source)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Decision:\t%s\n", decision.ID)
	fmt.Fprintf(w, "Status:\t%s\n", decision.Status)
	fmt.Fprintf(w, "Trust:\t%.4f\n", decision.TrustScore)
	fmt.Fprintf(w, "Cohesion:\t%.4f\n", decision.CohesionScore)
	fmt.Fprintf(w, "Cost efficiency:\t%.4f\n", decision.CostEfficiency)
	fmt.Fprintf(w, "Reason:\t%s\n", decision.Reason)
	return w.Flush()
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notification sinks. The stream notifier is bound once the API
	// server exists.
	stream := api.NewStreamNotifier()
	sinks := []notify.Notifier{stream}
	if cfg.Notifications.Desktop {
		sinks = append(sinks, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		sinks = append(sinks, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if cfg.Notifications.DashboardURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.Notifications.DashboardURL))
	}
	notifier := notify.NewMultiNotifier(sinks...)

	trigger := dispatch.NewWorkflowDispatcher(cfg.Trigger.DispatchURL, cfg.Trigger.TokenEnv)
	poller := dispatch.NewHTTPPoller(cfg.Trigger.OutcomeURL)

	line := production.NewController(production.Config{
		MaxRetries:              cfg.Production.MaxRetries,
		RetryDelay:              time.Duration(cfg.Production.RetryDelaySeconds) * time.Second,
		RetryBackoffDoubling:    cfg.Production.RetryBackoffDoubling,
		SuccessSummaryThreshold: cfg.Production.SuccessSummaryThreshold,
		PollInterval:            time.Duration(cfg.Production.PollIntervalSeconds) * time.Second,
		PollTimeout:             time.Duration(cfg.Production.PollTimeoutSeconds) * time.Second,
		IdleWait:                time.Duration(cfg.Production.IdleWaitSeconds) * time.Second,
		SummaryWindowDays:       cfg.Production.SummaryWindowDays,
		Target:                  cfg.Trigger.Target,
	}, trigger, poller, c.store, c.store, c.store, c.sup, c.store, notifier)

	if _, err := line.StartCycle(); err != nil {
		return fmt.Errorf("starting production cycle: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(c.sup, c.store, c.collector, c.book, line, addr)
	stream.Bind(server)

	if err := os.MkdirAll(cfg.General.PlansDir, 0o755); err != nil {
		return fmt.Errorf("creating plans dir: %w", err)
	}
	watcher, err := plansource.NewWatcher(cfg.General.PlansDir, func(sp domain.SubmittedPlan, path string) {
		decision, err := c.sup.EvaluatePlan(sp.Plan, sp.Source)
		if err != nil {
			log.Printf("archon: evaluating %s: %v", path, err)
			return
		}
		log.Printf("archon: %s %s (plan %s)", decision.ID, decision.Status, filepath.Base(path))
		if err := plansource.Archive(path); err != nil {
			log.Printf("archon: %v", err)
		}
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return line.RunContinuous(ctx, 0)
	})

	g.Go(func() error {
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("starting plan watcher: %w", err)
		}
		<-ctx.Done()
		watcher.Stop()
		return nil
	})

	if cfg.Optimizer.Enabled {
		opt, err := optimizer.New(cfg.Optimizer.Cron, c.collector, c.book)
		if err != nil {
			return err
		}
		g.Go(func() error {
			opt.Loop(ctx.Done())
			return nil
		})
	}

	// The listener has no graceful shutdown; the process exits when the
	// control loop stops.
	go func() {
		log.Printf("archon: status API listening on %s", addr)
		if err := server.Start(); err != nil {
			log.Printf("archon: api server: %v", err)
		}
	}()

	log.Printf("archon: supervising plans from %s", cfg.General.PlansDir)
	return g.Wait()
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	health, err := c.sup.SystemHealth()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Status:\t%s\n", health.Status)
	fmt.Fprintf(w, "Decisions (24h):\t%d\n", health.TotalDecisions24h)
	fmt.Fprintf(w, "Completed (24h):\t%d\n", health.Completed24h)
	fmt.Fprintf(w, "Success rate (24h):\t%.1f%%\n", health.SuccessRate24h*100)
	fmt.Fprintf(w, "Avg trust score:\t%.4f\n", health.AvgTrustScore)
	w.Flush()

	weights := c.book.Current()
	if len(weights) == 0 {
		fmt.Println("\nNo trust weights recorded yet")
		return nil
	}

	agents := make([]string, 0, len(weights))
	for agent := range weights {
		agents = append(agents, agent)
	}
	sort.Strings(agents)

	fmt.Println("\nTrust weights:")
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, agent := range agents {
		fmt.Fprintf(w, "  %s\t%.4f\n", agent, weights[agent])
	}
	return w.Flush()
}

func runWeightsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	weights := c.book.Current()
	if len(weights) == 0 {
		fmt.Println("No trust weights recorded yet")
		return nil
	}

	agents := make([]string, 0, len(weights))
	for agent := range weights {
		agents = append(agents, agent)
	}
	sort.Strings(agents)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tWEIGHT")
	for _, agent := range agents {
		fmt.Fprintf(w, "%s\t%.4f\n", agent, weights[agent])
	}
	return w.Flush()
}

func runWeightsSet(cmd *cobra.Command, args []string) error {
	weights := make(map[string]float64, len(args))
	for _, arg := range args {
		agent, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected AGENT=WEIGHT, got %q", arg)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("parsing weight for %s: %w", agent, err)
		}
		weights[agent] = v
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.book.SetWeights(weights, weightsReason); err != nil {
		return err
	}

	fmt.Println("Weights updated:")
	return runWeightsShow(cmd, nil)
}

func runDecisions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	decisions, err := c.sup.RecentDecisions(decisionsLimit)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		fmt.Println("No decisions recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tSOURCE\tSTATUS\tTRUST\tTASK")
	for _, d := range decisions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.4f\t%s\n",
			d.ID,
			d.Timestamp.Local().Format("2006-01-02 15:04"),
			d.Source,
			d.Status,
			d.TrustScore,
			d.Plan.Task,
		)
	}
	return w.Flush()
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	summary, err := c.collector.Summary(summaryDays)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Window:\t%d days\n", summaryDays)
	fmt.Fprintf(w, "Builds:\t%d\n", summary.TotalBuilds)
	fmt.Fprintf(w, "Successes:\t%d\n", summary.SuccessCount)
	fmt.Fprintf(w, "Success rate:\t%.1f%%\n", summary.SuccessRate*100)
	fmt.Fprintf(w, "Avg latency:\t%.0f ms\n", summary.AvgLatencyMS)
	fmt.Fprintf(w, "Total cost:\t$%.2f\n", summary.TotalCostUSD)
	fmt.Fprintf(w, "Errors:\t%d\n", summary.TotalErrors)
	w.Flush()

	if summaryExport != "" {
		f, err := os.Create(summaryExport)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := c.store.ExportTelemetryCSV(f); err != nil {
			return err
		}
		fmt.Printf("\nRaw telemetry written to %s\n", summaryExport)
	}
	return nil
}

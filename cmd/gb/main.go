package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"guildboard/internal/app"
	"guildboard/internal/config"
	"guildboard/internal/db"
	"guildboard/internal/domain"
	"guildboard/internal/engine"
	"guildboard/internal/logging"
	"guildboard/internal/migrate"
	"guildboard/internal/repo"
	"guildboard/internal/server"
	guildboardsdk "guildboard/sdk/go"
)

var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "gb",
	Short: "Guildboard CLI",
	Long: `Guildboard keeps guild achievement progress in step with what the guild actually did.
- Catalogue: the global list of achievements, each with a requirement type and a target value.
- Sync: evaluates every catalogue entry for a group and stores the latest value and unlock state.
- Sync all: the scheduled run across every group, on a bounded worker pool.
- Triggers: officers call POST /v0/achievements/sync; the scheduler calls /v0/achievements/sync-all with an API key.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = loaded
		l, err := logging.New(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return err
		}
		logger = l
		if _, err := db.EnsureWorkspace(cfg.Workspace); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "settings file (default <workspace>/guildboard.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(triggerCmd())
	rootCmd.AddCommand(devCmd())
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireJWTSecret(); err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			return withEngineOpts(cmd.Context(), reg, func(ctx context.Context, e engine.Engine) error {
				seeded, err := e.EnsureCatalog(ctx)
				if err != nil {
					return err
				}
				if seeded {
					logger.Info("seeded default achievement catalogue")
				}
				if cfg.Scheduler.AllowUnauthenticated {
					logger.Warn("all-tenant sync endpoint accepts unauthenticated calls")
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: cfg.Server.BasePath,
					Auth: server.AuthConfig{
						JWTSecret:                     cfg.Auth.JWTSecret,
						AllowUnauthenticatedScheduler: cfg.Scheduler.AllowUnauthenticated,
					},
					Logger:     logger,
					Registerer: reg,
					Gatherer:   reg,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				logger.Info("serving guildboard API",
					zap.String("addr", cfg.Server.Addr),
					zap.String("base_path", cfg.Server.BasePath))
				fmt.Printf("Serving Guildboard API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n",
					cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().String("base-path", "/v0", "API base path")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.base_path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func syncCmd() *cobra.Command {
	sync := &cobra.Command{Use: "sync", Short: "Recalculate achievements without the HTTP API"}
	sync.AddCommand(&cobra.Command{
		Use:   "group <group-id>...",
		Short: "Recalculate one or more groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(args) == 1 {
					res, err := e.SyncGroup(ctx, args[0])
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(resultView(res))
					}
					printResult(res)
					return nil
				}
				summary, err := e.SyncGroups(ctx, args)
				if err != nil {
					return err
				}
				return printSummary(summary)
			})
		},
	})
	sync.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Recalculate every group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				summary, err := e.SyncAll(ctx)
				if err != nil {
					return err
				}
				return printSummary(summary)
			})
		},
	})
	return sync
}

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{Use: "catalog", Short: "Manage the achievement catalogue"}
	var file string
	var useDefault bool
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert achievement definitions from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			var c *config.Catalog
			switch {
			case useDefault:
				c = config.DefaultCatalog()
			case file != "":
				loaded, err := config.CatalogFromFile(file)
				if err != nil {
					return err
				}
				c = loaded
			default:
				return errors.New("--file or --default is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				unknown, err := e.ImportCatalog(ctx, c)
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d achievements\n", len(c.Achievements))
				if len(unknown) > 0 {
					fmt.Printf("No calculation registered for: %s (skipped during sync)\n", strings.Join(unknown, ", "))
				}
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "catalogue YAML path")
	importCmd.Flags().BoolVar(&useDefault, "default", false, "import the built-in catalogue")
	cat.AddCommand(importCmd)
	cat.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List achievement definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				defs, err := r.ListDefinitions(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(defs)
				}
				tw := newTable(table.Row{"ID", "Name", "Category", "Requirement", "Target"})
				for _, d := range defs {
					tw.AppendRow(table.Row{d.ID, d.Name, d.Category, d.RequirementType, d.RequirementValue})
				}
				tw.Render()
				return nil
			})
		},
	})
	cat.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the built-in catalogue YAML",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(config.DefaultCatalogYAML)
		},
	})
	return cat
}

func progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <group-id>",
		Short: "Show stored achievement progress for a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rows, err := r.ListProgress(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable(table.Row{"Achievement", "Value", "Unlocked", "Unlocked At", "Updated At"})
				for _, p := range rows {
					tw.AppendRow(table.Row{p.AchievementID, p.CurrentValue, p.IsUnlocked, stringOrEmpty(p.UnlockedAt), p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage scheduler API keys"}
	var actor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key, secret, err := r.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
				}
				fmt.Printf("Created API key %s for %s\n%s\n", key.ID, key.ActorID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&actor, "actor", "scheduler", "actor the key authenticates as")
	create.Flags().StringVar(&name, "name", "", "label")
	keys.AddCommand(create)

	var listActor string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, listActor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Actor", "Name", "Created At"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listActor, "actor", "", "actor filter")
	keys.AddCommand(list)

	keys.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return keys
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Bearer tokens"}
	var user string
	var ttl time.Duration
	mint := &cobra.Command{
		Use:   "mint",
		Short: "DEV ONLY: mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireJWTSecret(); err != nil {
				return err
			}
			token, err := server.SignToken(cfg.Auth.JWTSecret, user, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	mint.Flags().StringVar(&user, "user", "", "user id (token subject)")
	mint.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 for no expiry")
	tok.AddCommand(mint)
	return tok
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Sync run log"}
	var n int
	var entryType, groupID, runID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest run log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.LatestLog(ctx, n, entryType, groupID, runID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable(table.Row{"TS", "Type", "Group", "Run", "Payload"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.TS, e.Type, e.GroupID, e.RunID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of entries")
	tail.Flags().StringVar(&entryType, "type", "", "entry type filter")
	tail.Flags().StringVar(&groupID, "group", "", "group filter")
	tail.Flags().StringVar(&runID, "run", "", "run id filter")
	lg.AddCommand(tail)
	return lg
}

func triggerCmd() *cobra.Command {
	trig := &cobra.Command{Use: "trigger", Short: "Call a running server (cron entry point)"}
	var baseURL, basePath, apiKey, token string
	var timeout time.Duration
	client := func() *guildboardsdk.Client {
		c := guildboardsdk.New(baseURL)
		c.BasePath = basePath
		c.APIKey = apiKey
		c.BearerToken = token
		c.Timeout = timeout
		return c
	}
	trig.PersistentFlags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server URL")
	trig.PersistentFlags().StringVar(&basePath, "base-path", "/v0", "API base path")
	trig.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("GUILDBOARD_API_KEY"), "scheduler API key")
	trig.PersistentFlags().StringVar(&token, "token", os.Getenv("GUILDBOARD_TOKEN"), "bearer token")
	trig.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout")

	trig.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Trigger the all-tenant sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("all-tenant sync triggered",
				zap.String("run_id", res.RunID),
				zap.Int("clans", res.Clans),
				zap.Int("updated", res.AchievementsUpdated),
				zap.Int("failed", res.Failed))
			return printJSON(res)
		},
	})
	trig.AddCommand(&cobra.Command{
		Use:   "group <group-id>",
		Short: "Trigger a single-group sync as the token's user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().Sync(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	})
	return trig
}

func devCmd() *cobra.Command {
	dev := &cobra.Command{Use: "dev", Short: "DEV ONLY: local bootstrap helpers"}
	var groupID, userID, role string
	addMember := &cobra.Command{
		Use:   "add-member",
		Short: "Create a group if needed and set a member's role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return app.EnsureGroupMember(ctx, r, groupID, userID, role)
			})
		},
	}
	addMember.Flags().StringVar(&groupID, "group", "", "group id")
	addMember.Flags().StringVar(&userID, "user", "", "user id")
	addMember.Flags().StringVar(&role, "role", domain.RoleOfficer, "admin, officer or member")
	dev.AddCommand(addMember)

	dev.AddCommand(&cobra.Command{
		Use:   "seed-demo",
		Short: "Seed demo groups and the default catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.EnsureCatalog(ctx); err != nil {
					return err
				}
				ids, err := app.SeedDemo(ctx, e.Repo, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("Seeded groups: %s\n", strings.Join(ids, ", "))
				return nil
			})
		},
	})
	return dev
}

// --- helpers ---

func engineOptions(reg prometheus.Registerer) engine.Options {
	return engine.Options{
		Logger:        logger,
		Registerer:    reg,
		StickyUnlocks: cfg.Achievements.StickyUnlocks,
		Batch: engine.BatchConfig{
			Concurrency:         cfg.Batch.Concurrency,
			SequentialThreshold: cfg.Batch.SequentialThreshold,
			TenantTimeout:       cfg.Batch.TenantTimeout,
			RunTimeout:          cfg.Batch.RunTimeout,
		},
	}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withEngineOpts(ctx, nil, fn)
}

func withEngineOpts(ctx context.Context, reg prometheus.Registerer, fn func(context.Context, engine.Engine) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		e, err := engine.New(r.DB, engineOptions(reg))
		if err != nil {
			return err
		}
		return fn(ctx, e)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: cfg.Workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		return err
	}
	if applied > 0 {
		logger.Debug("applied migrations", zap.Int("count", applied), zap.String("db", db.Path(db.Config{Workspace: cfg.Workspace})))
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printResult(res engine.Result) {
	tw := newTable(table.Row{"Achievement", "Value", "Unlocked"})
	for _, a := range res.Achievements {
		tw.AppendRow(table.Row{a.AchievementID, a.CurrentValue, a.IsUnlocked})
	}
	tw.AppendFooter(table.Row{"updated", res.Updated, ""})
	tw.Render()
	for _, id := range res.Skipped {
		fmt.Printf("skipped %s: no calculation registered\n", id)
	}
	for _, f := range res.Failed {
		fmt.Printf("failed %s (%s): %v\n", f.AchievementID, f.RequirementType, f.Err)
	}
}

func resultView(res engine.Result) map[string]any {
	failed := make([]map[string]string, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, map[string]string{
			"achievement_id":   f.AchievementID,
			"requirement_type": f.RequirementType,
			"error":            f.Err.Error(),
		})
	}
	return map[string]any{
		"group_id":     res.GroupID,
		"updated":      res.Updated,
		"achievements": res.Achievements,
		"skipped":      res.Skipped,
		"failed":       failed,
	}
}

func printSummary(s engine.Summary) error {
	if viper.GetBool("json") {
		return printJSON(s)
	}
	fmt.Printf("Run %s: %d groups, %d achievements updated, %d failed (%s)\n",
		s.RunID, s.TenantsProcessed, s.TotalUpdated, len(s.Failures), s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if len(s.Failures) > 0 {
		tw := newTable(table.Row{"Group", "Error"})
		for _, f := range s.Failures {
			tw.AppendRow(table.Row{f.GroupID, f.Error})
		}
		tw.Render()
	}
	return nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

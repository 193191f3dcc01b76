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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"moveline/internal/app"
	"moveline/internal/config"
	"moveline/internal/db"
	"moveline/internal/domain"
	"moveline/internal/migrate"
	"moveline/internal/server"
	"moveline/internal/steps"
	"moveline/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "moveline",
	Short: "Moveline CLI",
	Long: `Moveline collects moving-service requests through a guided conversation.
- Steps: an ordered catalog of questions; some are skipped depending on earlier answers.
- Sessions: one live conversation over one request record, answered step by step or in free text.
- Form: the same record shown as an editable form; edits flow back into the conversation.
- Estimates: saved records, draft until submitted; every save is logged as an event.
- Webhooks: estimate events are posted to the URLs configured in moveline.yml.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MOVELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(stepsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

// withRuntime loads config, builds the logger and opens the runtime.
func withRuntime(ctx context.Context, withAI bool, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := config.InitLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()
	rt, err := app.Open(ctx, cfg, log, withAI)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), true, func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if addr != "" {
					cfg.Server.Addr = addr
				}
				if basePath != "" {
					cfg.Server.BasePath = basePath
				}
				hooks := server.NewWebhookDispatcher(cfg.Webhooks, rt.Log.Named("webhooks"))
				handler, err := server.New(server.Config{
					Sessions:    rt.Sessions(hooks.Enqueue),
					Store:       rt.Store,
					BasePath:    cfg.Server.BasePath,
					Auth:        server.AuthConfig{JWTSecret: cfg.Server.JWTSecret, Logger: rt.Log},
					CORSOrigins: cfg.Server.CORSOrigins,
					Log:         rt.Log,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error { return hooks.Run(gctx) })
				g.Go(func() error {
					rt.Log.Info("serving", zap.String("addr", cfg.Server.Addr), zap.String("base_path", cfg.Server.BasePath))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				fmt.Printf("Serving Moveline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
					cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

func estimateCmd() *cobra.Command {
	est := &cobra.Command{Use: "estimate", Short: "Inspect stored estimates"}
	est.AddCommand(estimateListCmd())
	est.AddCommand(estimateShowCmd())
	return est
}

func estimateListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List estimates, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), false, func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Store.List(ctx, domain.EstimateFilter{Status: status, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Request", "Status", "Complete", "Phone", "Updated"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.RequestID, e.Status, fmt.Sprintf("%.0f%%", e.CompletionRate*100), strPtrValue(e.Phone), e.UpdatedAt})
				}
				if sq, ok := rt.Store.(*store.SQLite); ok {
					counts, err := sq.Repo.CountEstimatesByStatus(ctx)
					if err != nil {
						return err
					}
					tw.AppendFooter(table.Row{"", "", fmt.Sprintf("%d draft / %d submitted", counts[domain.EstimateDraft], counts[domain.EstimateSubmitted])})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (draft, submitted)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func estimateShowCmd() *cobra.Command {
	var events bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one estimate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), false, func(ctx context.Context, rt *app.Runtime) error {
				e, err := rt.Store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if err := printJSON(e); err != nil {
					return err
				}
				if !events {
					return nil
				}
				items, err := rt.Store.Events(ctx, e.ID, 0, 200)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&events, "events", false, "also list the estimate's events")
	return cmd
}

func stepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the guided flow catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			all := steps.All()
			if viper.GetBool("json") {
				return printJSON(all)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "ID", "Question", "Input", "Path", "Required"})
			for _, st := range all {
				tw.AppendRow(table.Row{st.Number, st.ID, st.Question, st.Input, st.Path, st.Required})
			}
			tw.Render()
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage moveline.yml"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default moveline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate moveline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()
			if cfg.Store.Driver == "postgres" {
				fmt.Println("postgres store is up to date")
				return nil
			}
			version, err := migrate.Latest()
			if err != nil {
				return err
			}
			fmt.Printf("%s at schema version %d\n", db.Path(cfg.Store.Workspace), version)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret is not configured (set it in moveline.yml or MOVELINE_SERVER_JWT_SECRET)")
			}
			for _, r := range roles {
				if r != server.RoleCustomer && r != server.RoleOperator {
					return fmt.Errorf("unknown role %q", r)
				}
			}
			token, err := server.SignToken(cfg.Server.JWTSecret, subject, roles, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject (a session id for customer tokens)")
	cmd.Flags().StringSliceVar(&roles, "role", []string{server.RoleOperator}, "roles to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

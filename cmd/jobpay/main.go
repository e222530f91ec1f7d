package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jobpay/internal/app"
	"jobpay/internal/config"
	"jobpay/internal/db"
	"jobpay/internal/domain"
	"jobpay/internal/engine"
	"jobpay/internal/engine/auth"
	"jobpay/internal/logger"
	"jobpay/internal/seed"
	"jobpay/internal/server"
	"jobpay/internal/store"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "jobpay",
	Short: "Contractor marketplace payments",
	Long: `jobpay runs the contractor marketplace API and its local operations.
- Profiles are clients or contractors; each holds a balance.
- Contracts link one client with one contractor; jobs belong to contracts.
- Clients pay jobs of in-progress contracts; the price moves to the contractor atomically.
- Clients may deposit up to a share of their unpaid in-progress work at once.
- Admin reports rank professions and clients by paid jobs in a date range.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Init(logger.Config{Level: viper.GetString("log-level"), Format: viper.GetString("log-format")})
		if viper.GetString("driver") == config.DriverPostgres {
			return nil
		}
		if _, err := db.EnsureWorkspace(viper.GetString("workspace")); err != nil {
			return err
		}
		return nil
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
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("JOBPAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default <workspace>/jobpay.yml)")
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("driver", "", "database driver: sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "postgres connection string")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")
	for _, name := range []string{"config", "workspace", "driver", "dsn", "json", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads jobpay.yml and overlays flags and JOBPAY_* env.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOptional(workspace)
	}
	if err != nil {
		return nil, err
	}
	if viper.IsSet("workspace") || cfg.Database.Workspace == "" || cfg.Database.Workspace == "." {
		cfg.Database.Workspace = workspace
	}
	if v := viper.GetString("driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v := viper.GetString("dsn"); v != "" {
		cfg.Database.DSN = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v := viper.GetString("admin-jwt-secret"); v != "" {
		cfg.Auth.AdminJWTSecret = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			e, st, err := app.OpenEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Version:  version,
				Auth: server.AuthConfig{
					ProfileHeader:  cfg.Auth.ProfileHeader,
					AdminJWTSecret: cfg.Auth.AdminJWTSecret,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      handler,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			slog.Info("serving jobpay API", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath,
				"driver", cfg.Database.Driver, "admin_auth", cfg.Auth.AdminJWTSecret != "")
			fmt.Printf("Serving jobpay API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			v, err := app.SchemaVersion(cmd.Context(), st)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"driver": cfg.Database.Driver, "version": v})
			}
			fmt.Printf("Database up to date (%s, schema version %d)\n", cfg.Database.Driver, v)
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace all data with the demo fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixtures, err := seed.Default()
			if file != "" {
				fixtures, err = seed.FromFile(file)
			}
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, st store.Backend) error {
				sum, err := seed.Apply(ctx, st, fixtures, time.Now().UTC())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				fmt.Printf("Seeded %d profiles, %d contracts, %d jobs\n", sum.Profiles, sum.Contracts, sum.Jobs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "fixtures YAML file (default: bundled data set)")
	return cmd
}

func profileCmd() *cobra.Command {
	p := &cobra.Command{Use: "profile", Short: "Inspect profiles"}
	p.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProfiles(ctx)
				if err != nil {
					return err
				}
				return printProfiles(items...)
			})
		},
	})
	p.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				item, err := e.ResolveProfile(ctx, args[0])
				if err != nil {
					return err
				}
				return printProfiles(item)
			})
		},
	})
	return p
}

func contractCmd() *cobra.Command {
	c := &cobra.Command{Use: "contract", Short: "Inspect contracts"}
	var profile string
	list := &cobra.Command{
		Use:   "list",
		Short: "List non-terminated contracts of a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCaller(cmd.Context(), profile, func(ctx context.Context, e engine.Engine, caller domain.Profile) error {
				items, err := e.ListContracts(ctx, caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Status", "Client", "Contractor", "Terms")
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Status, it.ClientID, it.ContractorID, it.Terms})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&profile, "profile", "", "acting profile id")
	_ = list.MarkFlagRequired("profile")

	var showProfile string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a contract the profile is party to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withCaller(cmd.Context(), showProfile, func(ctx context.Context, e engine.Engine, caller domain.Profile) error {
				item, err := e.GetContract(ctx, caller, id)
				if err != nil {
					return err
				}
				return printJSON(item)
			})
		},
	}
	show.Flags().StringVar(&showProfile, "profile", "", "acting profile id")
	_ = show.MarkFlagRequired("profile")

	c.AddCommand(list, show)
	return c
}

func jobCmd() *cobra.Command {
	j := &cobra.Command{Use: "job", Short: "List and pay jobs"}
	var profile string
	unpaid := &cobra.Command{
		Use:   "unpaid",
		Short: "List unpaid jobs of active contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCaller(cmd.Context(), profile, func(ctx context.Context, e engine.Engine, caller domain.Profile) error {
				items, err := e.ListUnpaidJobs(ctx, caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Contract", "Price", "Description")
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.ContractID, it.Price.StringFixed(2), it.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	unpaid.Flags().StringVar(&profile, "profile", "", "acting profile id")
	_ = unpaid.MarkFlagRequired("profile")

	var payProfile string
	pay := &cobra.Command{
		Use:   "pay <job_id>",
		Short: "Pay a job as its client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withCaller(cmd.Context(), payProfile, func(ctx context.Context, e engine.Engine, caller domain.Profile) error {
				p, err := e.PayJob(ctx, caller, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Paid job %d: %s moved from profile %d to profile %d (client balance %s)\n",
					p.JobID, p.Amount.StringFixed(2), p.ClientID, p.ContractorID, p.ClientBalance.StringFixed(2))
				return nil
			})
		},
	}
	pay.Flags().StringVar(&payProfile, "profile", "", "acting profile id")
	_ = pay.MarkFlagRequired("profile")

	j.AddCommand(unpaid, pay)
	return j
}

func balanceCmd() *cobra.Command {
	b := &cobra.Command{Use: "balance", Short: "Manage balances"}
	var profile string
	deposit := &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Deposit into the acting client's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			return withCaller(cmd.Context(), profile, func(ctx context.Context, e engine.Engine, caller domain.Profile) error {
				res, err := e.Deposit(ctx, caller, caller.ID, amount)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Deposited %s into profile %d, new balance %s (cap was %s)\n",
					res.Amount.StringFixed(2), res.ProfileID, res.NewBalance.StringFixed(2), res.Cap.StringFixed(2))
				return nil
			})
		},
	}
	deposit.Flags().StringVar(&profile, "profile", "", "acting client profile id")
	_ = deposit.MarkFlagRequired("profile")
	b.AddCommand(deposit)
	return b
}

func reportCmd() *cobra.Command {
	r := &cobra.Command{Use: "report", Short: "Admin reports over paid jobs"}

	var pStart, pEnd string
	profession := &cobra.Command{
		Use:   "best-profession",
		Short: "Profession that earned the most in the range",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := engine.ParseRange(pStart, pEnd)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				best, err := e.BestProfession(ctx, start, end)
				if err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						return fmt.Errorf("no paid jobs between %s and %s", pStart, pEnd)
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(best)
				}
				tw := newTable("Profession", "Total earnings")
				tw.AppendRow(table.Row{best.Profession, best.TotalEarnings.StringFixed(2)})
				tw.Render()
				return nil
			})
		},
	}
	profession.Flags().StringVar(&pStart, "start", "", "range start (YYYY-MM-DD or RFC3339)")
	profession.Flags().StringVar(&pEnd, "end", "", "range end, inclusive")

	var cStart, cEnd string
	var limit int
	clients := &cobra.Command{
		Use:   "best-clients",
		Short: "Clients that paid the most in the range",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := engine.ParseRange(cStart, cEnd)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.BestClients(ctx, start, end, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Full name", "Paid")
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.FullName, it.Paid.StringFixed(2)})
				}
				tw.Render()
				return nil
			})
		},
	}
	clients.Flags().StringVar(&cStart, "start", "", "range start (YYYY-MM-DD or RFC3339)")
	clients.Flags().StringVar(&cEnd, "end", "", "range end, inclusive")
	clients.Flags().IntVar(&limit, "limit", engine.DefaultBestClientsLimit, "number of clients")

	r.AddCommand(profession, clients)
	return r
}

func eventsCmd() *cobra.Command {
	ev := &cobra.Command{Use: "events", Short: "Inspect the event log"}
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.LatestEvents(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor", "Payload")
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.TS.Format(time.RFC3339), it.Type, it.EntityKind + "/" + it.EntityID, it.ActorID, it.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	ev.AddCommand(tail)
	return ev
}

func adminCmd() *cobra.Command {
	a := &cobra.Command{Use: "admin", Short: "Admin helpers"}
	var subject string
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token for the /admin routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.AdminJWTSecret == "" {
				return errors.New("auth.admin_jwt_secret is not configured (set it in jobpay.yml or JOBPAY_ADMIN_JWT_SECRET)")
			}
			tok, err := auth.IssueAdminToken(cfg.Auth.AdminJWTSecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": tok, "subject": subject, "expires_in": ttl.String()})
			}
			fmt.Println(tok)
			return nil
		},
	}
	token.Flags().StringVar(&subject, "subject", "", "token subject")
	token.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = token.MarkFlagRequired("subject")
	a.AddCommand(token)
	return a
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config as YAML",
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
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if path == "" {
				path = config.Path(viper.GetString("workspace"))
			}
			if _, err := config.FromFile(path); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	})
	return c
}

func withStore(ctx context.Context, fn func(context.Context, store.Backend) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, st, err := app.OpenEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, e)
}

// withCaller resolves the acting profile the same way the profile header is resolved.
func withCaller(ctx context.Context, profileID string, fn func(context.Context, engine.Engine, domain.Profile) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		caller, err := e.ResolveProfile(ctx, profileID)
		if err != nil {
			return fmt.Errorf("profile %q: %w", profileID, err)
		}
		return fn(ctx, e, caller)
	})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func printProfiles(items ...domain.Profile) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Name", "Profession", "Type", "Balance")
	for _, p := range items {
		tw.AppendRow(table.Row{p.ID, p.FullName(), p.Profession, p.Type, p.Balance.StringFixed(2)})
	}
	tw.Render()
	return nil
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projectkart/internal/assets"
	"projectkart/internal/config"
	"projectkart/internal/db"
	"projectkart/internal/domain"
	"projectkart/internal/engine"
	"projectkart/internal/gateway"
	"projectkart/internal/mailer"
	"projectkart/internal/migrate"
	"projectkart/internal/repo"
	"projectkart/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pk",
	Short: "ProjectKart CLI",
	Long: `ProjectKart is a digital storefront for academic project PDFs.
Buyers browse the catalog, place orders and pay through the payment gateway
(or demo mode when no gateway is configured); paid orders are fulfilled by
email and stay downloadable. Admins manage subjects, projects and orders
through a token-gated API. 'pk serve' runs the whole thing.`,
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("PROJECTKART")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default projectkart.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(subjectsCmd())
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the storefront API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			conn, err := db.Open(db.Config{Workspace: cfg.DB.Workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			logger := log.New(os.Stderr, "projectkart ", log.LstdFlags)
			store, err := assets.New(cfg.Assets.Dir)
			if err != nil {
				return err
			}
			gw := gateway.New(cfg.Gateway.KeyID, cfg.Gateway.KeySecret, cfg.Gateway.APIURL)
			if !gw.Configured() {
				logger.Printf("no gateway credentials configured, orders will run in demo mode")
			}
			var m engine.Mailer
			if mm := mailer.New(mailer.Config{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				From:     cfg.SMTP.From,
			}); mm.Configured() {
				m = mm
			} else {
				logger.Printf("no SMTP credentials configured, purchase emails are disabled")
			}
			e := engine.New(conn, gw, m, store, logger)

			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret: cfg.Auth.JWTSecret,
					TokenTTL:  time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
					Logger:    logger,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving ProjectKart API on http://%s%s (OpenAPI at %s/openapi.json)\n", cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: cfg.DB.Workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func adminCmd() *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Manage admin accounts"}
	admin.AddCommand(adminCreateCmd())
	return admin
}

func adminCreateCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or update an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Print("password: ")
				scanner := bufio.NewScanner(os.Stdin)
				if !scanner.Scan() {
					return fmt.Errorf("no password provided")
				}
				password = strings.TrimSpace(scanner.Text())
			}
			if len(password) < 8 {
				return fmt.Errorf("password must be at least 8 characters")
			}
			hash, err := server.HashPassword(password)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a := domain.Admin{
					ID:           uuid.NewString(),
					Username:     username,
					PasswordHash: hash,
					CreatedAt:    time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.UpsertAdmin(ctx, a); err != nil {
					return err
				}
				fmt.Printf("admin %q ready\n", username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&password, "password", "", "admin password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// defaultSubjects is the starter catalog for a fresh install.
var defaultSubjects = []domain.Subject{
	{Name: "Computer Science", Description: "Programming, algorithms and software projects", Icon: "💻"},
	{Name: "Electronics", Description: "Circuits, embedded systems and IoT projects", Icon: "🔌"},
	{Name: "Mechanical", Description: "Design, thermal and manufacturing projects", Icon: "⚙️"},
	{Name: "Civil", Description: "Structures, surveying and construction projects", Icon: "🏗️"},
	{Name: "Management", Description: "Business, finance and marketing projects", Icon: "📊"},
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the default subject catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				created := 0
				for _, s := range defaultSubjects {
					if _, err := r.GetSubjectByName(ctx, s.Name); err == nil {
						continue
					} else if !errors.Is(err, repo.ErrNotFound) {
						return err
					}
					s.ID = uuid.NewString()
					s.CreatedAt = time.Now().UTC().Format(time.RFC3339)
					if err := r.InsertSubject(ctx, s); err != nil {
						return err
					}
					created++
				}
				fmt.Printf("seeded %d subject(s)\n", created)
				return nil
			})
		},
	}
}

func ordersCmd() *cobra.Command {
	orders := &cobra.Command{Use: "orders", Short: "Inspect orders"}
	orders.AddCommand(ordersListCmd())
	return orders
}

func ordersListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				orders, err := r.ListOrders(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Order", "Project", "Customer", "Amount", "Status", "Fulfilled", "Created"})
				for _, o := range orders {
					fulfilled := ""
					if o.FulfilledAt != nil {
						fulfilled = *o.FulfilledAt
					}
					tw.AppendRow(table.Row{o.OrderID, o.ProjectTitle, o.CustomerEmail, o.Amount, o.PaymentStatus, fulfilled, o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max orders to list")
	return cmd
}

func subjectsCmd() *cobra.Command {
	subjects := &cobra.Command{Use: "subjects", Short: "Inspect the subject catalog"}
	subjects.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List subjects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListSubjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Projects", "Created"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Name, s.ProjectCount, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return subjects
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: cfg.DB.Workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

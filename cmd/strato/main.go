package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"strato/internal/audit"
	"strato/internal/config"
	"strato/internal/db"
	"strato/internal/dispatch"
	"strato/internal/domain"
	"strato/internal/handlers"
	"strato/internal/migrate"
	"strato/internal/registry"
	"strato/internal/resolve"
	"strato/internal/server"
	"strato/internal/settings"
	"strato/internal/store"
	"strato/internal/tasks"
)

var rootCmd = &cobra.Command{
	Use:   "strato",
	Short: "Strato CLI",
	Long: `Strato serves a uniform REST dispatch API over an inventory of managed
resources: collections, actions, permissions and async tasks.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STRATO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(collectionsCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			secret := os.Getenv("STRATO_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("STRATO_JWT_SECRET is required for bearer auth")
			}

			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			st := store.Store{DB: conn}
			writer := audit.Writer{DB: conn}
			reg := registry.Default()
			engine := &dispatch.Engine{
				Resolver:   resolve.Resolver{Store: st},
				Handlers:   handlers.All(st),
				Tasks:      tasks.Service{Store: st},
				Audit:      &writer,
				BasePath:   cfg.Server.BasePath,
				Concurrent: cfg.API.Concurrent,
			}
			handler, err := server.New(server.Config{
				Registry:     reg,
				Store:        st,
				Engine:       engine,
				Audit:        writer,
				Settings:     settings.New(cfg.Settings),
				BasePath:     cfg.Server.BasePath,
				Auth:         server.AuthConfig{JWTSecret: secret},
				DefaultLimit: cfg.API.DefaultLimit,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Strato API on http://%s%s (OpenAPI at %s/openapi.json)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(conn *sql.DB) error {
				if err := migrate.Migrate(conn); err != nil {
					return err
				}
				fmt.Println("migrations applied")
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load a demo inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(conn *sql.DB) error {
				if err := migrate.Migrate(conn); err != nil {
					return err
				}
				st := store.Store{DB: conn}
				return seed(cmd.Context(), st)
			})
		},
	}
}

func seed(ctx context.Context, st store.Store) error {
	insert := func(r domain.Resource) (int64, error) {
		return st.InsertResource(ctx, r)
	}
	if _, err := insert(domain.Resource{Collection: "zones", Name: "default", Attributes: map[string]any{"description": "Default zone"}}); err != nil {
		return err
	}
	if _, err := insert(domain.Resource{Collection: "zones", Name: "east", Attributes: map[string]any{"description": "East datacenter"}}); err != nil {
		return err
	}
	providerID, err := insert(domain.Resource{
		Collection: "providers", Name: "vsphere-east", GUID: uuid.NewString(), Zone: "east",
		Attributes: map[string]any{"type": "vmware", "hostname": "vc.east.example.com", "port": 443},
	})
	if err != nil {
		return err
	}
	vmID, err := insert(domain.Resource{
		Collection: "vms", Name: "web-01", GUID: uuid.NewString(), Zone: "east",
		Attributes: map[string]any{"power_state": "on", "vendor": "vmware", "cpu_count": 4, "memory_mb": 8192, "provider_id": providerID},
	})
	if err != nil {
		return err
	}
	if _, err := insert(domain.Resource{
		Collection: "vms", Name: "db-01", GUID: uuid.NewString(), Zone: "east",
		Attributes: map[string]any{"power_state": "off", "vendor": "vmware", "cpu_count": 8, "memory_mb": 16384, "provider_id": providerID},
	}); err != nil {
		return err
	}
	if _, err := insert(domain.Resource{
		Collection: "hosts", Name: "esx-01", Zone: "east",
		Attributes: map[string]any{"hostname": "esx-01.east.example.com", "vmm_vendor": "vmware", "power_state": "on"},
	}); err != nil {
		return err
	}
	if _, err := insert(domain.Resource{
		Collection: "datastores", Name: "ds-nfs-01", Zone: "east",
		Attributes: map[string]any{"storage_type": "nfs", "total_space": 1 << 40, "free_space": 1 << 39},
	}); err != nil {
		return err
	}
	if _, err := insert(domain.Resource{
		Collection: "users", Name: "Administrator",
		Attributes: map[string]any{"userid": "admin", "email": "admin@example.com"},
	}); err != nil {
		return err
	}
	if _, err := insert(domain.Resource{
		Collection: "alerts", Name: "cpu pressure on web-01",
		Attributes: map[string]any{"severity": "warning", "acknowledged": false},
	}); err != nil {
		return err
	}
	if _, err := insert(domain.Resource{
		Collection: "snapshots", ParentID: &vmID, Name: "pre-upgrade",
		Attributes: map[string]any{"description": "before os upgrade", "snapshot_type": "manual"},
	}); err != nil {
		return err
	}
	if _, err := insert(domain.Resource{
		Collection: "tags", ParentID: &vmID, Name: "production",
		Attributes: map[string]any{"category": "environment"},
	}); err != nil {
		return err
	}
	fmt.Println("demo inventory seeded")
	return nil
}

func tokenCmd() *cobra.Command {
	var subject, group string
	var permissions []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			secret := os.Getenv("STRATO_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			token, err := server.MintToken(secret, subject, group, permissions, ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (user name)")
	cmd.Flags().StringVar(&group, "group", "", "group claim")
	cmd.Flags().StringArrayVar(&permissions, "permission", []string{}, "permission identifier (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func apikeyCmd() *cobra.Command {
	root := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var name string
	var permissions []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(conn *sql.DB) error {
				if err := migrate.Migrate(conn); err != nil {
					return err
				}
				st := store.Store{DB: conn}
				raw := uuid.NewString()
				key := domain.APIKey{
					ID:          uuid.NewString(),
					Name:        name,
					KeyHash:     store.HashAPIKey(raw),
					Permissions: permissions,
				}
				if err := st.InsertAPIKey(cmd.Context(), key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "key": raw})
				}
				fmt.Printf("api key %s created; pass it in X-Api-Key:\n%s\n", key.ID, raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key name")
	create.Flags().StringArrayVar(&permissions, "permission", []string{}, "permission identifier (repeatable)")
	_ = create.MarkFlagRequired("name")
	root.AddCommand(create)

	var id string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(conn *sql.DB) error {
				st := store.Store{DB: conn}
				return st.DeleteAPIKey(cmd.Context(), id)
			})
		},
	}
	del.Flags().StringVar(&id, "id", "", "key id")
	_ = del.MarkFlagRequired("id")
	root.AddCommand(del)

	return root
}

func collectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the registered API collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.Default()
			if viper.GetBool("json") {
				return printJSON(reg.All())
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Name", "Parent", "Alt Key", "Actions"})
			for _, col := range reg.All() {
				var actions []string
				for name, act := range col.Actions {
					if act.Mode == registry.ModeQueued {
						name += "*"
					}
					actions = append(actions, name)
				}
				sort.Strings(actions)
				tw.AppendRow(table.Row{col.Name, col.Parent, col.AltKey, strings.Join(actions, ", ")})
			}
			tw.Render()
			fmt.Println("* queued action")
			return nil
		},
	}
}

// --- helpers ---

func withDB(fn func(*sql.DB) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

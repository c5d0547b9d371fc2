package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ferry/internal/app"
	"ferry/internal/db"
	"ferry/internal/domain"
	"ferry/internal/engine"
	"ferry/internal/repo"
	"ferry/internal/server"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "ferry",
	Short: "Ferry CLI",
	Long: `Ferry moves files between locations with verified integrity.
Core concepts:
- Workspace: the .ferry directory holding the database and config.
- Location: a named root path (local disk, mount, removable drive).
- Intent: a declared transfer: one source, one or more destinations,
  optional include/exclude patterns.
- Scan: expands an intent into one transfer job per (file, destination).
- Run: executes pending jobs concurrently; every copy is re-read and
  hash-verified before it counts.
- Review queue: failures that cannot be retried automatically wait for
  a human decision (retry/skip/accept/rescan).
- Event log: diary of changes, view with 'ferry log tail'.`,
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
	viper.SetEnvPrefix("FERRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(locationCmd())
	rootCmd.AddCommand(intentCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
}

func locationCmd() *cobra.Command {
	loc := &cobra.Command{Use: "location", Short: "Manage locations"}
	loc.AddCommand(locationAddCmd())
	loc.AddCommand(locationListCmd())
	loc.AddCommand(locationAvailableCmd())
	return loc
}

func locationAddCmd() *cobra.Command {
	var name, kind, path, label string
	var available bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Declare a location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.CreateLocation(ctx, engine.CreateLocationOptions{
					Name:      name,
					Kind:      domain.LocationKind(kind),
					Path:      path,
					Label:     label,
					Available: available,
				})
				if err != nil {
					return err
				}
				return printJSON(l)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "location name")
	cmd.Flags().StringVar(&kind, "kind", "local", "location kind (local|remote|removable)")
	cmd.Flags().StringVar(&path, "path", "", "absolute root path")
	cmd.Flags().StringVar(&label, "label", "", "volume label")
	cmd.Flags().BoolVar(&available, "available", true, "location is reachable")
	return cmd
}

func locationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListLocations(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Kind", "Path", "Available"})
				for _, l := range items {
					tw.AppendRow(table.Row{l.ID, l.Name, l.Kind, l.Path, l.Available})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func locationAvailableCmd() *cobra.Command {
	var available bool
	cmd := &cobra.Command{
		Use:   "available <location-id>",
		Short: "Mark a location reachable or not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SetLocationAvailable(ctx, args[0], available); err != nil {
					return err
				}
				l, err := e.Repo.GetLocation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(l)
			})
		},
	}
	cmd.Flags().BoolVar(&available, "set", true, "availability value")
	return cmd
}

func intentCmd() *cobra.Command {
	in := &cobra.Command{Use: "intent", Short: "Manage transfer intents"}
	in.AddCommand(intentCreateCmd())
	in.AddCommand(intentListCmd())
	in.AddCommand(intentShowCmd())
	return in
}

func intentCreateCmd() *cobra.Command {
	var name, source, kind string
	var dests, include, exclude []string
	var priority int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Declare a transfer intent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.CreateIntent(ctx, engine.CreateIntentOptions{
					Name:            name,
					SourceID:        source,
					DestinationIDs:  dests,
					Kind:            domain.IntentKind(kind),
					Priority:        priority,
					IncludePatterns: include,
					ExcludePatterns: exclude,
				})
				if err != nil {
					return err
				}
				return printJSON(in)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "intent name")
	cmd.Flags().StringVar(&source, "source", "", "source location id")
	cmd.Flags().StringSliceVar(&dests, "dest", nil, "destination location id (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", "one_shot", "intent kind (one_shot|sync)")
	cmd.Flags().IntVar(&priority, "priority", 0, "scheduling priority")
	cmd.Flags().StringSliceVar(&include, "include", nil, "include glob (repeatable)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "exclude glob (repeatable)")
	return cmd
}

func intentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List intents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListIntents(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Files", "Bytes", "Done"})
				for _, in := range items {
					name := ""
					if in.Name != nil {
						name = *in.Name
					}
					tw.AppendRow(table.Row{in.ID, name, in.Status, in.TotalFiles, in.TotalBytes, in.CompletedFiles})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func intentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <intent-id>",
		Short: "Show an intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.GetIntent(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(in)
			})
		},
	}
	return cmd
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <intent-id>",
		Short: "Expand an intent into transfer jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.Scan(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <intent-id>",
		Short: "Execute pending transfer jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.Run(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	return cmd
}

func jobCmd() *cobra.Command {
	jc := &cobra.Command{Use: "job", Short: "Inspect transfer jobs"}
	jc.AddCommand(jobListCmd())
	return jc
}

func jobListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list <intent-id>",
		Short: "List jobs for an intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobs, err := e.Repo.ListJobs(ctx, args[0], domain.JobStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Source", "Status", "Attempts", "Bytes", "Error"})
				for _, j := range jobs {
					lastError := ""
					if j.LastError != nil {
						lastError = *j.LastError
					}
					tw.AppendRow(table.Row{j.ID, j.SourcePath, j.Status, j.Attempts, j.BytesTransferred, lastError})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func reviewCmd() *cobra.Command {
	rc := &cobra.Command{Use: "review", Short: "Manage the review queue"}
	rc.AddCommand(reviewListCmd())
	rc.AddCommand(reviewResolveCmd())
	return rc
}

func reviewListCmd() *cobra.Command {
	var intentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open review items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListOpenReviews(ctx, intentID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Source", "Options", "Error"})
				for _, item := range items {
					tw.AppendRow(table.Row{item.ID, item.ErrorKind, item.SourcePath,
						strings.Join(item.Options, ","), item.ErrorMessage})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&intentID, "intent", "", "intent filter")
	return cmd
}

func reviewResolveCmd() *cobra.Command {
	var resolution string
	cmd := &cobra.Command{
		Use:   "resolve <review-id>",
		Short: "Resolve a review item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if resolution == "" {
				return fmt.Errorf("--resolution required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				item, err := e.ResolveReview(ctx, args[0], resolution)
				if err != nil {
					return err
				}
				return printJSON(item)
			})
		},
	}
	cmd.Flags().StringVar(&resolution, "resolution", "", "retry|skip|accept|rescan")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountAllJobsByStatus(ctx)
				if err != nil {
					return err
				}
				reviews, err := e.ListOpenReviews(ctx, "")
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"jobs":         counts,
					"open_reviews": len(reviews),
				})
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lc := &cobra.Command{Use: "log", Short: "Event log"}
	lc.AddCommand(logTailCmd())
	return lc
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, intentID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, intentID, evtType)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&intentID, "intent", "", "intent filter")
	return cmd
}

func keysCmd() *cobra.Command {
	kc := &cobra.Command{Use: "keys", Short: "Manage API keys"}
	kc.AddCommand(keysCreateCmd())
	kc.AddCommand(keysListCmd())
	kc.AddCommand(keysRevokeCmd())
	return kc
}

func keysCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				raw := "fy_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:      uuid.NewString(),
					Name:    name,
					KeyHash: repo.HashAPIKey(raw),
				}
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// Shown once; only the hash is stored.
				return printJSON(map[string]string{"id": key.ID, "key": raw})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func keysListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func keysRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				listen := e.Config.Server.Listen
				if addr != "" {
					listen = addr
				}
				base := e.Config.Server.BasePath
				if basePath != "" {
					base = basePath
				}
				secret := e.Config.Auth.JWTSecret
				if s := os.Getenv("FERRY_JWT_SECRET"); s != "" {
					secret = s
				}
				authCfg := server.AuthConfig{
					JWTSecret: secret,
					APIKeys:   e.Config.Auth.APIKeys,
					Log:       e.Log,
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: base, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: listen, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Ferry API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", listen, base, base)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ferry", version)
		},
	}
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	e, err := app.Open(workspace, newLogger())
	if err != nil {
		return err
	}
	defer e.DB.Close()
	return fn(ctx, e)
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"db_declarative_schema_syncer/internal/apply"
	"db_declarative_schema_syncer/internal/config"
	"db_declarative_schema_syncer/internal/credentials"
	"db_declarative_schema_syncer/internal/diff"
	"db_declarative_schema_syncer/internal/events"
	httpserver "db_declarative_schema_syncer/internal/http"
	"db_declarative_schema_syncer/internal/logging"
	"db_declarative_schema_syncer/internal/pool"
	"db_declarative_schema_syncer/internal/project"
	"db_declarative_schema_syncer/internal/secret"
	"db_declarative_schema_syncer/internal/shadow"
	"db_declarative_schema_syncer/internal/syncer"
	"db_declarative_schema_syncer/internal/watch"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "plan":
		exitOn(planCmd(args))
	case "push":
		exitOn(pushCmd(args))
	case "pull":
		exitOn(pullCmd(args))
	case "watch":
		exitOn(watchCmd(args))
	case "projects":
		exitOn(projectsCmd(args))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`declarative schema syncer commands:
  plan      - show the statements a push would run, without applying
  push      - sync local schema files to the target database
  pull      - reconstruct local schema files from the target database
  watch     - push automatically whenever local files change
  projects  - list, create and fetch credentials for platform projects

Flags are command specific; run "<cmd> -h" for details.`)
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", secret.RedactErr(err))
		os.Exit(1)
	}
}

func flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	return fs
}

// engineFlags are the overrides shared by the sync commands.
type engineFlags struct {
	schemaDir *string
	seedFile  *string
	jsonOut   *bool
}

func addEngineFlags(fs *flag.FlagSet) engineFlags {
	return engineFlags{
		schemaDir: fs.String("schema-dir", "", "schema file directory (default from config)"),
		seedFile:  fs.String("seed", "", "seed script to run after a successful apply"),
		jsonOut:   fs.Bool("json", false, "emit NDJSON events on stdout instead of text"),
	}
}

func loadConfig(ef engineFlags) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if *ef.schemaDir != "" {
		cfg.SchemaDir = *ef.schemaDir
	}
	if *ef.seedFile != "" {
		cfg.SeedFile = *ef.seedFile
	}
	return cfg, nil
}

// newLogger picks the handler to match the output mode: JSON mode keeps
// stderr machine-parseable alongside the NDJSON event stream, interactive
// runs get text lines.
func newLogger(level string, jsonOut bool) *slog.Logger {
	if jsonOut {
		return logging.NewLogger(level)
	}
	return logging.NewTextLogger(level)
}

// buildEngine wires the long-lived collaborators. The caller must Close
// the returned pool manager.
func buildEngine(cfg config.Config, jsonOut bool, extra events.Sink) (*syncer.Engine, *pool.Manager, *slog.Logger) {
	logger := newLogger(cfg.LogLevel, jsonOut)

	var sink events.Sink
	if jsonOut {
		sink = events.NewJSONSink(os.Stdout)
	} else {
		sink = events.NewTextSink(os.Stdout)
	}
	if extra != nil {
		sink = events.Multi{sink, extra}
	}

	pools := pool.NewManager(logger)
	rules := syncer.DefaultRules()
	eng := &syncer.Engine{
		Source: syncer.DirSource{Root: cfg.SchemaDir},
		Live:   syncer.PoolLive{Pools: pools, DSN: cfg.DatabaseURL},
		Shadow: &shadow.Builder{
			Factory: &shadow.PostgresFactory{ClusterURL: cfg.ShadowClusterURL, Logger: logger},
			Logger:  logger,
		},
		Oracle:   diff.NewCatalogOracle(rules),
		Rules:    rules,
		Events:   sink,
		Logger:   logger,
		SeedFile: cfg.SeedFile,
	}
	return eng, pools, logger
}

func planCmd(args []string) error {
	fs := flagSet("plan")
	ef := addEngineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(ef)
	if err != nil {
		return err
	}

	eng, pools, _ := buildEngine(cfg, *ef.jsonOut, nil)
	defer pools.Close()

	ctx, stop := signalContext()
	defer stop()

	plan, err := eng.CreatePlan(ctx)
	if err != nil {
		return err
	}
	if !plan.HasChanges() {
		fmt.Println("target is up to date")
		return nil
	}
	for _, stmt := range plan.Statements {
		fmt.Println(stmt)
	}
	return nil
}

func pushCmd(args []string) error {
	fs := flagSet("push")
	ef := addEngineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(ef)
	if err != nil {
		return err
	}

	eng, pools, _ := buildEngine(cfg, *ef.jsonOut, nil)
	defer pools.Close()

	ctx, stop := signalContext()
	defer stop()

	res, err := eng.Push(ctx)
	if err != nil {
		return err
	}
	switch res.Status {
	case apply.StatusApplied, apply.StatusAlreadyApplied:
		return nil
	case apply.StatusFingerprintMismatch:
		return fmt.Errorf("target changed since planning; run push again")
	default:
		return fmt.Errorf("push %s: %s", res.Status, res.Error)
	}
}

func pullCmd(args []string) error {
	fs := flagSet("pull")
	ef := addEngineFlags(fs)
	outDir := fs.String("out", "", "output directory (default the schema dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(ef)
	if err != nil {
		return err
	}
	dir := *outDir
	if dir == "" {
		dir = cfg.SchemaDir
	}

	eng, pools, _ := buildEngine(cfg, *ef.jsonOut, nil)
	defer pools.Close()

	ctx, stop := signalContext()
	defer stop()

	paths, err := eng.Pull(ctx, dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("target has no user-owned schema objects")
	}
	return nil
}

func watchCmd(args []string) error {
	fs := flagSet("watch")
	ef := addEngineFlags(fs)
	statusAddr := fs.String("status-addr", "", "address for the status API (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(ef)
	if err != nil {
		return err
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}

	memory := events.NewMemory(256)
	eng, pools, logger := buildEngine(cfg, *ef.jsonOut, memory)
	defer pools.Close()

	ctx, stop := signalContext()
	defer stop()

	state := &httpserver.State{}
	syncOnce := func(ctx context.Context) error {
		res, err := eng.Push(ctx)
		if err != nil {
			state.RecordError(secret.RedactErr(err))
			return err
		}
		state.RecordResult(res)
		return nil
	}

	if cfg.StatusAddr != "" {
		live, err := pools.Get(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		srv := &httpserver.Server{
			Addr:   cfg.StatusAddr,
			Logger: logger,
			Live:   live,
			State:  state,
			Events: memory,
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("status server stopped", "error", secret.RedactErr(err))
			}
		}()
	}

	// One sync up front so a dirty tree converges without waiting for a
	// save event.
	if err := syncOnce(ctx); err != nil {
		logger.Error("initial sync failed", "error", secret.RedactErr(err))
	}

	w := &watch.Watcher{
		Root:     cfg.SchemaDir,
		Debounce: cfg.Debounce,
		Sync:     syncOnce,
		Logger:   logger,
	}
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func projectsCmd(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: projects <list|create|credentials> [flags]")
	}
	sub := args[0]
	rest := args[1:]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.APIToken == "" {
		return fmt.Errorf("DECLSYNC_API_TOKEN is required for project commands")
	}
	client := project.New(cfg.APIBaseURL, cfg.APIToken)

	ctx, stop := signalContext()
	defer stop()

	switch sub {
	case "list":
		projects, err := client.ListProjects(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "REF\tNAME\tREGION\tSTATUS")
		for _, p := range projects {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Ref, p.Name, p.Region, p.Status)
		}
		return tw.Flush()

	case "create":
		fs := flagSet("projects create")
		name := fs.String("name", "", "project name")
		region := fs.String("region", "us-east-1", "project region")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *name == "" {
			return fmt.Errorf("-name is required")
		}
		p, err := client.CreateProject(ctx, project.CreateRequest{Name: *name, Region: *region})
		if err != nil {
			return err
		}
		fmt.Printf("created project %s (%s)\n", p.Ref, p.Status)
		return nil

	case "credentials":
		fs := flagSet("projects credentials")
		ref := fs.String("ref", "", "project ref")
		save := fs.Bool("save", false, "store the connection string in the local credential store")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *ref == "" {
			return fmt.Errorf("-ref is required")
		}
		creds, err := client.GetCredentials(ctx, *ref)
		if err != nil {
			return err
		}
		fmt.Println("host:", creds.Host)
		fmt.Println("port:", creds.Port)
		fmt.Println("pooler:", secret.RedactURL(creds.PoolerURL))
		if *save {
			store, err := credentials.Open(defaultCredentialPath(), os.Getenv("DECLSYNC_CREDENTIALS_PASSPHRASE"))
			if err != nil {
				return err
			}
			if err := store.Set(*ref, creds.PoolerURL); err != nil {
				return fmt.Errorf("store credentials: %w", err)
			}
			fmt.Println("credentials stored for", *ref)
		}
		return nil

	default:
		return fmt.Errorf("unknown projects subcommand %s", sub)
	}
}

func defaultCredentialPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "declsync-credentials.json"
	}
	return filepath.Join(home, ".config", "declsync", "credentials.json")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Command loom drives the generative asset graph engine from the shell.
//
// Usage:
//
//	loom init --root ./demo --name demo     # initialize a project
//	loom recipes --config loom.yaml         # list loaded recipe manifests
//	loom run --node n1 --recipe shout       # run a recipe against a node
//	loom status                             # print the staleness report
//	loom version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loomworks/loom"
	"github.com/loomworks/loom/config"
	"github.com/loomworks/loom/project"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "recipes":
		runRecipes(os.Args[2:])
	case "run":
		runRun(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	root := fs.String("root", ".", "Project directory")
	name := fs.String("name", "untitled", "Project name")
	fs.Parse(args)

	store := project.NewFileStore(*root, zap.NewNop())
	p, err := store.InitOrLoad(*name)
	if err != nil {
		fatal("init project: %v", err)
	}
	fmt.Printf("Project %q (%s) at %s\n", p.Meta.Name, p.Meta.ID, store.Path())
}

func runRecipes(args []string) {
	fs := flag.NewFlagSet("recipes", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	ws, err := loom.Open(cfg, logger)
	if err != nil {
		fatal("open workspace: %v", err)
	}
	n, err := ws.LoadRecipes()
	if err != nil {
		fatal("load recipes: %v", err)
	}
	fmt.Printf("%d recipes loaded from %s\n", n, cfg.Recipes.Dir)
	for _, def := range ws.Recipes.All() {
		fmt.Printf("  %-20s %-24s %s (%s)\n", def.ID, def.Name, def.Category, def.Executor.Kind())
	}
}

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	nodeID := fs.String("node", "", "Node to run against")
	recipeID := fs.String("recipe", "", "Recipe to run")
	fs.Parse(args)

	if *nodeID == "" || *recipeID == "" {
		fatal("both --node and --recipe are required")
	}

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	ws, err := loom.Open(cfg, logger)
	if err != nil {
		fatal("open workspace: %v", err)
	}
	if _, err := ws.LoadRecipes(); err != nil {
		fatal("load recipes: %v", err)
	}
	p, err := ws.LoadProject()
	if err != nil {
		fatal("load project: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := ws.Engine.Run(ctx, *nodeID, *recipeID)
	if err != nil {
		fatal("run failed: %v", err)
	}
	if err := ws.SaveProject(p); err != nil {
		fatal("save project: %v", err)
	}

	for _, created := range report.Created {
		fmt.Printf("created %s (%s)\n", created.ID, created.Kind)
	}
	for _, merged := range report.Merged {
		fmt.Printf("merged into %s\n", merged)
	}
	if len(report.Created) == 0 && len(report.Merged) == 0 {
		fmt.Println("done")
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	ws, err := loom.Open(cfg, logger)
	if err != nil {
		fatal("open workspace: %v", err)
	}
	p, err := ws.LoadProject()
	if err != nil {
		fatal("load project: %v", err)
	}

	stale := ws.Propagator.StaleNodes()
	fmt.Printf("Project %q: %d nodes, %d edges, %d stale\n",
		p.Meta.Name, len(ws.Graph.Nodes()), len(ws.Graph.Edges()), len(stale))
	for _, id := range stale {
		node, ok := ws.Graph.Node(id)
		if !ok {
			continue
		}
		recipeID := ""
		if node.Data.Provenance != nil {
			recipeID = node.Data.Provenance.RecipeID
		}
		fmt.Printf("  stale: %s (%s, recipe %s)\n", id, node.Kind, recipeID)
	}
}

// setup loads configuration and builds the logger from its log section.
func setup(configPath string) (*config.Config, *zap.Logger) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fatal("load config: %v", err)
	}
	return cfg, initLogger(cfg.Log)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func printVersion() {
	fmt.Printf("loom %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`loom - generative asset graph engine

Usage:
  loom <command> [options]

Commands:
  init      Initialize a project directory
  recipes   Load and list recipe manifests
  run       Run a recipe against a node
  status    Print the staleness report
  version   Show version information
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)

Examples:
  loom init --root ./demo --name demo
  loom recipes --config loom.yaml
  loom run --config loom.yaml --node n1 --recipe shout
  loom status --config loom.yaml`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

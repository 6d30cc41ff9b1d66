package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/shapeshift-engine/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/shapeshift-engine/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/shapeshift-engine/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/shapeshift-engine/pkg/config"
	"github.com/ekaya-inc/shapeshift-engine/pkg/logging"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

type cliFlags struct {
	configPath  string
	projectPath string
	entities    string
	stopOnError bool
	testFK      string
	graph       bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "engine config file (default config.yaml)")
	flag.StringVar(&f.projectPath, "project", "", "entity configuration file (overrides PROJECT_CONFIG)")
	flag.StringVar(&f.entities, "entities", "", "comma-separated entities to process, with their dependencies")
	flag.BoolVar(&f.stopOnError, "stop-on-error", false, "abort the run on the first entity failure")
	flag.StringVar(&f.testFK, "test-fk", "", "test the foreign keys of one entity instead of running")
	flag.BoolVar(&f.graph, "graph", false, "print the dependency analysis and exit")
	flag.Parse()
	return f
}

func main() {
	os.Exit(realMain())
}

// realMain returns the process exit code so deferred cleanup runs before exit.
func realMain() int {
	flags := parseFlags()

	cfg, err := config.Load(flags.configPath, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("Starting shapeshift-engine",
		zap.String("version", cfg.Version),
		zap.Strings("loaders", loaderTypes()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flags, logger); err != nil {
		logger.Error("shapeshift-engine failed", zap.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, flags cliFlags, logger *zap.Logger) error {
	projectPath := cfg.ProjectConfig
	if flags.projectPath != "" {
		projectPath = flags.projectPath
	}
	if projectPath == "" {
		return errors.New("no entity configuration: pass -project or set PROJECT_CONFIG")
	}

	project, err := services.NewConfigurationLoader(logger).LoadFile(projectPath)
	if err != nil {
		return err
	}

	if flags.graph {
		report := services.AnalyzeDependencies(services.BuildDependencyMap(project))
		services.LogDependencyReport(logger, report)
		return printJSON(report)
	}

	opts := cfg.RunOptions()
	opts.Entities = splitList(flags.entities)
	if flags.stopOnError {
		opts.StopOnError = true
	}

	factory := datasource.NewLoaderFactory(datasource.LoaderConfig{
		MaxOpenConns:   cfg.Datasource.MaxOpenConns,
		ConnectRetries: cfg.Datasource.ConnectRetries,
	}, logger)
	newMaterializer := services.NewMaterializerFactory(factory, logger)

	if flags.testFK != "" {
		results, err := services.NewForeignKeyTestService(newMaterializer, logger).
			TestEntityForeignKeys(ctx, project, flags.testFK, opts)
		if err != nil {
			return err
		}
		return printJSON(results)
	}

	svc := services.NewProcessingService(services.NewRunRegistry(), newMaterializer, logger)
	defer func() {
		if err := svc.Shutdown(context.Background()); err != nil {
			logger.Warn("Shutdown did not complete cleanly", zap.Error(err))
		}
	}()

	result, err := svc.Run(ctx, project, opts)
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if result.Status != models.RunStatusCompleted {
		return fmt.Errorf("run %s finished %s: %s", result.RunID, result.Status, result.Error)
	}
	return nil
}

func loaderTypes() []string {
	infos := datasource.RegisteredLoaders()
	types := make([]string, len(infos))
	for i, info := range infos {
		types[i] = info.Type
	}
	return types
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/dittofd/internal/logger"
	"github.com/marmos91/dittofd/pkg/config"
	"github.com/marmos91/dittofd/pkg/kernel"
	"github.com/marmos91/dittofd/pkg/openfile"
	"github.com/marmos91/dittofd/pkg/script"
	"github.com/marmos91/dittofd/pkg/vnode/device"
	flag "github.com/spf13/pflag"
)

const usage = `DittoFD - file descriptor kernel

Usage:
  dittofd [flags]              Start the kernel and run any --script files
  dittofd init [--force]       Write a default configuration file

Flags:
`

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to write (default: "+config.GetDefaultConfigPath()+")")
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.InitConfig(*force); err != nil {
			return err
		}
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func run(args []string) error {
	fs := flag.NewFlagSet("dittofd", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	scripts := fs.StringArray("script", nil, "Script to run (repeatable, runs in order)")
	logLevel := fs.String("log-level", "", "Override logging.level (DEBUG, INFO, WARN, ERROR)")
	keepRunning := fs.Bool("keep-running", false, "Keep serving after the scripts finish")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	// ========================================================================
	// Step 1: Load configuration and configure logging
	// ========================================================================

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return err
	}

	logger.Info("DittoFD starting")
	logger.Info("Kernel: open_max=%d process_open_max=%d path_max=%d console=%t",
		cfg.Kernel.OpenMax, cfg.Kernel.ProcessOpenMax, cfg.Kernel.PathMax, cfg.Kernel.ConsoleEnabled())

	// ========================================================================
	// Step 2: Metrics, filesystems and the kernel
	// ========================================================================

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsResult, err := config.InitializeMetrics(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	console := device.NewConsole(os.Stdin, os.Stdout)
	root, closers, err := config.CreateVFS(ctx, cfg, console, metricsResult.S3)
	if err != nil {
		if metricsResult.Server != nil {
			_ = metricsResult.Server.Stop(context.Background())
		}
		return fmt.Errorf("failed to create filesystems: %w", err)
	}
	defer func() {
		if err := closers.Close(); err != nil {
			logger.Error("Failed to close filesystems: %v", err)
		}
	}()
	logger.Info("Filesystem: root=%s devices=%v", cfg.Filesystem.Type, root.Devices())

	table, err := openfile.NewTable(cfg.Kernel.OpenMax)
	if err != nil {
		return err
	}

	k, err := kernel.New(table, root, kernel.Options{
		OpenMax: cfg.Kernel.ProcessOpenMax,
		PathMax: cfg.Kernel.PathMax,
		Console: cfg.Kernel.ConsoleEnabled(),
		Metrics: metricsResult.Kernel,
	})
	if err != nil {
		return fmt.Errorf("failed to create kernel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()
		if err := k.Shutdown(shutdownCtx); err != nil {
			logger.Error("Kernel shutdown: %v", err)
		}
		logger.Info("Kernel stopped")
	}()

	serveErr := make(chan error, 1)
	if srv := metricsResult.Server; srv != nil {
		go func() { serveErr <- srv.Serve(ctx) }()
	}

	// ========================================================================
	// Step 3: Run scripts, then wait for a signal if asked to
	// ========================================================================

	if err := runScripts(ctx, k, *scripts); err != nil {
		return err
	}

	if len(*scripts) > 0 && !*keepRunning {
		return stopMetrics(metricsResult, *shutdownTimeout)
	}

	logger.Info("Kernel is running. Press Ctrl+C to stop.")
	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}
	return stopMetrics(metricsResult, *shutdownTimeout)
}

func runScripts(ctx context.Context, k *kernel.Kernel, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	runner := script.NewRunner(k, 0)
	defer func() {
		if err := runner.Close(context.Background()); err != nil {
			logger.Warn("Script processes exited with errors: %v", err)
		}
	}()

	for _, path := range paths {
		s, err := script.Load(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		results, err := runner.Run(ctx, s)
		for _, res := range results {
			fmt.Fprintln(os.Stderr, res)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Info("Script %s: %d steps passed", path, len(results))
	}
	return nil
}

func stopMetrics(m *config.MetricsResult, timeout time.Duration) error {
	if m.Server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.Server.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}
	return nil
}

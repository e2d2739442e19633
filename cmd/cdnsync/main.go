// Command cdnsync uploads changed build outputs to a CDN, rewrites the
// references to them and keeps a fingerprint cache between runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"cdnsync/internal/buildout"
	"cdnsync/internal/config"
	"cdnsync/internal/pipeline"
	"cdnsync/internal/remote"
	"cdnsync/internal/rewrite"
	"cdnsync/internal/upload"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath    string
	root          string
	env           string
	buildDir      string
	concurrency   int
	verbose       bool
	strict        bool
	noWriteBack   bool
	rewriteCached bool
}

func run(args []string, stdout, stderr io.Writer) error {
	var f flags
	flagSet := pflag.NewFlagSet("cdnsync", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&f.configPath, "config", "", "path to a YAML config file (default: "+config.DefaultFile+" in --root)")
	flagSet.StringVar(&f.root, "root", ".", "project root")
	flagSet.StringVar(&f.env, "env", "", "environment name, overrides CDNSYNC_ENV and NODE_ENV")
	flagSet.StringVar(&f.buildDir, "build-dir", "", "build output directory relative to --root")
	flagSet.IntVar(&f.concurrency, "concurrency", 0, "parallel uploads")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	flagSet.BoolVar(&f.strict, "strict", false, "exit non-zero when any asset fails to upload")
	flagSet.BoolVar(&f.noWriteBack, "no-write-back", false, "do not write rewritten outputs back to the build directory")
	flagSet.BoolVar(&f.rewriteCached, "rewrite-cached", false, "also rewrite references to unchanged assets")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := config.Load(f.root, f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, flagSet, f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if cfg.IsDev() {
		logger.Info("skipping CDN upload in development environment", "env", cfg.Env)
		return nil
	}
	prefix := cfg.EnvPrefix()
	if prefix == "" {
		logger.Warn("no remote path configured for environment, skipping", "env", cfg.Env)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := syncBuild(ctx, cfg, prefix, logger)
	if sum != nil {
		if werr := sum.Write(stdout); werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		return err
	}
	if f.strict && !sum.OK() {
		return fmt.Errorf("%d assets failed to upload", len(sum.Failed))
	}
	return nil
}

func applyFlags(cfg *config.Config, flagSet *pflag.FlagSet, f flags) {
	if flagSet.Changed("env") {
		cfg.Env = f.env
	}
	if flagSet.Changed("build-dir") {
		cfg.BuildDir = f.buildDir
	}
	if flagSet.Changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if f.noWriteBack {
		cfg.Rewrite.WriteBack = false
	}
	if f.rewriteCached {
		cfg.Rewrite.Cached = true
	}
}

func syncBuild(ctx context.Context, cfg *config.Config, prefix string, logger *slog.Logger) (*pipeline.Summary, error) {
	store, err := remote.New(cfg.RemoteOptions())
	if err != nil {
		return nil, fmt.Errorf("init remote store: %w", err)
	}
	executor, err := upload.New(store, cfg.UploadOptions(), logger.With("component", "upload"))
	if err != nil {
		return nil, err
	}
	rewriter, err := rewrite.New(logger.With("component", "rewrite"), rewrite.DefaultPatternCacheSize)
	if err != nil {
		return nil, err
	}

	dir, err := buildout.OpenDir(cfg.BuildPath(), excludedFromBuild(cfg)...)
	if err != nil {
		return nil, err
	}
	outputs, err := dir.Load()
	if err != nil {
		return nil, err
	}
	logger.Info("loaded build outputs", "dir", dir.Root(), "count", len(outputs), "prefix", prefix)

	orch, err := pipeline.New(cfg.CachePath(), executor, rewriter, pipeline.Options{
		Prefix:          prefix,
		Concurrency:     cfg.Concurrency,
		RetentionWindow: cfg.RetentionWindow(),
		RewriteCached:   cfg.Rewrite.Cached,
		Logger:          logger.With("component", "pipeline"),
	})
	if err != nil {
		return nil, err
	}
	sum, err := orch.Run(ctx, outputs)
	if err != nil {
		return sum, err
	}

	if cfg.Rewrite.WriteBack {
		written, err := dir.WriteBack(outputs)
		if err != nil {
			return sum, err
		}
		logger.Info("wrote rewritten outputs", "count", len(written))
	}
	return sum, nil
}

// excludedFromBuild lists our own files that live inside the build directory.
func excludedFromBuild(cfg *config.Config) []string {
	var out []string
	for _, p := range []string{cfg.CachePath(), cfg.RemoteOptions().File.Root} {
		if p == "" {
			continue
		}
		rel, err := filepath.Rel(cfg.BuildPath(), p)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/Brownie44l1/upscaler/internal/config"
	"github.com/Brownie44l1/upscaler/internal/enhance"
	"github.com/Brownie44l1/upscaler/internal/handlers"
	"github.com/Brownie44l1/upscaler/internal/imageio"
	"github.com/Brownie44l1/upscaler/internal/model"
	"github.com/Brownie44l1/upscaler/internal/raster"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

type options struct {
	configPath string
	logLevel   string
	logFormat  string
	ortLibrary string
	workers    int
	onnx       bool

	// serve
	modelPath string
	port      string
}

func newRootCommand(logger *logrus.Logger) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "upscaler <input> <output> <intensity> | --onnx <model> <input> <output>",
		Short: "Upscale an image 2x and sharpen it",
		Long: `upscaler doubles the size of an image.

By default it resizes with a Lanczos-3 filter and sharpens the result with a
3x3 kernel whose strength is <intensity> (0 or less disables sharpening).
With --onnx it runs the image through a super-resolution ONNX model instead.

Flags must come before the positional arguments.`,
		Example: `  upscaler photo.png photo_2x.png 1.5
  upscaler --onnx models/sr.onnx photo.png photo_2x.png`,
		Args:          opts.validateArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := opts.load(cmd.Flags(), logger)
			if err != nil {
				return err
			}
			if opts.onnx {
				return runAI(cfg, logger, args[0], args[1], args[2])
			}
			intensity, _ := strconv.ParseFloat(args[2], 64)
			return runClassical(cfg, logger, args[0], args[1], intensity)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")
	pf.StringVar(&opts.ortLibrary, "ort-lib", "", "path to the onnxruntime shared library")
	pf.IntVar(&opts.workers, "workers", 0, "goroutines used for sharpening (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&opts.onnx, "onnx", false, "use an ONNX super-resolution model: --onnx <model> <input> <output>")
	// flags end at the first positional, so a negative intensity is not read as a flag
	cmd.Flags().SetInterspersed(false)

	cmd.AddCommand(
		newServeCommand(opts, logger),
		newInspectCommand(opts, logger),
		newVersionCommand(),
	)
	return cmd
}

func (o *options) validateArgs(cmd *cobra.Command, args []string) error {
	if o.onnx {
		if len(args) != 3 {
			return fmt.Errorf("AI mode takes 3 arguments (<model> <input> <output>), got %d", len(args))
		}
		return nil
	}
	if len(args) != 3 {
		return fmt.Errorf("classical mode takes 3 arguments (<input> <output> <intensity>), got %d", len(args))
	}
	if _, err := strconv.ParseFloat(args[2], 64); err != nil {
		return fmt.Errorf("intensity %q must be a number", args[2])
	}
	return nil
}

// load reads the config file and lets explicitly set flags win over it.
func (o *options) load(flags *pflag.FlagSet, logger *logrus.Logger) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if flags.Changed("ort-lib") {
		cfg.OnnxRuntimeLibrary = o.ortLibrary
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Lookup("model") != nil && flags.Changed("model") {
		cfg.ModelPath = o.modelPath
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Server.Port = o.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	if err := configureLogger(logger, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configureLogger(logger *logrus.Logger, cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return nil
}

func runClassical(cfg *config.Config, logger *logrus.Logger, input, output string, intensity float64) error {
	if err := checkOutput(output); err != nil {
		return err
	}
	img, format, err := imageio.Load(input)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"input":  input,
		"format": format,
		"width":  img.Width,
		"height": img.Height,
	}).Info("loaded image")

	e := enhance.New(enhance.WithLogger(logger), enhance.WithWorkers(cfg.Workers))
	out, err := e.Classical(img, cfg.ScaleFactor, intensity)
	if err != nil {
		return err
	}
	return save(cfg, logger, output, out)
}

func runAI(cfg *config.Config, logger *logrus.Logger, modelPath, input, output string) error {
	if err := checkOutput(output); err != nil {
		return err
	}
	img, format, err := imageio.Load(input)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"input":  input,
		"format": format,
		"width":  img.Width,
		"height": img.Height,
	}).Info("loaded image")

	rt, err := model.NewRuntime(cfg.OnnxRuntimeLibrary, cfg.InferenceThreads, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	e := enhance.New(enhance.WithLogger(logger), enhance.WithRunner(rt), enhance.WithWorkers(cfg.Workers))
	out, err := e.AI(img, modelPath, cfg.TileSize)
	if err != nil {
		return err
	}
	return save(cfg, logger, output, out)
}

// checkOutput rejects unsupported output formats before any work is done.
func checkOutput(path string) error {
	if _, ok := imageio.FormatFor(path); !ok {
		return &imageio.EncodeError{Path: path, Err: fmt.Errorf("unsupported output format, want one of %v", imageio.SupportedExtensions())}
	}
	return nil
}

func save(cfg *config.Config, logger *logrus.Logger, path string, img *raster.Raster) error {
	if err := imageio.Save(path, img, imageio.Options{JPEGQuality: cfg.JPEGQuality}); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"output": path,
		"width":  img.Width,
		"height": img.Height,
	}).Info("image processing complete")
	return nil
}

func newServeCommand(opts *options, logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the enhancement pipelines over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := opts.load(cmd.Flags(), logger)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&opts.modelPath, "model", "", "ONNX model used for mode=ai")
	cmd.Flags().StringVar(&opts.port, "port", "", "listen port (default from config or PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	enhancerOpts := []enhance.Option{enhance.WithLogger(logger), enhance.WithWorkers(cfg.Workers)}
	var inspector handlers.Inspector
	if cfg.ModelPath != "" {
		rt, err := model.NewRuntime(cfg.OnnxRuntimeLibrary, cfg.InferenceThreads, logger)
		if err != nil {
			return err
		}
		defer rt.Close()
		enhancerOpts = append(enhancerOpts, enhance.WithRunner(rt))
		inspector = rt
	}

	handler := handlers.NewHandler(enhance.New(enhancerOpts...), inspector, cfg, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	logger.WithFields(logrus.Fields{
		"port":  cfg.Server.Port,
		"model": cfg.ModelPath,
	}).Info("server starting")
	logger.Info("endpoints: GET /health, GET /model, POST /enhance/image")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newInspectCommand(opts *options, logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <model>",
		Short: "Print the input and output slots of an ONNX model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := opts.load(cmd.Flags(), logger)
			if err != nil {
				return err
			}
			rt, err := model.NewRuntime(cfg.OnnxRuntimeLibrary, cfg.InferenceThreads, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			info, err := rt.Inspect(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			goVersion := runtime.Version()
			if info, ok := debug.ReadBuildInfo(); ok && Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
				Version = info.Main.Version
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upscaler version: %s\nGo version: %s\n", Version, goVersion)
		},
	}
}

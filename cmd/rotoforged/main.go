package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rotoforge/internal/config"
	"rotoforge/internal/engine"
	"rotoforge/internal/generate"
	"rotoforge/internal/host"
	"rotoforge/internal/httpapi"
	"rotoforge/internal/overlay"
	"rotoforge/internal/registry"
	"rotoforge/internal/service"
	"rotoforge/internal/store"
	"rotoforge/internal/track"
	"rotoforge/pkg/types"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := "127.0.0.1:7860"
	if v := os.Getenv("ROTOFORGE_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. 127.0.0.1:7860")
	configPath := flag.String("config", os.Getenv("ROTOFORGE_CONFIG"), "Optional config file (.yaml, .json or .toml)")
	workDir := flag.String("work-dir", "", "Data directory for mask sequences and layer settings")
	weightsDir := flag.String("weights-dir", "", "Directory holding per-tier encoder/decoder ONNX pairs")
	ortLib := flag.String("onnxruntime-lib", os.Getenv("ROTOFORGE_ORT_LIB"), "Path to the onnxruntime shared library")
	useCUDA := flag.Bool("cuda", false, "Run inference on the CUDA execution provider")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var cfg config.Config
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		cfg = c
	}
	// Flags override file values.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *workDir != "" {
		cfg.WorkDir = *workDir
	}
	if *weightsDir != "" {
		cfg.WeightsDir = *weightsDir
	}
	if *ortLib != "" {
		cfg.OnnxRuntimeLib = *ortLib
	}
	if *useCUDA {
		cfg.UseCUDA = true
	}
	if cfg.WorkDir == "" {
		home, _ := os.UserHomeDir()
		cfg.WorkDir = filepath.Join(home, ".rotoforge", "masksequences")
	}
	if cfg.WeightsDir == "" {
		home, _ := os.UserHomeDir()
		cfg.WeightsDir = filepath.Join(home, ".rotoforge", "weights")
	}
	if cfg.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			logger = logger.Level(lvl)
		}
	}

	if err := store.MigrateLayout(cfg.WorkDir, logger); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.WorkDir).Msg("migrate data directory")
	}
	settings, err := store.OpenSettings(filepath.Join(cfg.WorkDir, "settings.db"), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open layer settings")
	}
	defer settings.Close()
	st := store.New(cfg.WorkDir, settings, logger)

	reg, err := registry.ScanDir(cfg.WeightsDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.WeightsDir).Msg("scan weights")
	}
	ortCfg := engine.ONNXConfig{
		LibPath:    cfg.OnnxRuntimeLib,
		UseCUDA:    cfg.UseCUDA,
		NumThreads: cfg.NumThreads,
	}
	eng := engine.NewGateway(reg, func(w types.ModelWeights) (engine.Predictor, error) {
		return engine.NewONNXPredictor(w, ortCfg)
	}, logger)

	doc := host.NewDocument()
	preview := overlay.New()
	broker := httpapi.NewBroker()
	events := httpapi.Publishers{broker, httpapi.MetricsPublisher{}}
	gen := &generate.Generator{Predict: eng.Predict, Log: logger}
	tracker := track.New(doc, st, gen, preview, events, logger, cfg.TickInterval())
	svc := service.New(doc, st, eng, tracker, preview, logger)

	// Surface weight problems for the default tier before the first request.
	warmTier := types.Tier(cfg.DefaultTier)
	if !types.ValidTier(warmTier) {
		warmTier = types.TierLight
	}
	if err := eng.Warm(warmTier); err != nil {
		logger.Warn().Err(err).Str("tier", string(warmTier)).Msg("default tier not loadable")
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	httpapi.SetLogger(logger)
	httpapi.SetBaseContext(baseCtx)
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{"GET", "POST", "OPTIONS"},
			[]string{"Accept", "Content-Type", "X-Log-Level"})
	}
	httpapi.SetGenerateTimeoutSeconds(cfg.GenerateTimeoutSec)

	mux := httpapi.NewMux(svc, broker)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("work_dir", cfg.WorkDir).Str("weights_dir", cfg.WeightsDir).Msg("rotoforged listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	baseCancel()
	if _, err := svc.TrackCancel(); err != nil && !track.IsNoSession(err) {
		logger.Warn().Err(err).Msg("cancel tracking session")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	if err := eng.Free(); err != nil {
		logger.Warn().Err(err).Msg("free predictor")
	}
}

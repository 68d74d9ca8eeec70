package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/clothing-classifier/internal/config"
	"github.com/Brownie44l1/clothing-classifier/internal/handlers"
	"github.com/Brownie44l1/clothing-classifier/internal/inference"
	"github.com/Brownie44l1/clothing-classifier/internal/model"
)

// Version is the application version.
const Version = "0.1.0"

var cfg = config.FromEnv()

var rootCmd = &cobra.Command{
	Use:     "clothing-classifier",
	Short:   "Classify uploaded clothing photos",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run(cmd.Context(), cfg)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfg.Port, "port", cfg.Port, "HTTP port (env PORT)")
	f.StringVar(&cfg.Backend, "backend", cfg.Backend, "Classifier backend: onnx or dense (env CLASSIFIER_BACKEND)")
	f.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "ONNX model file (env MODEL_PATH)")
	f.StringVar(&cfg.MetadataPath, "metadata", cfg.MetadataPath, "ONNX model metadata JSON (env MODEL_METADATA)")
	f.StringVar(&cfg.WeightsPath, "weights", cfg.WeightsPath, "Dense network weights JSON (env MODEL_WEIGHTS)")
	f.StringVar(&cfg.OnnxLibrary, "onnx-lib", cfg.OnnxLibrary, "Path to the ONNX Runtime shared library (env ONNXRUNTIME_LIB)")
	f.StringVar(&cfg.ResultPath, "result", cfg.ResultPath, "Where the result chart is written (env RESULT_PATH)")
	f.Int64Var(&cfg.MaxUploadBytes, "max-upload", cfg.MaxUploadBytes, "Maximum upload size in bytes (env MAX_UPLOAD_BYTES)")
	f.IntVar(&cfg.QueueSize, "queue", cfg.QueueSize, "Pending classifications before callers wait (env INFERENCE_QUEUE)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (env LOG_LEVEL)")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

func run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	config.InitLogger(cfg)

	root, err := config.ProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg.Resolve(root)

	log.Info().
		Str("backend", cfg.Backend).
		Str("model", cfg.ModelPath).
		Str("weights", cfg.WeightsPath).
		Msg("Loading classifier")

	classifier, err := model.Load(cfg.ModelOptions())
	if err != nil {
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}
	defer classifier.Close()

	worker := inference.NewWorker(classifier, cfg.QueueSize)
	defer worker.Stop()

	pipeline := inference.NewPipeline(worker, cfg.ResultPath)
	handler := handlers.NewHandler(pipeline, classifier.Labels(), cfg.ResultPath, cfg.MaxUploadBytes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.Router(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("port", cfg.Port).
		Str("version", Version).
		Strs("classes", classifier.Labels()).
		Str("result", cfg.ResultPath).
		Msg("Server starting")
	log.Info().Msgf("Endpoints: GET|POST / (upload form), POST /predict (multipart field 'file'), GET /static/%s",
		filepath.Base(cfg.ResultPath))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Exiting")
		stop()
		os.Exit(1)
	}
}

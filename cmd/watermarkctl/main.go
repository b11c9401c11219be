// Command watermarkctl drives embed, remove, and forensic-extract batches
// against a directory of images and a hash-chained ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/paroma/watermarkchain"
	"github.com/paroma/watermarkchain/internal/batch"
	"github.com/paroma/watermarkchain/internal/codec"
	"github.com/paroma/watermarkchain/internal/config"
	"github.com/paroma/watermarkchain/internal/ledger"
	"github.com/paroma/watermarkchain/internal/ledgerindex"
	"github.com/paroma/watermarkchain/internal/model"
)

// Exit codes for the watermarkctl process.
const (
	exitSuccess       = 0
	exitConfigError   = 2
	exitLedgerCorrupt = 3
	exitIOError       = 4
	exitAllFailed     = 5
)

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, os.Args[1:]))
}

func run(_ context.Context, cfg *config.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: watermarkctl <embed|remove|extract> [flags]")
		return exitConfigError
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	dataPath := fs.String("data-path", cfg.DataPath, "directory of input images")
	savePath := fs.String("save-path", cfg.SavePath, "directory for outputs")
	blockchainPath := fs.String("blockchain-path", cfg.BlockchainPath, "ledger JSON file")
	dataType := fs.String("data-type", cfg.DataType, "file extension filter, e.g. .png")
	message := fs.String("message", "", "watermark message (embed only)")
	secretKey := fs.String("secret-key", "", "hex-encoded 32-byte secret key")
	stride := fs.Int("stride", cfg.Stride, "candidate spacing (embed only)")
	tHi := fs.Int("t-hi", cfg.THi, "error threshold (embed only)")
	bitDepth := fs.Int("bit-depth", cfg.BitDepth, "8 or 16, 0 to infer (embed only)")

	if err := fs.Parse(args[1:]); err != nil {
		return exitConfigError
	}

	resolvedBitDepth := *bitDepth
	if resolvedBitDepth == 0 {
		resolvedBitDepth = config.DefaultBitDepth(*dataType)
	}

	resolved := &config.Config{
		DataPath:       *dataPath,
		SavePath:       *savePath,
		BlockchainPath: *blockchainPath,
		DataType:       *dataType,
		Stride:         *stride,
		THi:            *tHi,
		BitDepth:       resolvedBitDepth,
	}
	if err := resolved.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitConfigError
	}

	requestSavePath := *savePath
	if args[0] == "extract" {
		requestSavePath = ""
	}
	if err := config.ValidateRequest(*dataPath, requestSavePath, *blockchainPath); err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitConfigError
	}

	l, err := ledger.Open(*blockchainPath)
	if err != nil {
		var corrupted *ledger.ChainCorruptedError
		if errors.As(err, &corrupted) {
			slog.Error("ledger chain corrupted", "block_number", corrupted.BlockNumber, "reason", corrupted.Reason)
			return exitLedgerCorrupt
		}
		slog.Error("open ledger", "error", err)
		return exitIOError
	}

	idx, err := ledgerindex.Open(filepath.Dir(*blockchainPath), watermarkchain.MigrationFS)
	if err != nil {
		slog.Warn("open ledger index, continuing without it", "error", err)
		idx = nil
	} else {
		defer idx.Close()
	}

	var resp *model.BatchResponse
	switch args[0] {
	case "embed":
		resp, err = batch.RunEmbed(model.EmbedRequest{
			DataPath:       *dataPath,
			SavePath:       *savePath,
			Message:        *message,
			SecretKey:      *secretKey,
			BlockchainPath: *blockchainPath,
			Stride:         *stride,
			THi:            *tHi,
			BitDepth:       resolvedBitDepth,
			DataType:       *dataType,
		}, l, cfg.WorkerCount)
	case "remove":
		resp, err = batch.RunRemove(model.RemoveRequest{
			DataPath:       *dataPath,
			SavePath:       *savePath,
			BlockchainPath: *blockchainPath,
			DataType:       *dataType,
			SecretKey:      *secretKey,
		}, l, idx, cfg.WorkerCount)
	case "extract":
		resp, err = batch.RunForensic(model.ExtractRequest{
			DataPath:       *dataPath,
			BlockchainPath: *blockchainPath,
			DataType:       *dataType,
			SecretKey:      *secretKey,
		}, l, idx, cfg.WorkerCount)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return exitConfigError
	}

	if err != nil {
		switch {
		case errors.Is(err, batch.ErrBatchEmpty):
			slog.Error("all images failed", "command", args[0])
			return exitAllFailed
		case errors.Is(err, codec.ErrBadKey):
			slog.Error("invalid secret key", "error", err)
			return exitConfigError
		default:
			slog.Error("batch failed", "command", args[0], "error", err)
			return exitIOError
		}
	}

	slog.Info("batch complete",
		"command", args[0],
		"total", resp.TotalImages,
		"processed", resp.ProcessedImages,
		"failed", len(resp.FailedImages),
		"block_number", resp.BlockNumber,
	)
	return exitSuccess
}

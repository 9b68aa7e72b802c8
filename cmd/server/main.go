package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/imrenagi/go-signed-upload/config"
	"github.com/imrenagi/go-signed-upload/server"
	"github.com/imrenagi/go-signed-upload/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type flags struct {
	configPath string
	addr       string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	f := flags{}
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Multipart upload server backed by an object store",
		Long:  "Accepts multipart uploads, stores the file part in an object store and hands out signed URLs for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", os.Getenv("UPLOADER_CONFIG"),
		"Path to a YAML config file")
	cmd.Flags().StringVar(&f.addr, "addr", "", "Listen address, overrides the config")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level, overrides the config")
	return cmd
}

func run(ctx context.Context, f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}

	_ = server.InitializeLogger(cfg.Logging.Level, cfg.Logging.Format)

	if err := os.MkdirAll(cfg.Upload.ScratchDir, 0o700); err != nil {
		return fmt.Errorf("failed to prepare scratch dir %s: %w", cfg.Upload.ScratchDir, err)
	}

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	log.Info().
		Str("store", cfg.Store.Backend).
		Str("scratch_dir", cfg.Upload.ScratchDir).
		Str("url_mode", cfg.Upload.URLMode).
		Msg("configuration loaded")

	srv := server.New(server.Opts{
		Config:  cfg,
		Store:   store,
		Scratch: osfs.New(cfg.Upload.ScratchDir, osfs.WithBoundOS()),
	})
	return srv.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run the server")
	}
}

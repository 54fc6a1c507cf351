package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mcdonaldj/sitebak/internal/adapters/dirstore"
	"github.com/mcdonaldj/sitebak/internal/adapters/execrestic"
	"github.com/mcdonaldj/sitebak/internal/adapters/execzip"
	"github.com/mcdonaldj/sitebak/internal/adapters/jwttoken"
	"github.com/mcdonaldj/sitebak/internal/adapters/osfs"
	"github.com/mcdonaldj/sitebak/internal/adapters/resticstore"
	"github.com/mcdonaldj/sitebak/internal/adapters/tuisvc"
	"github.com/mcdonaldj/sitebak/internal/adapters/zipcompressor"
	"github.com/mcdonaldj/sitebak/internal/archive"
	"github.com/mcdonaldj/sitebak/internal/archivelog"
	"github.com/mcdonaldj/sitebak/internal/backup"
	"github.com/mcdonaldj/sitebak/internal/cli"
	"github.com/mcdonaldj/sitebak/internal/config"
	"github.com/mcdonaldj/sitebak/internal/download"
	"github.com/mcdonaldj/sitebak/internal/jobs"
	"github.com/mcdonaldj/sitebak/internal/logging"
	"github.com/mcdonaldj/sitebak/internal/notice"
	"github.com/mcdonaldj/sitebak/internal/ports"
	"github.com/mcdonaldj/sitebak/internal/recovery"
	"github.com/mcdonaldj/sitebak/internal/registry"
	"github.com/mcdonaldj/sitebak/internal/schedule"
	"github.com/mcdonaldj/sitebak/internal/statestore"
	"github.com/mcdonaldj/sitebak/internal/storage"
	"github.com/mcdonaldj/sitebak/internal/tui"
)

// connect builds the engine for one invocation. Every component shares the
// same registry so a rescan in one is seen by all.
func connect(cfg *config.Config) (*cli.Services, error) {
	log := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	fs := osfs.New()
	native := zipcompressor.New()
	shell := execzip.New()

	var compressor ports.Compressor = native
	if cfg.Compressor == config.CompressorShell {
		if shell.Available() {
			compressor = shell
		} else {
			log.Warn().Msg("zip/unzip not found, using the native compressor")
		}
	}

	logs := archivelog.NewStore(fs, osfs.NewLocker(), native, log)
	providers := storage.NewRegistry(cfg.Storage,
		dirstore.New(cfg.Remote.Directory.Path),
		resticstore.New(execrestic.New(), cfg.Remote.Restic.Repo, cfg.Remote.Restic.Password),
	)
	archives := registry.New(fs, providers, cfg.BackupDir, cfg.BackupIdentifier, log)

	var tokens ports.TokenAuthority
	if cfg.TokenSecret != "" {
		authority, err := jwttoken.New(cfg.TokenSecret)
		if err != nil {
			return nil, err
		}
		tokens = authority
	}

	a := archive.New(archive.Deps{
		FS:       fs,
		Logs:     logs,
		Registry: archives,
		Compressors: archive.Compressors{
			native.Name(): native,
			shell.Name():  shell,
		},
		Tokens: tokens,
		Auth:   ports.AllowAll{},
		Log:    log,
	}, archive.SettingsFrom(cfg))

	store := statestore.New(cfg.StatePath)
	notices := notice.New(store, log)
	queue := jobs.New(store, jobs.Options{
		MaxAttempts: cfg.Jobs.MaxAttempts,
		StaleAfter:  cfg.Jobs.StaleAfter,
	}, log)

	local := storage.NewLocal(fs, providers, archives, queue, log)
	backups := backup.NewService(backup.Deps{
		FS:         fs,
		Compressor: compressor,
		Logs:       logs,
		Archives:   archives,
		Archive:    a,
		Providers:  providers,
		Local:      local,
		Queue:      queue,
		Log:        log,
	}, cfg)
	restores := recovery.NewService(fs, a, archives, providers, cfg.SiteDir, log)

	providers.Register(queue, log)
	local.Register(queue)
	restores.Register(queue)

	ticker, err := schedule.New(cfg.Schedule, backups, queue, notices, store, log)
	if err != nil {
		return nil, err
	}

	svc := tuisvc.New(archives, a, backups)
	return &cli.Services{
		Backup:   backups,
		Recovery: restores,
		Archives: svc,
		Jobs:     queue,
		Notices:  notices,
		Cron:     ticker,
		Serve: func(ctx context.Context, addr string) error {
			if tokens == nil {
				return errors.New("token_secret is not configured")
			}
			srv := download.NewServer(tokens, cfg.BackupDir, cfg.BackupIdentifier, log,
				download.WithRateLimit(cfg.Serve.RateLimit, time.Minute))
			return serve(ctx, addr, srv.Router())
		},
		UI: func(ctx context.Context) error {
			return tui.Run(ctx, svc)
		},
	}, nil
}

// serve runs h on addr until ctx is done.
func serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

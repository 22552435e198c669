package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"promptbridge/internal/bridge"
	"promptbridge/internal/command"
	"promptbridge/internal/config"
	"promptbridge/internal/db"
	"promptbridge/internal/global"
	"promptbridge/internal/historydb"
	"promptbridge/internal/lifecycle"
	"promptbridge/internal/logging"
	"promptbridge/internal/policy"
	"promptbridge/internal/remote"
)

func runSession(ctx context.Context, cfg config.Config, req command.RunRequest) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "promptbridge"})

	gcfg, err := loadGlobalConfig()
	if err != nil {
		logger.Warn("global config unavailable, using built-in defaults", "err", err)
	}

	mode, err := policy.ParseMode(firstNonEmpty(req.Mode, cfg.RiskMode, gcfg.Defaults.RiskMode, string(policy.ModeSafe)))
	if err != nil {
		return err
	}
	responderURL := firstNonEmpty(req.ResponderURL, cfg.ResponderURL, gcfg.Defaults.ResponderURL)
	logDir := firstNonEmpty(cfg.LogDir, gcfg.LogDir, config.DefaultLogDir())
	dbPath := firstNonEmpty(cfg.DBPath, gcfg.DBPath, config.DefaultDBPath())
	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = cfg.TimeoutMs
	}

	runID := uuid.NewString()
	logger = logging.WithRun(logger, runID)
	logPath := filepath.Join(logDir, runID+".log")

	gdb, err := db.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open history db: %w", err)
	}
	store, err := historydb.NewStore(gdb)
	if err != nil {
		_ = db.Close(gdb)
		return err
	}

	var responder bridge.Responder
	mgr := lifecycle.NewManager()
	mgr.AddCleanup("close history db", func(context.Context) error {
		return db.Close(gdb)
	})

	if responderURL != "" {
		sock, err := remote.RealDialer{}.Dial(ctx, responderURL)
		if err != nil {
			_ = db.Close(gdb)
			return fmt.Errorf("connect responder: %w", err)
		}
		client := remote.NewClient(sock, logger)
		responder = client.Respond
		mgr.AddCleanup("close responder", func(context.Context) error {
			return client.Close()
		})
	}

	startedAt := time.Now().UTC()
	var result *bridge.Result
	mgr.AddTask("session", func(taskCtx context.Context) error {
		res, err := bridge.Run(taskCtx, bridge.Options{
			RunID:   runID,
			Command: req.Command,
			Dir:     req.Dir,
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
			Mode:    mode,
			LogPath: logPath,
			OnOutput: func(chunk string) {
				_, _ = os.Stdout.WriteString(chunk)
			},
			Responder:         responder,
			Logger:            logger,
			TranscriptCap:     cfg.TranscriptCap,
			DetectionTailCap:  cfg.DetectionTailCap,
			HeartbeatInterval: time.Duration(cfg.HeartbeatMs) * time.Millisecond,
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	runErr := mgr.StartAndWait(ctx, os.Interrupt, syscall.SIGTERM)
	if result != nil {
		if err := recordResult(store, result, req, string(mode), startedAt); err != nil {
			logger.Warn("recording session failed", "err", err)
		}
		fmt.Fprintf(os.Stderr, "\nrun %s: %s (code %d), %d prompt(s), log %s\n",
			result.RunID, result.Exit.Reason, result.Exit.Code, len(result.Events), result.LogPath)
	}
	return runErr
}

func recordResult(store *historydb.Store, result *bridge.Result, req command.RunRequest, mode string, startedAt time.Time) error {
	cwd := req.Dir
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}
	return store.RecordSession(result, req.Command, cwd, mode, startedAt, time.Now().UTC())
}

func loadGlobalConfig() (global.GlobalConfig, error) {
	dir, err := global.DefaultConfigDir()
	if err != nil {
		return global.GlobalConfig{}, err
	}
	return global.NewConfigStore(dir).LoadOrInit()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/termhub/connvault/internal/config"
	"github.com/termhub/connvault/internal/ipc"
	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/internal/session"
	"github.com/termhub/connvault/internal/store"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	// A missing .env is fine; explicit env vars and flags still apply.
	_ = godotenv.Load()

	cfg, err := config.Get()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error getting configs: %v\n", err)
		os.Exit(1)
	}

	// Decide owner vs. replica by who holds the socket. The first window
	// becomes the session owner; later windows attach as replicas.
	log := logger.New("owner")
	server, sess, err := startOwner(cfg, log)
	switch {
	case err == nil:
		runOwner(server, sess, log)
	case errors.Is(err, ipc.ErrOwnerRunning):
		runReplica(cfg, logger.NewWindowLogger("window"))
	default:
		log.Fatal().Err(err).Msg("start session owner")
	}
}

// startOwner wires the full session stack and binds the IPC socket. Returns
// ipc.ErrOwnerRunning when another process already owns the session.
func startOwner(cfg *config.Config, log *logger.Logger) (*ipc.Server, *session.Session, error) {
	ctx := context.Background()

	db, err := store.NewConnectSQLite(ctx, cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open local vault store: %w", err)
	}

	sess := session.New(cfg, store.NewStorages(db, log), log)
	if err = sess.Start(ctx); err != nil {
		return nil, nil, err
	}

	server := ipc.NewServer(cfg.IPC.SocketPath, sess, log)
	if err = server.Listen(); err != nil {
		sess.Close()
		return nil, nil, err
	}
	return server, sess, nil
}

func runOwner(server *ipc.Server, sess *session.Session, log *logger.Logger) {
	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Err(err).Msg("ipc server stopped")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Err(err).Msg("ipc shutdown")
	}
	sess.Close()
}

// runReplica attaches to the running owner, resumes the session without
// re-prompting when a password is held, and mirrors state changes until
// interrupted.
func runReplica(cfg *config.Config, log *logger.Logger) {
	ctx := context.Background()
	client := ipc.NewClient(cfg.IPC.SocketPath)

	if err := client.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("attach to session owner")
	}

	state, err := client.State(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("read session state")
	}
	log.Info().
		Str("security_state", string(state.SecurityState)).
		Str("sync_state", string(state.SyncState)).
		Int64("local_version", state.LocalVersion).
		Msg("attached to session owner")

	if _, ok, err := client.SessionPassword(ctx); err == nil && ok {
		log.Info().Msg("session password available, no re-prompt needed")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Mirror owner state until interrupted.
	var since int64
	for {
		select {
		case <-stop:
			return
		default:
		}

		seq, state, ok, err := client.WaitEvent(ctx, since)
		if err != nil {
			log.Err(err).Msg("session owner gone")
			return
		}
		if !ok {
			continue
		}
		since = seq
		log.Debug().
			Int64("seq", seq).
			Str("security_state", string(state.SecurityState)).
			Str("sync_state", string(state.SyncState)).
			Msg("session state changed")
	}
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}

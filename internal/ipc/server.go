// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/internal/provider"
	"github.com/termhub/connvault/internal/syncer"
	"github.com/termhub/connvault/internal/vault"
	"github.com/termhub/connvault/models"
)

// longPollTimeout bounds one GET /v1/events wait. Clients reconnect after a
// 204.
const longPollTimeout = 25 * time.Second

// Server is the session owner's IPC endpoint on a unix domain socket.
type Server struct {
	session SessionAPI
	logger  *logger.Logger

	socketPath string
	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds the IPC server for the given socket path.
func NewServer(socketPath string, api SessionAPI, log *logger.Logger) *Server {
	s := &Server{
		session:    api,
		logger:     log,
		socketPath: socketPath,
	}
	s.httpServer = &http.Server{Handler: s.routes()}
	return s
}

// Listen binds the unix socket. A leftover socket file from a crashed owner
// is detected by dialing it: if nobody answers, the file is removed and the
// bind retried. ErrOwnerRunning means a live owner already holds the socket.
func (s *Server) Listen() error {
	ln, err := net.Listen("unix", s.socketPath)
	if err == nil {
		s.listener = ln
		return nil
	}

	conn, dialErr := net.DialTimeout("unix", s.socketPath, time.Second)
	if dialErr == nil {
		conn.Close()
		return ErrOwnerRunning
	}

	// Stale socket: the previous owner died without cleaning up.
	if rmErr := os.Remove(s.socketPath); rmErr != nil {
		return fmt.Errorf("remove stale socket: %w", rmErr)
	}
	ln, err = net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("bind ipc socket: %w", err)
	}
	s.listener = ln
	return nil
}

// Run serves until Shutdown. Call Listen first.
func (s *Server) Run() error {
	s.logger.Info().Str("socket", s.socketPath).Msg("ipc server listening")
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve ipc: %w", err)
	}
	return nil
}

// Shutdown stops the server and removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	os.Remove(s.socketPath)
	return err
}

func (s *Server) routes() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.withLogging)

	router.Get("/v1/state", s.getState)
	router.Get("/v1/events", s.getEvents)
	router.Get("/v1/history", s.getHistory)
	router.Get("/v1/notifications", s.getNotifications)

	router.Post("/v1/unlock", s.postUnlock)
	router.Post("/v1/lock", s.postLock)
	router.Get("/v1/session/password", s.getSessionPassword)
	router.Delete("/v1/session/password", s.deleteSessionPassword)

	router.Post("/v1/sync", s.postSync)
	router.Post("/v1/sync/ack", s.postSyncAck)

	router.Post("/v1/providers/{id}/connect", s.postProviderConnect)
	router.Post("/v1/providers/{id}/disconnect", s.postProviderDisconnect)
	router.Post("/v1/providers/{id}/download", s.postProviderDownload)

	return router
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.State())
}

// getEvents long-polls: it answers as soon as the session sequence number
// passes ?since=, or with 204 after the poll timeout.
func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	ctx, cancel := context.WithTimeout(r.Context(), longPollTimeout)
	defer cancel()

	seq, state := s.session.Wait(ctx, since)
	if seq <= since {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Seq: seq, State: state})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.History())
}

func (s *Server) getNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Notifications())
}

func (s *Server) postUnlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.session.Unlock(r.Context(), req.Password); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postLock(w http.ResponseWriter, r *http.Request) {
	s.session.Lock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSessionPassword(w http.ResponseWriter, r *http.Request) {
	password, ok := s.session.SessionPassword()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no session password held"))
		return
	}
	writeJSON(w, http.StatusOK, passwordResponse{Password: password})
}

func (s *Server) deleteSessionPassword(w http.ResponseWriter, r *http.Request) {
	s.session.ClearSessionPassword()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	results, err := s.session.SyncNow(r.Context(), req.options())
	if err != nil && results == nil {
		writeError(w, statusFor(err), err)
		return
	}
	// A failed sync still carries per-provider results; the error detail is
	// inside them.
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) postSyncAck(w http.ResponseWriter, r *http.Request) {
	s.session.AcknowledgeSync()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postProviderConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	account, err := s.session.ConnectProvider(r.Context(), providerID(r), req.Credentials)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) postProviderDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DisconnectProvider(r.Context(), providerID(r)); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postProviderDownload(w http.ResponseWriter, r *http.Request) {
	payload, err := s.session.DownloadFromProvider(r.Context(), providerID(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if payload == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func providerID(r *http.Request) models.ProviderID {
	return models.ProviderID(chi.URLParam(r, "id"))
}

// statusFor maps the sync error taxonomy onto HTTP status codes for the
// wire. The client maps them back to the sentinel errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrVaultLocked):
		return http.StatusLocked
	case errors.Is(err, vault.ErrInvalidPassword):
		return http.StatusUnauthorized
	case errors.Is(err, syncer.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, syncer.ErrNoProviderConnected):
		return http.StatusPreconditionFailed
	case errors.Is(err, provider.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrUnknownProvider), errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrNotConnected):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperkey/unlock-cli/internal/model"
	"github.com/paperkey/unlock-cli/internal/store"
)

var servePort int

// maxUploadBytes bounds one uploaded document (32 MiB).
const maxUploadBytes = 32 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve unlock sessions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Get("/v1/metrics", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, env.Metrics.Snapshot())
		})
		r.Post("/v1/unlock", handleUnlock(env))
		r.Get("/v1/sessions", handleListSessions(env.Store))
		r.Get("/v1/sessions/{id}", handleGetSession(env.Store))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// handleUnlock runs a session synchronously: an unlock can take minutes, and
// the caller's contract is the terminal result, extracted text included.
func handleUnlock(env *unlockEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			httpError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			httpError(w, http.StatusBadRequest, "read upload")
			return
		}

		req := model.UnlockRequest{
			FileBytes: data,
			Filename:  header.Filename,
			MIMEType:  header.Header.Get("Content-Type"),
			OwnerID:   r.FormValue("owner_id"),
			Password:  r.FormValue("password"),
			Personal: model.PersonalData{
				Name:          r.FormValue("name"),
				DateOfBirth:   r.FormValue("date_of_birth"),
				Phone:         r.FormValue("phone"),
				TaxID:         r.FormValue("tax_id"),
				AccountNumber: r.FormValue("account_number"),
				PolicyNumbers: r.Form["policy_number"],
				IFSCCode:      r.FormValue("ifsc_code"),
			},
		}

		res, err := env.Service.Run(r.Context(), req)
		if err != nil {
			// Only cancellation reaches here; the client went away.
			zap.L().Warn("unlock request cancelled", zap.String("filename", req.Filename))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListSessions(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.SessionFilter{
			Status:  model.SessionStatus(r.URL.Query().Get("status")),
			OwnerID: r.URL.Query().Get("owner"),
			Limit:   50,
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				httpError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			filter.Limit = n
		}

		sessions, err := st.ListSessions(r.Context(), filter)
		if err != nil {
			zap.L().Error("list sessions", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "list sessions")
			return
		}
		if sessions == nil {
			sessions = []model.SessionRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	}
}

func handleGetSession(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := st.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

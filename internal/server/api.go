// Package server exposes stored operations over HTTP for the reporting
// dashboard: list, edit by id and XLSX export.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
	"github.com/LazarevaL/agro-llm-hack/internal/export"
	"github.com/LazarevaL/agro-llm-hack/internal/repository"
)

const maxPatchBodySize = 64 << 10

// Operations is the store surface the API needs.
type Operations interface {
	List(ctx context.Context, f repository.Filter) ([]entity.StoredOperation, error)
	UpdateByID(ctx context.Context, id int64, changed map[string]any) (entity.StoredOperation, error)
}

// Exporter renders operations in a window as an XLSX workbook.
type Exporter interface {
	ExportOperationsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error)
}

type Deps struct {
	Operations Operations
	Exporter   Exporter
	Ping       func(ctx context.Context) error
	Logger     *slog.Logger
}

func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	r.Get("/healthz", handleHealth(deps))
	r.Route("/api", func(r chi.Router) {
		r.Get("/operations", handleList(deps))
		r.Get("/operations.xlsx", handleExport(deps))
		r.Patch("/operations/{id}", handleUpdate(deps))
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http.request",
				"req_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ping != nil {
			if err := deps.Ping(r.Context()); err != nil {
				httpError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := parseWindow(r.URL.Query())
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		ops, err := deps.Operations.List(r.Context(), repository.Filter{From: from, To: to})
		if err != nil {
			deps.Logger.Error("api.list.failed", "error", err)
			httpError(w, http.StatusInternalServerError, "list operations failed")
			return
		}
		out := make([]map[string]any, 0, len(ops))
		for _, op := range ops {
			out = append(out, op.Labels())
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleUpdate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpError(w, http.StatusBadRequest, "id must be a positive integer")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxPatchBodySize)
		defer r.Body.Close()

		var changed map[string]any
		if err := json.NewDecoder(r.Body).Decode(&changed); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		op, err := deps.Operations.UpdateByID(r.Context(), id, changed)
		switch {
		case errors.Is(err, common.ErrNotFound):
			httpError(w, http.StatusNotFound, "operation %d not found", id)
			return
		case errors.Is(err, common.ErrInvalidInput):
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		case err != nil:
			deps.Logger.Error("api.update.failed", "id", id, "error", err)
			httpError(w, http.StatusInternalServerError, "update failed")
			return
		}
		writeJSON(w, http.StatusOK, op.Labels())
	}
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := parseWindow(r.URL.Query())
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		b, err := deps.Exporter.ExportOperationsXLSX(r.Context(), from, to)
		if err != nil {
			deps.Logger.Error("api.export.failed", "error", err)
			httpError(w, http.StatusInternalServerError, "export failed")
			return
		}
		name := export.FileName(from, to)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", "attachment; filename=\"report.xlsx\"; filename*=UTF-8''"+url.PathEscape(name))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}
}

// parseWindow reads optional from/to query parameters as YYYY-MM-DD.
func parseWindow(q url.Values) (from, to *time.Time, err error) {
	parse := func(key string) (*time.Time, error) {
		s := strings.TrimSpace(q.Get(key))
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, fmt.Errorf("%s must be YYYY-MM-DD", key)
		}
		return &t, nil
	}
	if from, err = parse("from"); err != nil {
		return nil, nil, err
	}
	if to, err = parse("to"); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, errors.New("to must not be before from")
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"code":    code,
		},
	})
}

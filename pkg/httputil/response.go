package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

// OK wraps data as {"data": ...}.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, envelope{"data": data})
}

// Error writes {"error": {"message": ..., "request_id": ...}}.
func Error(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	body := envelope{"message": msg}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		body["request_id"] = reqID
	}
	JSON(w, status, envelope{"error": body})
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-resultlink/core"
)

type requestIDKey struct{}

func withRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

func defaultRequestID() string {
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeError logs the full envelope and writes only its public form.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := core.MapError(err)
	public := core.PublicError(mapped)
	if public == nil {
		public = core.NewError("", goerrors.CategoryInternal, core.ErrorInternal)
	}
	requestID := requestIDFrom(r.Context())
	public.RequestID = requestID

	fields := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestID,
		"status", public.Code,
		"text_code", public.TextCode,
	}
	if mapped != nil {
		fields = append(fields, "error", mapped.Error())
	}
	if public.Code >= http.StatusInternalServerError {
		h.logger.Error("http request failed", fields...)
	} else {
		h.logger.Warn("http request rejected", fields...)
	}

	status := public.Code
	if status == 0 {
		status = core.HTTPStatus(public.Category)
	}
	writeJSON(w, status, public.ToErrorResponse(false, nil))
}

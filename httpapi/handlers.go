package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-resultlink/backend"
	resultcommand "github.com/goliatone/go-resultlink/command"
	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/events"
	"github.com/goliatone/go-resultlink/navigation"
	resultquery "github.com/goliatone/go-resultlink/query"
	"github.com/goliatone/go-resultlink/resolver"
)

type sideResponse struct {
	Param    string          `json:"param"`
	State    string          `json:"state"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

type resultResponse struct {
	Kind         string          `json:"kind"`
	Presentation string          `json:"presentation"`
	State        string          `json:"state"`
	Sides        []sideResponse  `json:"sides"`
	Error        *goerrors.Error `json:"error,omitempty"`
}

type navigateSingleRequest struct {
	Identifier string `json:"identifier"`
}

type navigateComparisonRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

type pageViewRequest struct {
	Path      string         `json:"path"`
	Referrer  string         `json:"referrer"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata"`
}

func (h *Handler) handleSingleResult(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.facade.Queries().ResolveResult.Query(r.Context(), resultquery.ResolveResultMessage{
		Query: r.URL.Query(),
	})
	h.writeResult(w, r, snapshot, err)
}

func (h *Handler) handleComparisonResult(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.facade.Queries().ResolveComparison.Query(r.Context(), resultquery.ResolveComparisonMessage{
		Query: r.URL.Query(),
	})
	h.writeResult(w, r, snapshot, err)
}

// writeResult renders a settled page and records the page view. The view is
// recorded for every outcome so broken links show up in reporting.
func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, snapshot resolver.Snapshot, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.emitPageView(r, events.PageView{
		Path:      r.URL.Path,
		Referrer:  r.Referer(),
		SessionID: r.Header.Get(SessionIDHeader),
		Metadata: map[string]any{
			"kind":         string(snapshot.Kind),
			"presentation": string(snapshot.Presentation),
		},
	})

	response := resultResponse{
		Kind:         string(snapshot.Kind),
		Presentation: string(snapshot.Presentation),
		State:        string(snapshot.State),
		Sides:        make([]sideResponse, 0, len(snapshot.Sides)),
	}
	for _, side := range snapshot.Sides {
		entry := sideResponse{Param: side.Param, State: string(side.State)}
		if side.Resource != nil {
			entry.Resource = side.Resource.Payload
		}
		response.Sides = append(response.Sides, entry)
	}
	if envelope := snapshot.Err(); envelope != nil {
		public := core.PublicError(envelope)
		public.RequestID = requestIDFrom(r.Context())
		response.Error = public
	}
	writeJSON(w, presentationStatus(snapshot.Presentation), response)
}

func presentationStatus(presentation resolver.Presentation) int {
	switch presentation {
	case resolver.PresentationReady:
		return http.StatusOK
	case resolver.PresentationNotFound:
		return http.StatusNotFound
	case resolver.PresentationUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusAccepted
	}
}

func (h *Handler) emitPageView(r *http.Request, view events.PageView) {
	err := h.facade.Commands().EmitPageView.Execute(r.Context(), resultcommand.EmitPageViewMessage{View: view})
	if err != nil {
		h.logger.Warn("page view not recorded",
			"path", view.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err.Error(),
		)
	}
}

func (h *Handler) handleNavigateSingle(w http.ResponseWriter, r *http.Request) {
	var body navigateSingleRequest
	if err := h.decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	err := h.facade.Commands().NavigateSingle.Execute(r.Context(), resultcommand.NavigateSingleMessage{
		Identifier: core.Identifier(strings.TrimSpace(body.Identifier)),
		Navigator:  navigation.RedirectNavigator{Writer: w, Request: r},
	})
	if err != nil {
		h.writeError(w, r, err)
	}
}

func (h *Handler) handleNavigateComparison(w http.ResponseWriter, r *http.Request) {
	var body navigateComparisonRequest
	if err := h.decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	err := h.facade.Commands().NavigateComparison.Execute(r.Context(), resultcommand.NavigateComparisonMessage{
		A:         core.Identifier(strings.TrimSpace(body.A)),
		B:         core.Identifier(strings.TrimSpace(body.B)),
		Navigator: navigation.RedirectNavigator{Writer: w, Request: r},
	})
	if err != nil {
		h.writeError(w, r, err)
	}
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, func(ctx context.Context, req backend.Request) error {
		return h.facade.Commands().ProxyAnalyze.Execute(ctx, resultcommand.ProxyAnalyzeMessage{Request: req})
	})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, func(ctx context.Context, req backend.Request) error {
		return h.facade.Commands().ProxyUpload.Execute(ctx, resultcommand.ProxyUploadMessage{Request: req})
	})
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, func(ctx context.Context, req backend.Request) error {
		return h.facade.Commands().ProxyPayment.Execute(ctx, resultcommand.ProxyPaymentMessage{Request: req})
	})
}

// proxy reads the caller's body and content type and relays the backend JSON
// untouched on success.
func (h *Handler) proxy(w http.ResponseWriter, r *http.Request, execute func(context.Context, backend.Request) error) {
	body, err := h.readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	collector := gocmd.NewResult[backend.Result]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	if err := execute(ctx, backend.Request{Body: body, ContentType: r.Header.Get("Content-Type")}); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, ok := collector.Load()
	if !ok {
		h.writeError(w, r, core.NewError("backend result missing", goerrors.CategoryInternal, core.ErrorInternal))
		return
	}
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	writeRawJSON(w, status, result.Payload)
}

func (h *Handler) handleInsights(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := bearerToken(r)
	if !ok {
		h.writeError(w, r, core.NewError("bearer token is required", goerrors.CategoryAuth, core.ErrorUnauthorized))
		return
	}
	query := r.URL.Query()
	insights, err := h.facade.Queries().CampaignInsights.Query(r.Context(), resultquery.CampaignInsightsMessage{
		AccountID:   query.Get("account_id"),
		DatePreset:  query.Get("date_preset"),
		AccessToken: accessToken,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": insights})
}

func (h *Handler) handlePageView(w http.ResponseWriter, r *http.Request) {
	var body pageViewRequest
	if err := h.decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	sessionID := strings.TrimSpace(body.SessionID)
	if sessionID == "" {
		sessionID = r.Header.Get(SessionIDHeader)
	}
	referrer := strings.TrimSpace(body.Referrer)
	if referrer == "" {
		referrer = r.Referer()
	}

	collector := gocmd.NewResult[events.Event]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	err := h.facade.Commands().EmitPageView.Execute(ctx, resultcommand.EmitPageViewMessage{
		View: events.PageView{
			Path:      body.Path,
			Referrer:  referrer,
			SessionID: sessionID,
			Metadata:  body.Metadata,
		},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	event, _ := collector.Load()
	writeJSON(w, http.StatusAccepted, event)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.health {
		if err := check(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.NewError("request body too large", goerrors.CategoryBadInput, core.ErrorBadInput).
				WithCode(http.StatusRequestEntityTooLarge)
		}
		return nil, core.WrapError(err, goerrors.CategoryBadInput, "request body could not be read", core.ErrorBadInput)
	}
	return body, nil
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	body, err := h.readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return core.WrapError(err, goerrors.CategoryBadInput, "request body must be a JSON object", core.ErrorBadInput)
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

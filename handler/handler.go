// Package handler exposes the dashboard operations behind an API Gateway
// proxy integration.
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"lead-dashboard/internal/domain"
	"lead-dashboard/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type SyncRunner interface {
	Sync(ctx context.Context) (usecase.SyncResult, error)
	LatestRun(ctx context.Context) (domain.SyncRun, error)
}

type Viewer interface {
	Panel(ctx context.Context, period usecase.Period) ([]domain.AnalysisRow, error)
	Dashboard(ctx context.Context, period usecase.Period) (usecase.Dashboard, error)
	SaveSelections(ctx context.Context, sel map[string]bool) error
}

type SettingsStore interface {
	Settings(ctx context.Context) (domain.Settings, error)
	Save(ctx context.Context, in domain.Settings) (domain.Settings, error)
}

type panelResponse struct {
	Period usecase.Period       `json:"period"`
	Rows   []domain.AnalysisRow `json:"rows"`
}

type selectionsRequest struct {
	Selections map[string]bool `json:"selections"`
}

type selectionsResponse struct {
	Saved int `json:"saved"`
}

type settingsResponse struct {
	domain.Settings
	Complete bool `json:"complete"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type Handler struct {
	sync     SyncRunner
	view     Viewer
	settings SettingsStore
	logger   *slog.Logger
}

func NewHandler(sync SyncRunner, view Viewer, settings SettingsStore) (*Handler, error) {
	if sync == nil {
		return nil, errors.New("handler: sync service must not be nil")
	}
	if view == nil {
		return nil, errors.New("handler: view service must not be nil")
	}
	if settings == nil {
		return nil, errors.New("handler: settings service must not be nil")
	}
	return &Handler{sync: sync, view: view, settings: settings, logger: slog.Default()}, nil
}

// Handle routes one API Gateway proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	log := h.logger.With("correlation_id", corrID, "method", req.HTTPMethod, "path", req.Path)

	status, body := h.route(ctx, req, log)
	if status < http.StatusInternalServerError {
		log.Info("request handled", "status", status)
	}
	return respond(status, body, corrID, log), nil
}

func (h *Handler) route(ctx context.Context, req events.APIGatewayProxyRequest, log *slog.Logger) (int, any) {
	path := strings.TrimRight(req.Path, "/")
	method := strings.ToUpper(req.HTTPMethod)

	switch path {
	case "/conversations":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		period, err := usecase.ParsePeriod(req.QueryStringParameters["period"])
		if err != nil {
			return fail(ctx, log, err)
		}
		rows, err := h.view.Panel(ctx, period)
		if err != nil {
			return fail(ctx, log, err)
		}
		if rows == nil {
			rows = []domain.AnalysisRow{}
		}
		return http.StatusOK, panelResponse{Period: period, Rows: rows}

	case "/sync":
		switch method {
		case http.MethodPost:
			res, err := h.sync.Sync(ctx)
			if err != nil {
				return fail(ctx, log, err)
			}
			return http.StatusOK, res
		case http.MethodGet:
			run, err := h.sync.LatestRun(ctx)
			if err != nil {
				return fail(ctx, log, err)
			}
			return http.StatusOK, run
		}
		return methodNotAllowed()

	case "/selections":
		if method != http.MethodPut {
			return methodNotAllowed()
		}
		var in selectionsRequest
		if err := decodeBody(req, &in); err != nil {
			return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"}
		}
		if err := h.view.SaveSelections(ctx, in.Selections); err != nil {
			return fail(ctx, log, err)
		}
		return http.StatusOK, selectionsResponse{Saved: len(in.Selections)}

	case "/dashboard":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		period, err := usecase.ParsePeriod(req.QueryStringParameters["period"])
		if err != nil {
			return fail(ctx, log, err)
		}
		d, err := h.view.Dashboard(ctx, period)
		if err != nil {
			return fail(ctx, log, err)
		}
		return http.StatusOK, d

	case "/settings":
		switch method {
		case http.MethodGet:
			s, err := h.settings.Settings(ctx)
			if err != nil {
				return fail(ctx, log, err)
			}
			return http.StatusOK, settingsResponse{Settings: s, Complete: s.Complete()}
		case http.MethodPut:
			var in domain.Settings
			if err := decodeBody(req, &in); err != nil {
				return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"}
			}
			s, err := h.settings.Save(ctx, in)
			if err != nil {
				return fail(ctx, log, err)
			}
			return http.StatusOK, settingsResponse{Settings: s, Complete: s.Complete()}
		}
		return methodNotAllowed()
	}
	return http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found"}
}

// fail maps err to a response. Server-side failures are logged here, once,
// with the request's correlation id.
func fail(ctx context.Context, log *slog.Logger, err error) (int, any) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		log.ErrorContext(ctx, "request failed", "status", http.StatusInternalServerError, "err", err)
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	status := statusFor(ucErr.Code)
	if ucErr.Code == usecase.ErrorConfigMissing {
		log.WarnContext(ctx, "feature disabled by missing configuration", "reason", ucErr.Reason)
	} else if status >= http.StatusInternalServerError {
		log.ErrorContext(ctx, "request failed", "status", status, "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	return status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorConfigMissing:
		return http.StatusPreconditionFailed
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorDataShape:
		return http.StatusUnprocessableEntity
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed() (int, any) {
	return http.StatusMethodNotAllowed, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "method_not_allowed"}
}

func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	raw := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return err
		}
		raw = decoded
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func respond(status int, body any, corrID string, log *slog.Logger) events.APIGatewayProxyResponse {
	b, err := json.Marshal(body)
	if err != nil {
		log.Error("failed to encode response", "err", err)
		status = http.StatusInternalServerError
		b = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(b),
	}
}

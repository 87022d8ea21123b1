package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-order-notification-service/internal/events"
	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

// CampaignRunner is the subset of events.Handlers the campaign API needs.
type CampaignRunner interface {
	Campaign(ctx context.Context, req events.CampaignRequest) (events.CampaignResult, error)
}

type CampaignAPI struct {
	Runner CampaignRunner
	admins map[string]struct{}
	Logger *slog.Logger
}

// NewCampaignAPI creates the handler. Callers whose URN is in admins may
// send campaigns.
func NewCampaignAPI(runner CampaignRunner, admins []string, logger *slog.Logger) *CampaignAPI {
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		set[a] = struct{}{}
	}
	return &CampaignAPI{
		Runner: runner,
		admins: set,
		Logger: logger.With("component", "CampaignAPI"),
	}
}

type SendCampaignRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"imageUrl,omitempty"`
}

func (api *CampaignAPI) SendCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req SendCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	_, privileged := api.admins[caller.String()]
	result, err := api.Runner.Campaign(r.Context(), events.CampaignRequest{
		Title:              req.Title,
		Body:               req.Body,
		ImageURL:           req.ImageURL,
		CallerIsPrivileged: privileged,
	})
	switch {
	case errors.Is(err, dispatch.ErrPermissionDenied):
		api.Logger.Warn("Campaign rejected for non-admin caller", "user", caller.String())
		response.WriteJSONError(w, http.StatusForbidden, "Only admins can send promotional notifications")
		return
	case errors.Is(err, dispatch.ErrInvalidArgument):
		response.WriteJSONError(w, http.StatusBadRequest, "Title and body are required")
		return
	case err != nil:
		api.Logger.Error("Campaign failed", "user", caller.String(), "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "Failed to send notifications")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		api.Logger.Warn("Failed to write campaign response", "err", err)
	}
}

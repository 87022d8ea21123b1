package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

// TokenAPI lets a signed-in device register or drop its push token.
type TokenAPI struct {
	Store  dispatch.AddressStore
	Logger *slog.Logger
}

func NewTokenAPI(store dispatch.AddressStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger.With("component", "TokenAPI"),
	}
}

type RegisterFCMRequest struct {
	Token string `json:"token"`
}

// RegisterFCM stores the caller's token, replacing any previous one.
func (api *TokenAPI) RegisterFCM(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req RegisterFCMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Store.SetAddress(r.Context(), caller.String(), req.Token); err != nil {
		api.Logger.Error("Failed to register fcm token", "user", caller.String(), "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnregisterFCM removes the caller's token. It always succeeds so clients
// can call it blindly on sign-out.
func (api *TokenAPI) UnregisterFCM(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	if err := api.Store.RemoveAddress(r.Context(), caller.String()); err != nil {
		api.Logger.Warn("Failed to unregister fcm token", "user", caller.String(), "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

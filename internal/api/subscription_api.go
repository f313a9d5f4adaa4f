package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-expo-push/internal/storage/subscription"
	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
	"github.com/tinywideclouds/go-expo-push/pkg/expo"
)

type SubscriptionAPI struct {
	Manager dispatch.SubscriptionManager
	Logger  *slog.Logger
}

func NewSubscriptionAPI(manager dispatch.SubscriptionManager, logger *slog.Logger) *SubscriptionAPI {
	return &SubscriptionAPI{
		Manager: manager,
		Logger:  logger.With("component", "SubscriptionAPI"),
	}
}

// TokensRequest carries a single token string or a list of tokens.
type TokensRequest struct {
	Tokens any `json:"tokens"`
}

// ChannelResponse is returned by Get.
type ChannelResponse struct {
	Channel string   `json:"channel"`
	Tokens  []string `json:"tokens"`
}

// Subscribe handles POST /api/v1/channels/{channel}/subscribe.
func (api *SubscriptionAPI) Subscribe(w http.ResponseWriter, r *http.Request) {
	tokens, ok := api.decodeTokens(w, r)
	if !ok {
		return
	}
	channel := r.PathValue("channel")

	if err := api.Manager.Subscribe(r.Context(), channel, tokens); err != nil {
		api.writeManagerError(w, "Subscribe", channel, err)
		return
	}
	api.Logger.Info("Subscribe: Tokens subscribed", "channel", channel, "count", len(tokens))

	w.WriteHeader(http.StatusNoContent)
}

// Unsubscribe handles POST /api/v1/channels/{channel}/unsubscribe.
// Unknown channels and tokens succeed so clients can retry freely.
func (api *SubscriptionAPI) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	tokens, ok := api.decodeTokens(w, r)
	if !ok {
		return
	}
	channel := r.PathValue("channel")

	if err := api.Manager.Unsubscribe(r.Context(), channel, tokens); err != nil {
		api.writeManagerError(w, "Unsubscribe", channel, err)
		return
	}
	api.Logger.Info("Unsubscribe: Tokens removed", "channel", channel, "count", len(tokens))

	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/v1/channels/{channel}.
func (api *SubscriptionAPI) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserIDFromContext(r.Context()); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	channel, err := subscription.NormalizeChannel(r.PathValue("channel"))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := api.Manager.Subscriptions(r.Context(), channel)
	if err != nil {
		api.writeManagerError(w, "Get", channel, err)
		return
	}
	if tokens == nil {
		response.WriteJSONError(w, http.StatusNotFound, "channel not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ChannelResponse{Channel: channel, Tokens: tokens}); err != nil {
		api.Logger.Warn("Get: failed to write response", "err", err)
	}
}

// decodeTokens authenticates the caller and extracts a validated token list.
func (api *SubscriptionAPI) decodeTokens(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	var req TokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return nil, false
	}

	tokens, err := subscription.NormalizeTokens(req.Tokens)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "tokens must be a string or a non-empty list of strings")
		return nil, false
	}
	for _, t := range tokens {
		if !expo.IsValidToken(t) {
			api.Logger.Warn("Rejected malformed push token", "user", userID)
			response.WriteJSONError(w, http.StatusBadRequest, "invalid expo push token")
			return nil, false
		}
	}
	return tokens, true
}

func (api *SubscriptionAPI) writeManagerError(w http.ResponseWriter, op, channel string, err error) {
	if errors.Is(err, dispatch.ErrInvalidChannel) || errors.Is(err, dispatch.ErrInvalidTokenInput) {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	api.Logger.Error(op+": storage failed", "channel", channel, "err", err)
	response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
}

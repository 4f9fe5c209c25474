package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/convocore/convocore/internal/chat"
	"github.com/convocore/convocore/internal/database"
)

// userIdentifiers carries the platform identifiers of the sending user.
type userIdentifiers struct {
	WhatsApp string `json:"whatsapp" validate:"omitempty,whatsapp_user"`
	Telegram string `json:"telegram" validate:"omitempty,telegram_user"`
	API      string `json:"api"`
}

// groupIdentifiers carries the platform identifiers of the target group.
// Presence of any one switches the message to group scope.
type groupIdentifiers struct {
	WhatsApp string `json:"whatsapp" validate:"omitempty,whatsapp_group"`
	Telegram string `json:"telegram" validate:"omitempty,telegram_group"`
}

type submitMessageRequest struct {
	Message   string           `json:"message"  validate:"required"`
	UserIDs   userIdentifiers  `json:"user_ids"`
	GroupIDs  groupIdentifiers `json:"group_ids"`
	GroupName string           `json:"group_name"`
	Platform  string           `json:"platform" validate:"omitempty,oneof=whatsapp telegram api"`
	Context   string           `json:"context"`
}

type submitMessageResponse struct {
	Response         string `json:"response"`
	UserID           string `json:"user_id"`
	GroupID          string `json:"group_id,omitempty"`
	Scope            string `json:"scope"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// validationMessage renders a validation failure in terms of the payload's
// JSON field names only; struct internals never reach the client.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "oneof":
			parts = append(parts, fe.Field()+" must be one of: "+fe.Param())
		default:
			parts = append(parts, fe.Field()+" has an invalid format")
		}
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// SubmitMessage handles POST /api/v1/messages: it validates the payload,
// runs the gateway sequence, and returns the generated response.
func (h *Handler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req submitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.Error(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	gwReq := chat.MessageRequest{
		Message: req.Message,
		UserIDs: database.PlatformIDs{
			WhatsApp: req.UserIDs.WhatsApp,
			Telegram: req.UserIDs.Telegram,
			API:      req.UserIDs.API,
		},
		GroupIDs: database.GroupPlatformIDs{
			WhatsApp: req.GroupIDs.WhatsApp,
			Telegram: req.GroupIDs.Telegram,
		},
		GroupName: req.GroupName,
		Context:   req.Context,
	}
	if req.Platform != "" {
		if platform, ok := database.ParsePlatform(req.Platform); ok {
			gwReq.Platform = &platform
		}
	}

	result, err := h.svc.HandleMessage(r.Context(), gwReq)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNoUserIdentifier):
			h.Error(w, http.StatusBadRequest, "at least one user platform identifier is required")
		case errors.Is(err, database.ErrNotGroupMember):
			h.Error(w, http.StatusForbidden, "user is not an active member of the group")
		case errors.Is(err, chat.ErrGenerationFailed):
			h.Error(w, http.StatusBadGateway, "response generation failed")
		default:
			h.log.ErrorContext(r.Context(), "Message handling failed", "error", err)
			h.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.JSON(w, http.StatusOK, submitMessageResponse{
		Response:         result.Response,
		UserID:           result.UserID,
		GroupID:          result.GroupID,
		Scope:            string(result.Scope),
		ProcessingTimeMs: result.ProcessingTime.Milliseconds(),
	})
}

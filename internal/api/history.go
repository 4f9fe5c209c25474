package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/convocore/convocore/internal/chat"
	"github.com/convocore/convocore/internal/database"
)

type messageJSON struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	GroupID     string    `json:"group_id,omitempty"`
	Message     string    `json:"message"`
	Sender      string    `json:"sender"`
	MessageType string    `json:"message_type"`
	Platform    string    `json:"platform,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type historyResponse struct {
	Messages []messageJSON `json:"messages"`

	// TotalCount is approximate: exact when HasMore is false, otherwise
	// offset+limit+1. Exact counting is deliberately not performed.
	TotalCount int  `json:"total_count"`
	HasMore    bool `json:"has_more"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
}

// UserHistory handles GET /api/v1/users/{id}/history: the user's private
// conversation page, oldest first. Group entries never appear here.
func (h *Handler) UserHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	limit, offset, ok := h.pagination(w, r)
	if !ok {
		return
	}

	page, err := h.svc.PrivateHistory(r.Context(), userID, limit, offset)
	if err != nil {
		if errors.Is(err, chat.ErrUserNotFound) {
			h.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.ErrorContext(r.Context(), "Private history fetch failed", "user_id", userID, "error", err)
		h.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.JSON(w, http.StatusOK, toHistoryResponse(page, limit, offset))
}

// GroupHistory handles GET /api/v1/groups/{id}/history: the group's
// conversation page across all authors, oldest first.
func (h *Handler) GroupHistory(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")

	limit, offset, ok := h.pagination(w, r)
	if !ok {
		return
	}

	page, err := h.svc.GroupHistory(r.Context(), groupID, limit, offset)
	if err != nil {
		if errors.Is(err, chat.ErrGroupNotFound) {
			h.Error(w, http.StatusNotFound, "group not found")
			return
		}
		h.log.ErrorContext(r.Context(), "Group history fetch failed", "group_id", groupID, "error", err)
		h.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.JSON(w, http.StatusOK, toHistoryResponse(page, limit, offset))
}

// pagination parses and bounds the limit/offset query parameters. Out of
// range values are policy violations answered with 400.
func (h *Handler) pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = h.cfg.HistoryDefaultLimit
	offset = 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > h.cfg.HistoryMaxLimit {
			h.Error(w, http.StatusBadRequest,
				"limit must be an integer between 1 and "+strconv.Itoa(h.cfg.HistoryMaxLimit))
			return 0, 0, false
		}
		limit = parsed
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = parsed
	}

	return limit, offset, true
}

func toHistoryResponse(page *database.HistoryPage, limit, offset int) historyResponse {
	messages := make([]messageJSON, 0, len(page.Entries))
	for _, entry := range page.Entries {
		m := messageJSON{
			ID:          entry.ID,
			UserID:      entry.UserID,
			Message:     entry.Message,
			Sender:      string(entry.Sender),
			MessageType: string(entry.MessageType),
			Timestamp:   entry.Timestamp,
		}
		if entry.GroupID.Valid {
			m.GroupID = entry.GroupID.String
		}
		if entry.Platform.Valid {
			m.Platform = entry.Platform.String
		}
		messages = append(messages, m)
	}

	return historyResponse{
		Messages:   messages,
		TotalCount: page.TotalCount,
		HasMore:    page.HasMore,
		Limit:      limit,
		Offset:     offset,
	}
}

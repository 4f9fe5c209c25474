// Package api exposes the conversation gateway over HTTP. It is a thin
// adapter: JSON framing, boundary validation of platform identifier
// formats, and translation of gateway outcomes to status codes.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/convocore/convocore/internal/chat"
	"github.com/convocore/convocore/internal/config"
)

// Platform identifier formats. The core treats identifiers as opaque
// strings; these formats are enforced only at this boundary.
var (
	whatsappUserRegex  = regexp.MustCompile(`^\d+@c\.us$`)
	whatsappGroupRegex = regexp.MustCompile(`^\d+@g\.us$`)
	telegramUserRegex  = regexp.MustCompile(`^\d+$`)
	telegramGroupRegex = regexp.MustCompile(`^-\d+$`)
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc      *chat.Service
	cfg      config.ChatConfig
	log      *slog.Logger
	validate *validator.Validate
}

// NewHandler creates a Handler around the gateway service and registers the
// platform identifier format validators.
func NewHandler(svc *chat.Service, cfg config.ChatConfig, log *slog.Logger) *Handler {
	v := validator.New()
	// Report fields by their JSON names so validation errors speak the
	// payload's language, not Go struct internals.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "whatsapp_user", whatsappUserRegex)
	mustRegister(v, "whatsapp_group", whatsappGroupRegex)
	mustRegister(v, "telegram_user", telegramUserRegex)
	mustRegister(v, "telegram_group", telegramGroupRegex)

	return &Handler{
		svc:      svc,
		cfg:      cfg,
		log:      log.With("component", "api"),
		validate: v,
	}
}

func mustRegister(v *validator.Validate, tag string, re *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", "error", err)
	}
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

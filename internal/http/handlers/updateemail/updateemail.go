// Package updateemail реализует HTTP-обработчик смены email аккаунта.
// Вместе с email пересчитывается канонический ключ идентичности:
// отображаемый адрес и ключ обязаны меняться атомарно, одним запросом.
package updateemail

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/access-gatekeeper/internal/http/mware"
	"github.com/magabrotheeeer/access-gatekeeper/internal/http/response"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/identity"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// Request — входные данные для смены email.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// AccountUpdater обновляет email и ключ идентичности аккаунта.
type AccountUpdater interface {
	UpdateAccountEmail(ctx context.Context, uid, email, identityKey string) error
}

type Handler struct {
	log      *slog.Logger
	accounts AccountUpdater
	validate *validator.Validate
}

func New(log *slog.Logger, accounts AccountUpdater) *Handler {
	return &Handler{
		log:      log,
		accounts: accounts,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.updateemail"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	accountUID := mware.AccountUIDFromContext(r.Context())
	if accountUID == "" {
		log.Error("missing account uid in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	identityKey := identity.Normalize(req.Email)
	if err := h.accounts.UpdateAccountEmail(r.Context(), accountUID, req.Email, identityKey); err != nil {
		switch {
		case errors.Is(err, models.ErrAccountNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("account not found"))
		case errors.Is(err, models.ErrAccountAlreadyExists):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("email already in use"))
		default:
			log.Error("failed to update email", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to update email"))
		}
		return
	}

	log.Info("email updated", slog.String("account_uid", accountUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"email": req.Email,
	}))
}

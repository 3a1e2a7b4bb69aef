// Package access реализует HTTP-обработчик вычисления доступа.
// Решение выводится заново на каждый запрос из текущих фактов,
// хранимого поля "есть доступ" не существует.
package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/access-gatekeeper/internal/http/mware"
	"github.com/magabrotheeeer/access-gatekeeper/internal/http/response"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// Service вычисляет решение о доступе.
type Service interface {
	GetAccess(ctx context.Context, accountUID string) (*models.AccessDecision, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access"

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

	decision, err := h.service.GetAccess(r.Context(), accountUID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			log.Warn("account not found", slog.String("account_uid", accountUID))
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("account not found"))
			return
		}
		log.Error("failed to evaluate access", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to evaluate access"))
		return
	}

	log.Info("access evaluated",
		slog.String("account_uid", accountUID),
		slog.String("access_type", decision.AccessType))
	render.JSON(w, r, response.StatusOKWithData(decision))
}

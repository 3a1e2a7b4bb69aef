// Package deleteaccount реализует HTTP-обработчик удаления аккаунта.
// Удаление необратимо: история идентичности фиксируется в журнале удалений
// до зачистки, и без этой записи операция не выполняется.
package deleteaccount

import (
	"context"
	"encoding/json"
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

// Request — входные данные удаления. Причина опциональна.
type Request struct {
	Reason string `json:"reason"`
}

// Lifecycle выполняет операцию удаления.
type Lifecycle interface {
	Delete(ctx context.Context, accountUID, reason string) (*models.TransitionResult, error)
}

type Handler struct {
	log       *slog.Logger
	lifecycle Lifecycle
}

func New(log *slog.Logger, lifecycle Lifecycle) *Handler {
	return &Handler{
		log:       log,
		lifecycle: lifecycle,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.deleteaccount"

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
	if r.Body != nil {
		// Тело опционально, ошибки разбора не фатальны.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.lifecycle.Delete(r.Context(), accountUID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountNotFound):
			log.Warn("account not found", slog.String("account_uid", accountUID))
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("account not found"))
		case errors.Is(err, models.ErrConcurrentOperation):
			log.Warn("concurrent operation on account", sl.Err(err))
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("operation already in progress, retry later"))
		case errors.Is(err, models.ErrHistoryRecordFailed):
			log.Error("deletion aborted, history not recorded", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to delete account"))
		default:
			log.Error("deletion failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to delete account"))
		}
		return
	}

	log.Info("account deleted", slog.String("account_uid", accountUID))
	render.JSON(w, r, response.StatusOKWithData(result))
}

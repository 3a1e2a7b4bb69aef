// Package register реализует HTTP-обработчик регистрации аккаунта.
// Регистрация запускает жизненный цикл: новому пользователю выдаётся
// пробный период, повторному (идентичность в журнале удалений) — нет,
// и ответ явно различает эти два случая.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/access-gatekeeper/internal/http/response"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/jwt"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/password"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// Request — входные данные для регистрации.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Lifecycle выполняет операцию регистрации.
type Lifecycle interface {
	Signup(ctx context.Context, email, passwordHash string) (*models.TransitionResult, error)
}

type Handler struct {
	log       *slog.Logger
	lifecycle Lifecycle
	tokens    jwt.Maker
	validate  *validator.Validate
}

func New(log *slog.Logger, lifecycle Lifecycle, tokens jwt.Maker) *Handler {
	return &Handler{
		log:       log,
		lifecycle: lifecycle,
		tokens:    tokens,
		validate:  validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.register"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

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

	hash, err := password.GetHash(req.Password)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to register account"))
		return
	}

	result, err := h.lifecycle.Signup(r.Context(), req.Email, hash)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountAlreadyExists):
			log.Warn("account already exists", slog.String("email", req.Email))
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("account already exists"))
		case errors.Is(err, models.ErrConcurrentOperation):
			log.Warn("concurrent operation on account", sl.Err(err))
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("operation already in progress, retry later"))
		default:
			log.Error("registration failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to register account"))
		}
		return
	}

	token, err := h.tokens.GenerateToken(result.AccountUID, req.Email)
	if err != nil {
		log.Error("failed to issue token", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to register account"))
		return
	}

	log.Info("account registered",
		slog.String("account_uid", result.AccountUID),
		slog.Bool("returning_user", result.ReturningUser))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token":  token,
		"result": result,
	}))
}

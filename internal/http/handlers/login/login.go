// Package login реализует HTTP-обработчик входа по email и паролю
// с выдачей JWT токена.
package login

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

// Request — входные данные для входа.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AccountProvider отдаёт аккаунт по email.
type AccountProvider interface {
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
}

type Handler struct {
	log      *slog.Logger
	accounts AccountProvider
	tokens   jwt.Maker
	validate *validator.Validate
}

func New(log *slog.Logger, accounts AccountProvider, tokens jwt.Maker) *Handler {
	return &Handler{
		log:      log,
		accounts: accounts,
		tokens:   tokens,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.login"

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

	account, err := h.accounts.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			log.Warn("login for unknown account", slog.String("email", req.Email))
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid email or password"))
			return
		}
		log.Error("failed to load account", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to login"))
		return
	}

	if err := password.CompareHash(account.PasswordHash, req.Password); err != nil {
		log.Warn("wrong password", slog.String("email", req.Email))
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid email or password"))
		return
	}

	token, err := h.tokens.GenerateToken(account.UID, account.Email)
	if err != nil {
		log.Error("failed to issue token", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to login"))
		return
	}

	log.Info("login successful", slog.String("account_uid", account.UID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token": token,
	}))
}

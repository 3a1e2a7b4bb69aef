// Package webhook реализует HTTP-обработчик событий платёжного провайдера.
// Порядок обработки: проверка HMAC-подписи, шлюз идемпотентности, применение
// события транзактором. Повтор события не является ошибкой для провайдера:
// ему отвечают 200, иначе он будет повторять доставку бесконечно. После
// регистрации в шлюзе ответ тоже всегда 2xx: повторная доставка будет
// отсечена как дубликат, поэтому локальный сбой применения нельзя
// транслировать провайдеру как ошибку - событие было бы потеряно навсегда.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/access-gatekeeper/internal/http/response"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
	"github.com/magabrotheeeer/access-gatekeeper/internal/services/webhookgate"
)

// Payload — событие подписки от провайдера. Object сохраняется сырыми
// байтами: хэш содержимого в шлюзе идемпотентности считается только по
// объекту, без конверта с event id, иначе та же полезная нагрузка под новым
// event_id хэшировалась бы иначе и проходила шлюз повторно.
type Payload struct {
	ID     string          `json:"id"`   // идентификатор события
	Event  string          `json:"type"` // тип события
	Object json.RawMessage `json:"object"`
}

type eventObject struct {
	SubscriptionID    string            `json:"id"`
	CustomerID        string            `json:"customer"`
	Status            string            `json:"status"`
	CurrentPeriodEnd  int64             `json:"current_period_end"` // unix seconds
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"` // account_uid и др.
}

// Gate пропускает событие через шлюз идемпотентности.
type Gate interface {
	Admit(ctx context.Context, eventID, eventType string, payload []byte) (*webhookgate.Result, error)
}

// Lifecycle применяет допущенное событие к состоянию подписки.
type Lifecycle interface {
	ApplySubscriptionEvent(ctx context.Context, event models.SubscriptionEvent) (*models.TransitionResult, error)
}

// Auditor пишет события в журнал безопасности.
type Auditor interface {
	Record(ctx context.Context, accountUID, category, details string)
}

// Применение допущенного события повторяется на месте при конкурентной
// блокировке аккаунта, прежде чем сбой уйдёт в журнал аудита.
const (
	applyAttempts   = 3
	applyRetryDelay = 200 * time.Millisecond
)

type Handler struct {
	log           *slog.Logger
	gate          Gate
	lifecycle     Lifecycle
	auditor       Auditor
	webhookSecret string
}

func New(log *slog.Logger, gate Gate, lifecycle Lifecycle, auditor Auditor, secret string) *Handler {
	return &Handler{
		log:           log,
		gate:          gate,
		lifecycle:     lifecycle,
		auditor:       auditor,
		webhookSecret: secret,
	}
}

// Проверка подписи webhook (X-Api-Signature).
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// applyAdmitted применяет допущенное событие, повторяя попытку при
// конкурентной операции над тем же аккаунтом: контендер держит блокировку
// недолго, и локальный повтор обычно успевает до ответа провайдеру.
func (h *Handler) applyAdmitted(ctx context.Context, event models.SubscriptionEvent) error {
	for attempt := 1; ; attempt++ {
		_, err := h.lifecycle.ApplySubscriptionEvent(ctx, event)
		if err == nil || !errors.Is(err, models.ErrConcurrentOperation) || attempt == applyAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(applyRetryDelay):
		}
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if payload.ID == "" {
		log.Error("webhook payload without event id")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(payload.Object) == 0 {
		log.Error("webhook payload without object", slog.String("event_id", payload.ID))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var object eventObject
	if err := json.Unmarshal(payload.Object, &object); err != nil {
		log.Error("failed to unmarshal webhook object", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	result, err := h.gate.Admit(r.Context(), payload.ID, payload.Event, payload.Object)
	if err != nil {
		log.Error("failed to register webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !result.Admitted {
		// Повтор: состояние уже изменено первой доставкой.
		log.Warn("duplicate webhook event",
			slog.String("event_id", payload.ID),
			slog.Time("first_seen", result.DuplicateOf))
		render.JSON(w, r, response.StatusOKWithData(map[string]any{
			"duplicate":  true,
			"first_seen": result.DuplicateOf,
		}))
		return
	}

	event := models.SubscriptionEvent{
		EventID:           payload.ID,
		EventType:         payload.Event,
		SubscriptionID:    object.SubscriptionID,
		CustomerID:        object.CustomerID,
		AccountUID:        object.Metadata["account_uid"],
		Status:            object.Status,
		CurrentPeriodEnd:  time.Unix(object.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: object.CancelAtPeriodEnd,
	}
	if err := h.applyAdmitted(r.Context(), event); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			// Неприменимое событие - no-op, провайдеру всё равно нужен 200.
			log.Warn("ignored webhook event", slog.String("event_id", payload.ID), sl.Err(err))
			render.JSON(w, r, response.StatusOKWithData(map[string]any{
				"event_id": payload.ID,
				"ignored":  true,
			}))
			return
		}
		// Событие уже зарегистрировано: повторная доставка уткнётся в
		// дедупликацию, поэтому провайдеру отвечаем 200, а сбой фиксируем
		// в журнале аудита для последующей сверки.
		log.Error("failed to apply admitted subscription event", sl.Err(err))
		h.auditor.Record(r.Context(), event.AccountUID, models.AuditCategoryWebhookApplyFailure,
			"event "+payload.ID+" admitted but not applied: "+err.Error())
		render.JSON(w, r, response.StatusOKWithData(map[string]any{
			"event_id": payload.ID,
			"deferred": true,
		}))
		return
	}

	log.Info("webhook processed",
		slog.String("event_id", payload.ID),
		slog.String("event_type", payload.Event))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"event_id": payload.ID,
	}))
}

// Package access вычисляет решение о доступе к продукту. Решение никогда
// не сохраняется: оно каждый раз выводится заново из неизменяемых фактов -
// момента создания аккаунта, состояния подписки, гранта администратора и
// журнала удалений.
package access

import (
	"time"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// Evaluate — чистая функция вычисления доступа. Порядок проверок является
// политикой и должен сохраняться в точности:
//
//  1. действующий грант супер-администратора;
//  2. активная подписка;
//  3. подписка в статусе trialing;
//  4. пробное окно: нет записи в журнале удалений и now внутри 7 суток
//     от создания аккаунта;
//  5. иначе доступ закрыт.
//
// Остаток пробного окна всегда считается от account.CreatedAt, никогда от
// отдельно сохранённого значения: счётчик одинаков при любом числе чтений
// и не может быть продлён повторными записями.
func Evaluate(account *models.Account, sub *models.SubscriptionRecord,
	ledgerEntry *models.DeletionLedgerEntry, adminGrant *models.AdminGrant,
	now time.Time) models.AccessDecision {

	isReturning := ledgerEntry != nil

	if adminGrant != nil && adminGrant.ExpiresAt.After(now) {
		return models.AccessDecision{
			HasAccess:            true,
			AccessType:           models.AccessTypeSuperAdmin,
			IsReturningUser:      isReturning,
			CanProvisionExternal: true,
		}
	}

	if sub != nil && sub.Status == models.SubscriptionStatusActive {
		return models.AccessDecision{
			HasAccess:            true,
			AccessType:           models.AccessTypeSubscription,
			IsReturningUser:      isReturning,
			CanProvisionExternal: true,
		}
	}

	if sub != nil && sub.Status == models.SubscriptionStatusTrialing {
		return models.AccessDecision{
			HasAccess:            true,
			AccessType:           models.AccessTypeSubscriptionTrial,
			IsReturningUser:      isReturning,
			CanProvisionExternal: true,
		}
	}

	trialEnd := account.CreatedAt.Add(models.TrialDuration)
	if !isReturning && now.Before(trialEnd) {
		remaining := int64(trialEnd.Sub(now) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
		return models.AccessDecision{
			HasAccess:             true,
			AccessType:            models.AccessTypeTrial,
			TrialSecondsRemaining: remaining,
			CanProvisionExternal:  true,
		}
	}

	return models.AccessDecision{
		HasAccess:       false,
		AccessType:      models.AccessTypeExpired,
		IsReturningUser: isReturning,
	}
}

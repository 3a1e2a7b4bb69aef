// Package identity реализует каноникализацию email-адреса в стабильный
// ключ идентичности. Один и тот же человек не должен получать новый пробный
// период за счёт косметических вариаций адреса: суб-адресации ("+suffix"),
// точек в локальной части у провайдеров, где они игнорируются, и
// альтернативных доменов одного провайдера.
//
// Любая проверка журнала удалений или права на пробный период обязана
// использовать именно этот ключ, а не исходный email.
package identity

import "strings"

// aliasingDomains — домены крупных почтовых провайдеров, где локальная часть
// поддерживает суб-адресацию вида "user+tag@domain".
var aliasingDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"outlook.com":    true,
	"hotmail.com":    true,
	"live.com":       true,
	"icloud.com":     true,
	"proton.me":      true,
	"protonmail.com": true,
}

// dotInsensitiveDomains — семейство провайдера, игнорирующего точки в
// локальной части. Для него же домен приводится к основному.
var dotInsensitiveDomains = map[string]string{
	"gmail.com":      "gmail.com",
	"googlemail.com": "gmail.com",
}

// Normalize приводит email к каноническому ключу идентичности.
// Функция чистая, детерминированная и идемпотентная:
// Normalize(Normalize(x)) == Normalize(x).
//
// Для доменов вне списка aliasingDomains адрес только переводится в нижний
// регистр: точки и плюсы там значимы и сохраняются.
func Normalize(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return email
	}
	local, domain := email[:at], email[at+1:]

	if !aliasingDomains[domain] {
		return local + "@" + domain
	}

	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	if primary, ok := dotInsensitiveDomains[domain]; ok {
		local = strings.ReplaceAll(local, ".", "")
		domain = primary
	}
	return local + "@" + domain
}

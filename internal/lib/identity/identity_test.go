package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/identity"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{
			name:  "lowercases whole address",
			email: "John.Doe@Example.COM",
			want:  "john.doe@example.com",
		},
		{
			name:  "strips plus suffix on aliasing domain",
			email: "user+promo@yahoo.com",
			want:  "user@yahoo.com",
		},
		{
			name:  "keeps plus suffix on unknown domain",
			email: "user+promo@example.org",
			want:  "user+promo@example.org",
		},
		{
			name:  "strips dots for gmail",
			email: "j.o.h.n@gmail.com",
			want:  "john@gmail.com",
		},
		{
			name:  "keeps dots on non-gmail aliasing domain",
			email: "j.ohn@outlook.com",
			want:  "j.ohn@outlook.com",
		},
		{
			name:  "canonicalizes googlemail to gmail",
			email: "John.Doe+spam@googlemail.com",
			want:  "johndoe@gmail.com",
		},
		{
			name:  "dots and plus combined",
			email: "a.b+x@gmail.com",
			want:  "ab@gmail.com",
		},
		{
			name:  "no at sign is returned lowercased",
			email: "not-an-email",
			want:  "not-an-email",
		},
		{
			name:  "trims whitespace",
			email: "  user@gmail.com ",
			want:  "user@gmail.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identity.Normalize(tt.email))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	emails := []string{
		"John.Doe+tag@Gmail.COM",
		"user+promo@yahoo.com",
		"plain@example.org",
		"a.b.c@googlemail.com",
	}
	for _, e := range emails {
		once := identity.Normalize(e)
		assert.Equal(t, once, identity.Normalize(once), "normalize must be idempotent for %q", e)
	}
}

func TestNormalizeCollapsesVariants(t *testing.T) {
	// Все варианты одного реального пользователя должны давать один ключ.
	variants := []string{
		"john.doe@gmail.com",
		"johndoe@gmail.com",
		"John.Doe+trial2@gmail.com",
		"j.o.h.n.d.o.e@googlemail.com",
	}
	want := identity.Normalize(variants[0])
	for _, v := range variants {
		assert.Equal(t, want, identity.Normalize(v), "variant %q", v)
	}
}

// Package jwt проверяет токены внешнего поставщика аутентификации и извлекает
// из них личность вызывающего.
package jwt

import (
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// Maker описывает выпуск и разбор токенов личности.
type Maker interface {
	GenerateToken(identity models.Identity) (string, error)
	ParseToken(tokenStr string) (*IdentityClaims, error)
}

// MakerImpl реализует Maker на общем секрете HS256.
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	issuer    string        // Ожидаемый издатель; пустой не проверяется.
	tokenTTL  time.Duration // Время жизни выпускаемых токенов.
}

// NewJWTMaker создаёт MakerImpl.
func NewJWTMaker(secretKey, issuer string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		issuer:    issuer,
		tokenTTL:  ttl,
	}
}

package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// IdentityClaims данные о вызывающем, которые выдаёт поставщик аутентификации.
// Subject содержит внешний идентификатор.
type IdentityClaims struct {
	Email                string `json:"email"`
	Name                 string `json:"name,omitempty"`
	Picture              string `json:"picture,omitempty"`
	jwt.RegisteredClaims        // sub, iss, exp, iat
}

// Identity возвращает проверенную личность из claims.
func (c *IdentityClaims) Identity() models.Identity {
	return models.Identity{
		ExternalID: c.Subject,
		Email:      models.NormalizeEmail(c.Email),
		Profile: models.Profile{
			Name:      c.Name,
			AvatarURL: c.Picture,
		},
	}
}

var errMissingSubject = errors.New("token has no subject or email")

// GenerateToken подписывает токен для личности. Используется в тестах и
// локальной разработке вместо внешнего поставщика.
func (j *MakerImpl) GenerateToken(identity models.Identity) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		Email:   identity.Email,
		Name:    identity.Profile.Name,
		Picture: identity.Profile.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ExternalID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ParseToken проверяет подпись, срок действия и издателя токена.
func (j *MakerImpl) ParseToken(tokenStr string) (*IdentityClaims, error) {
	const op = "jwt.ParseToken"

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &IdentityClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	if claims.Subject == "" || strings.TrimSpace(claims.Email) == "" {
		return nil, fmt.Errorf("%s: %w", op, errMissingSubject)
	}
	return claims, nil
}

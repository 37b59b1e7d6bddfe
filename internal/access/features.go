package access

import (
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// Feature функция продукта, закрытая уровнем доступа.
type Feature string

const (
	// FeatureAITafsir тафсир на основе ИИ, требует уровня pro.
	FeatureAITafsir Feature = "ai_tafsir"
	// FeatureFullCatalog все суры и головоломки, достаточно любого доступа.
	FeatureFullCatalog Feature = "full_catalog"
)

var requiredTier = map[Feature]string{
	FeatureAITafsir:    models.TierPro,
	FeatureFullCatalog: "",
}

// Allows сообщает, доступна ли функция аккаунту на момент now.
func Allows(a *models.Account, f Feature, now time.Time) bool {
	if !Evaluate(a, now).Allowed {
		return false
	}
	tier, known := requiredTier[f]
	if !known {
		return false
	}
	return tier == "" || a.Tier() == tier
}

// Features возвращает карту всех известных функций с флагом доступности.
func Features(a *models.Account, now time.Time) map[Feature]bool {
	out := make(map[Feature]bool, len(requiredTier))
	for f := range requiredTier {
		out[f] = Allows(a, f, now)
	}
	return out
}

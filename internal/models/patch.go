package models

import "time"

// Field описывает изменение одного поля: нулевое значение оставляет поле как
// есть, Set записывает значение, Clear записывает NULL.
type Field[T any] struct {
	set   bool
	value *T
}

// Set возвращает Field, записывающий значение v.
func Set[T any](v T) Field[T] {
	return Field[T]{set: true, value: &v}
}

// SetPtr возвращает Field, записывающий *v или NULL, если v == nil.
func SetPtr[T any](v *T) Field[T] {
	if v == nil {
		return Clear[T]()
	}
	return Set(*v)
}

// Clear возвращает Field, записывающий NULL.
func Clear[T any]() Field[T] {
	return Field[T]{set: true}
}

// IsSet сообщает, меняет ли Field поле.
func (f Field[T]) IsSet() bool { return f.set }

// Value возвращает новое значение (nil означает NULL).
func (f Field[T]) Value() *T { return f.value }

// Apply применяет изменение к dst.
func (f Field[T]) Apply(dst **T) {
	if !f.set {
		return
	}
	if f.value == nil {
		*dst = nil
		return
	}
	v := *f.value
	*dst = &v
}

// EntitlementPatch набор полей доступа, которые обновляются одной атомарной
// операцией по id аккаунта или по ссылке на клиента в платёжной системе.
type EntitlementPatch struct {
	Status                 Field[SubscriptionStatus]
	Plan                   Field[string]
	Tier                   Field[string]
	EndDate                Field[time.Time]
	TrialEndsAt            Field[time.Time]
	HasDirectAccess        Field[bool]
	PaymentCustomerRef     Field[string]
	PaymentSubscriptionRef Field[string]

	// KeepLifetimeGrant оставляет план, уровень и дату окончания без
	// изменений, если у аккаунта бессрочный прямой доступ.
	KeepLifetimeGrant bool
}

// HoldsLifetimeGrant сообщает, что у аккаунта бессрочный прямой доступ.
func HoldsLifetimeGrant(a Account) bool {
	return a.HasDirectAccess && a.Plan() == PlanLifetime
}

// Empty сообщает, что патч ничего не меняет.
func (p EntitlementPatch) Empty() bool {
	return !p.Status.IsSet() && !p.Plan.IsSet() && !p.Tier.IsSet() && !p.EndDate.IsSet() &&
		!p.TrialEndsAt.IsSet() && !p.HasDirectAccess.IsSet() && !p.PaymentCustomerRef.IsSet() &&
		!p.PaymentSubscriptionRef.IsSet()
}

// ApplyTo применяет патч к копии аккаунта. Используется хранилищем в памяти и
// для записи состояния "после" в аудит.
func (p EntitlementPatch) ApplyTo(a Account) Account {
	if p.Status.IsSet() && p.Status.Value() != nil {
		a.SubscriptionStatus = *p.Status.Value()
	}
	if !p.KeepLifetimeGrant || !HoldsLifetimeGrant(a) {
		p.Plan.Apply(&a.SubscriptionPlan)
		p.Tier.Apply(&a.SubscriptionTier)
		p.EndDate.Apply(&a.SubscriptionEndDate)
	}
	p.TrialEndsAt.Apply(&a.TrialEndsAt)
	if p.HasDirectAccess.IsSet() && p.HasDirectAccess.Value() != nil {
		a.HasDirectAccess = *p.HasDirectAccess.Value()
	}
	p.PaymentCustomerRef.Apply(&a.PaymentCustomerRef)
	p.PaymentSubscriptionRef.Apply(&a.PaymentSubscriptionRef)
	return a
}

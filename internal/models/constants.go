package models

import "time"

const (
	// TimeLayout is the UTC text layout used for stored timestamps. The fixed
	// nine-digit fraction keeps full precision and sorts lexicographically.
	TimeLayout = "2006-01-02T15:04:05.000000000Z"

	// DefaultMaxLeadDays ограничивает, насколько заранее можно бронировать
	DefaultMaxLeadDays = 90

	MinReservationHours = 1
	MaxReservationHours = 24

	// ModifyCutoff и CancelCutoff: операции допустимы строго раньше этого порога
	ModifyCutoff = 2 * time.Hour
	CancelCutoff = 4 * time.Hour

	// TokenRefreshMargin refreshes cached access tokens before they expire.
	TokenRefreshMargin = 10 * time.Second

	// IdempotencyTTL время жизни ключа идемпотентности в Redis
	IdempotencyTTL = 24 * time.Hour

	// DefaultPageSize применяется, когда клиент просит страницу без размера
	DefaultPageSize = 20
	MaxPageSize     = 100
)

package model

import "errors"

// Виды ошибок. Конкретные ошибки оборачивают их через fmt.Errorf("%w: ...").
var (
	// ErrNotFound возвращается, если сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrForbidden возвращается при отказе в доступе или нарушении бизнес-правила доступа.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict возвращается при недопустимом переходе состояния или двойном бронировании.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput возвращается при некорректных входных данных.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransient возвращается при временной недоступности хранилища, запрос можно повторить.
	ErrTransient = errors.New("temporarily unavailable")
	// ErrUnauthorized возвращается при отсутствии или недействительности сессии.
	ErrUnauthorized = errors.New("unauthorized")
)

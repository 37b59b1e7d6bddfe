// Package storage содержит ошибки, общие для всех реализаций хранилища.
//
// Реализации (Postgres в repository, хранилище в памяти в memory) возвращают
// ErrNotFound, когда документа нет, и ErrDuplicate, когда запись нарушает
// ограничение уникальности (email аккаунта, код ваучера, пара аккаунт+ваучер).
package storage

import "errors"

var (
	// ErrNotFound документ не найден.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate нарушено ограничение уникальности.
	ErrDuplicate = errors.New("duplicate key")
)

// Package repository реализует хранилище аккаунтов, ваучеров и журналов
// выдачи доступа на PostgreSQL.
//
// Все изменения аккаунта выполняются одним UPDATE по id (или по ссылке на
// клиента платёжной системы) и затрагивают только переданные поля. Ограничения
// уникальности проверяет сама база; нарушение возвращается как storage.ErrDuplicate.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/quran-entitlements/internal/storage"
)

const uniqueViolation = "23505"

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и проверяет его.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет, что миграции применены.
func CheckDatabaseReady(storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'accounts'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table accounts missing or query error: %w", err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// mapError переводит ошибки драйвера в ошибки хранилища.
func mapError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %s", op, storage.ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// textArray возвращает sql.Scanner для колонки text[].
func textArray(dst *[]string) sql.Scanner {
	return pgtype.NewMap().SQLScanner(dst)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

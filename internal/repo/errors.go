package repo

import "errors"

// Общие ошибки хранилищ.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRecord — запись не может быть сохранена.
	ErrInvalidRecord = errors.New("invalid run record")

	// ErrUnsupportedURL — схема URL хранилища не поддерживается.
	ErrUnsupportedURL = errors.New("unsupported store url")
)

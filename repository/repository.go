// Package repository is the persistence layer of the booking engine. Every
// method that moves money-related state is a single conditional statement, so
// concurrent callers are serialized by the database rather than by the
// application.
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle, scoped to the current transaction when the
// store was handed out by Transaction.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a store bound to one database transaction. The
// transaction commits when fn returns nil.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) with(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

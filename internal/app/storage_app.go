package app

import (
	"fmt"

	"sessions/internal/storage/sqlite"
)

type StorageApp struct {
	storage *sqlite.Storage
}

// NewStorageApp opens the database and brings its schema up to date.
func NewStorageApp(storagePath string) (*StorageApp, error) {
	const op = "app.NewStorageApp"

	storage, err := sqlite.New(storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := storage.Migrate(); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &StorageApp{storage: storage}, nil
}

func (s *StorageApp) Stop() error {
	return s.storage.Close()
}

func (s *StorageApp) Storage() *sqlite.Storage {
	return s.storage
}

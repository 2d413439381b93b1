package storage

import (
	"fmt"

	"github.com/niclabs/sks/objects"
	"github.com/niclabs/sks/storage/sqlite3"
)

type TokenStorage interface {
	// Executes the logic necessary to initialize the storage.
	InitStorage() error

	// Saves a token into the storage, or returns an error. Only
	// token-resident objects are persisted.
	SaveToken(*objects.Token) error

	// Retrieves a token from the storage or returns an error.
	GetToken(string) (*objects.Token, error)

	// Finalizes the use of the storage. The storage is not usable
	// if this method is called.
	CloseStorage() error
}

func NewDatabase(dbType string) (TokenStorage, error) {
	switch dbType {
	case "sqlite3":
		sqliteConfig, err := sqlite3.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("sqlite3 config not defined")
		}
		return sqlite3.GetDatabase(sqliteConfig.Path)
	default:
		return nil, fmt.Errorf("storage option not found")
	}
	// TODO: More storage options.
}

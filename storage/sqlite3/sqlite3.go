package sqlite3

import (
	"database/sql"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/niclabs/sks/objects"
)

// DB is a wrapper over a sql.DB object, complying with the token storage
// interface. Objects are stored with their serialized attribute sets.
type DB struct {
	*sql.DB
}

// Creates the tables if they don't exist yet.
func (db *DB) InitStorage() error {
	for _, stmt := range CreateStmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) SaveToken(token *objects.Token) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(InsertTokenQuery, token.Label, token.Pin, token.SoPin); err != nil {
		return err
	}
	// Cleaning old CryptoObjects
	if _, err := tx.Exec(CleanCryptoObjectsQuery, token.Label); err != nil {
		return err
	}
	for _, object := range token.Objects {
		if object.Type != objects.TokenObject {
			continue
		}
		var id string
		if object.UUID != nil {
			id = object.UUID.String()
		}
		if _, err := tx.Exec(InsertCryptoObjectQuery, token.Label, int64(object.Handle), id, object.Attributes.Serialize()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (db *DB) GetToken(label string) (*objects.Token, error) {
	var pin, soPin string
	err := db.QueryRow(GetTokenQuery, label).Scan(&pin, &soPin)
	if err != nil {
		return nil, err
	}
	token, err := objects.NewToken(label, pin, soPin)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(GetCryptoObjectsQuery, label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var handle int64
		var id string
		var serialized []byte
		if err := rows.Scan(&handle, &id, &serialized); err != nil {
			return nil, err
		}
		attrs, err := objects.DeserializeAttributes(serialized)
		if err != nil {
			return nil, err
		}
		object := &objects.CryptoObject{
			Handle:     objects.ObjectHandle(handle),
			Type:       objects.TokenObject,
			Attributes: attrs,
		}
		if parsed, err := uuid.Parse(id); err == nil {
			object.UUID = &parsed
		}
		token.RestoreObject(object)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return token, nil
}

func (db *DB) CloseStorage() error {
	return db.Close()
}

func GetDatabase(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return &DB{DB: db}, nil
}

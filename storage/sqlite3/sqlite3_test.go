package sqlite3

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niclabs/sks/objects"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := GetDatabase(filepath.Join(t.TempDir(), "sks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.CloseStorage() })
	require.NoError(t, db.InitStorage())
	return db
}

func secretKeyAttrs(t *testing.T, label string) *objects.Attributes {
	t.Helper()
	attrs := objects.NewAttributes()
	require.NoError(t, attrs.Add(objects.CKA_CLASS, objects.ULongValue(uint32(objects.CKO_SECRET_KEY))))
	require.NoError(t, attrs.Add(objects.CKA_KEY_TYPE, objects.ULongValue(uint32(objects.CKK_AES))))
	require.NoError(t, attrs.Add(objects.CKA_TOKEN, objects.BoolValue(true)))
	require.NoError(t, attrs.Add(objects.CKA_LABEL, []byte(label)))
	require.NoError(t, attrs.Add(objects.CKA_VALUE, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}))
	return attrs
}

func TestSaveAndGetToken(t *testing.T) {
	db := testDB(t)

	token, err := objects.NewToken("TEST", "1234", "5678")
	require.NoError(t, err)
	id := uuid.New()
	persisted := &objects.CryptoObject{
		Type:       objects.TokenObject,
		Attributes: secretKeyAttrs(t, "persisted"),
		UUID:       &id,
	}
	token.AddObject(persisted)
	// session objects never reach the database
	token.AddObject(&objects.CryptoObject{
		Type:       objects.SessionObject,
		Attributes: secretKeyAttrs(t, "ephemeral"),
	})
	require.NoError(t, db.SaveToken(token))

	restored, err := db.GetToken("TEST")
	require.NoError(t, err)
	assert.Equal(t, "TEST", restored.Label)
	assert.Equal(t, "1234", restored.Pin)
	assert.Equal(t, "5678", restored.SoPin)
	require.Len(t, restored.Objects, 1)

	object, err := restored.GetObject(persisted.Handle)
	require.NoError(t, err)
	assert.True(t, persisted.Attributes.Equals(object.Attributes))
	require.NotNil(t, object.UUID)
	assert.Equal(t, id, *object.UUID)
}

func TestGetTokenUnknownLabel(t *testing.T) {
	db := testDB(t)
	_, err := db.GetToken("NOPE")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSaveTokenReplacesObjects(t *testing.T) {
	db := testDB(t)
	token, err := objects.NewToken("TEST", "1234", "5678")
	require.NoError(t, err)

	first := &objects.CryptoObject{Type: objects.TokenObject, Attributes: secretKeyAttrs(t, "first")}
	token.AddObject(first)
	require.NoError(t, db.SaveToken(token))

	require.NoError(t, token.DeleteObject(first.Handle))
	second := &objects.CryptoObject{Type: objects.TokenObject, Attributes: secretKeyAttrs(t, "second")}
	token.AddObject(second)
	require.NoError(t, db.SaveToken(token))

	restored, err := db.GetToken("TEST")
	require.NoError(t, err)
	require.Len(t, restored.Objects, 1)
	object, err := restored.GetObject(second.Handle)
	require.NoError(t, err)
	label, err := object.Attributes.GetPtr(objects.CKA_LABEL)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), label)

	// restored handle space continues after the stored objects
	next := &objects.CryptoObject{Type: objects.SessionObject, Attributes: objects.NewAttributes()}
	assert.Greater(t, restored.AddObject(next), second.Handle)
}

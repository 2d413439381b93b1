package objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenLabelTooLong(t *testing.T) {
	_, err := NewToken("a-label-that-is-way-longer-than-thirty-two-chars", "1234", "5678")
	assert.Equal(t, CKR_ARGUMENTS_BAD, CodeOf(err))
}

func TestTokenLogin(t *testing.T) {
	token, err := NewToken("TEST", "1234", "5678")
	require.NoError(t, err)
	assert.False(t, token.IsLoggedIn())
	assert.Equal(t, Public, token.GetSecurityLevel())

	err = token.Login(CKU_USER, "wrong")
	assert.Equal(t, CKR_PIN_INCORRECT, CodeOf(err))
	assert.False(t, token.IsLoggedIn())

	require.NoError(t, token.Login(CKU_USER, "1234"))
	assert.True(t, token.IsLoggedIn())
	assert.Equal(t, User, token.GetSecurityLevel())

	// a different user cannot take over the session
	err = token.Login(CKU_SO, "5678")
	assert.Equal(t, CKR_USER_ANOTHER_ALREADY_LOGGED_IN, CodeOf(err))

	token.Logout()
	assert.False(t, token.IsLoggedIn())
	require.NoError(t, token.Login(CKU_SO, "5678"))
	assert.Equal(t, SecurityOfficer, token.GetSecurityLevel())
}

func TestTokenPinChecksReportErrorLevel(t *testing.T) {
	token, err := NewToken("TEST", "1234", "5678")
	require.NoError(t, err)

	level, err := token.CheckUserPin("wrong")
	assert.Equal(t, SecurityLevelError, level)
	assert.Equal(t, CKR_PIN_INCORRECT, CodeOf(err))

	level, err = token.CheckSecurityOfficerPin("wrong")
	assert.Equal(t, SecurityLevelError, level)
	assert.Equal(t, CKR_PIN_INCORRECT, CodeOf(err))
}

func TestTokenObjectRegistry(t *testing.T) {
	token, err := NewToken("TEST", "1234", "5678")
	require.NoError(t, err)

	first := &CryptoObject{Type: SessionObject, Attributes: NewAttributes()}
	second := &CryptoObject{Type: SessionObject, Attributes: NewAttributes()}
	h1 := token.AddObject(first)
	h2 := token.AddObject(second)
	assert.Equal(t, h1+1, h2)

	got, err := token.GetObject(h1)
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = token.GetObject(h2 + 100)
	assert.Equal(t, CKR_OBJECT_HANDLE_INVALID, CodeOf(err))

	require.NoError(t, token.DeleteObject(h1))
	_, err = token.GetObject(h1)
	assert.Equal(t, CKR_OBJECT_HANDLE_INVALID, CodeOf(err))
	err = token.DeleteObject(h1)
	assert.Equal(t, CKR_OBJECT_HANDLE_INVALID, CodeOf(err))
}

func TestTokenRestoreObjectKeepsHandleSpace(t *testing.T) {
	token, err := NewToken("TEST", "1234", "5678")
	require.NoError(t, err)

	restored := &CryptoObject{Handle: 7, Type: TokenObject, Attributes: NewAttributes()}
	token.RestoreObject(restored)

	got, err := token.GetObject(7)
	require.NoError(t, err)
	assert.Same(t, restored, got)

	// new handles keep growing past the restored ones
	fresh := &CryptoObject{Type: SessionObject, Attributes: NewAttributes()}
	assert.Equal(t, ObjectHandle(8), token.AddObject(fresh))
}

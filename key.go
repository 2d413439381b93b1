package sks

import (
	"github.com/niclabs/sks/objects"
	"github.com/niclabs/sks/tee"
)

var teeKeyTypes = map[objects.KeyType]tee.KeyType{
	objects.CKK_AES:            tee.TypeAES,
	objects.CKK_GENERIC_SECRET: tee.TypeGenericSecret,
	objects.CKK_MD5_HMAC:       tee.TypeHMACMD5,
	objects.CKK_SHA_1_HMAC:     tee.TypeHMACSHA1,
	objects.CKK_SHA224_HMAC:    tee.TypeHMACSHA224,
	objects.CKK_SHA256_HMAC:    tee.TypeHMACSHA256,
	objects.CKK_SHA384_HMAC:    tee.TypeHMACSHA384,
	objects.CKK_SHA512_HMAC:    tee.TypeHMACSHA512,
}

// loadKey materializes the provider key of an object from its value
// attribute. The handle is cached on the object, so repeated operations
// with the same key reuse it.
func (session *Session) loadKey(object *objects.CryptoObject) error {
	who := "Session.loadKey"
	if object.Key() != nil {
		return nil
	}
	if object.Attributes.Class() != objects.CKO_SECRET_KEY {
		return objects.NewError(who, "object is not a secret key", objects.CKR_KEY_HANDLE_INVALID)
	}
	teeType, ok := teeKeyTypes[object.Attributes.KeyType()]
	if !ok {
		return objects.NewError(who, "key type not supported", objects.CKR_ATTRIBUTE_TYPE_INVALID)
	}
	value, err := object.Attributes.GetPtr(objects.CKA_VALUE)
	if err != nil {
		return objects.NewError(who, "secret key has no value", objects.CKR_GENERAL_ERROR)
	}
	provider := session.Slot.Application.Provider
	key, err := provider.AllocateTransientObject(teeType, len(value)*8)
	if err != nil {
		return tee2ckError(who, err)
	}
	if err := provider.PopulateKey(key, value); err != nil {
		provider.FreeTransientObject(key)
		return tee2ckError(who, err)
	}
	object.SetKey(key)
	return nil
}

package objects

import (
	"github.com/google/uuid"

	"github.com/niclabs/sks/tee"
)

type CryptoObjectType int

const (
	SessionObject CryptoObjectType = iota
	TokenObject
)

type ObjectHandle uint32

// A CryptoObject owns exactly one attribute store and, once an operation
// first used it, the provider-instantiated key material. Token objects
// also carry the durable identifier of their on-disk attribute replica.
type CryptoObject struct {
	Handle     ObjectHandle
	Type       CryptoObjectType
	Attributes *Attributes

	// key is the cached transient key handle, nil until loaded.
	key tee.Key

	// UUID identifies the persistent replica of a token object.
	UUID *uuid.UUID
}

// A map of cryptoObjects.
type CryptoObjects map[ObjectHandle]*CryptoObject

// Key returns the cached key material handle, or nil if not yet loaded.
func (object *CryptoObject) Key() tee.Key {
	return object.key
}

// SetKey caches the instantiated key material. Only the key loader calls
// this, and only after the provider populated the key.
func (object *CryptoObject) SetKey(key tee.Key) {
	object.key = key
}

// DropKey clears the cached handle so a later load can retry. The caller
// frees the provider object.
func (object *CryptoObject) DropKey() {
	object.key = nil
}

// Equals returns true if the crypto objects are equal.
func (object *CryptoObject) Equals(object2 *CryptoObject) bool {
	return object.Handle == object2.Handle &&
		object.Attributes.Equals(object2.Attributes)
}

// Equals returns true if the maps of cryptoObjects are equal.
func (objects CryptoObjects) Equals(objects2 CryptoObjects) bool {
	if len(objects) != len(objects2) {
		return false
	}
	for handle, object := range objects {
		object2, ok := objects2[handle]
		if !ok {
			return false
		}
		if !object.Equals(object2) {
			return false
		}
	}
	return true
}

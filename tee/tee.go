// Package tee defines the contract of the secure primitive provider the
// processing engine drives: symmetric cipher, AEAD and MAC operations,
// transient key objects and secure randomness. Implementations live in
// subpackages; the engine only sees this interface.
package tee

import (
	"errors"
	"fmt"
)

type Algorithm uint32

const (
	AlgAESECBNoPad Algorithm = iota + 1
	AlgAESCBCNoPad
	AlgAESCTR
	AlgAESCTS
	AlgAESCCM
	AlgAESGCM
	AlgAESCMAC
	AlgAESCBCMACNoPad
	AlgHMACMD5
	AlgHMACSHA1
	AlgHMACSHA224
	AlgHMACSHA256
	AlgHMACSHA384
	AlgHMACSHA512
)

type Mode uint32

const (
	ModeEncrypt Mode = iota + 1
	ModeDecrypt
	ModeMAC
)

// KeyType names the transient key object types a provider can instantiate.
type KeyType uint32

const (
	TypeAES KeyType = iota + 1
	TypeGenericSecret
	TypeHMACMD5
	TypeHMACSHA1
	TypeHMACSHA224
	TypeHMACSHA256
	TypeHMACSHA384
	TypeHMACSHA512
)

// Operation is an opaque handle to an allocated provider operation.
type Operation interface{}

// Key is an opaque handle to a provider transient key object.
type Key interface{}

// Provider is the secure primitive engine. Every call completes or fails
// synchronously; operations and keys stay valid until freed.
type Provider interface {
	// AllocateOperation reserves one operation of the given algorithm,
	// mode and key bit-length.
	AllocateOperation(algo Algorithm, mode Mode, keyBits int) (Operation, error)
	FreeOperation(op Operation)
	// SetOperationKey binds a populated transient key to the operation.
	SetOperationKey(op Operation, key Key) error

	// Streaming block cipher. CipherInit takes the IV (nil for ECB).
	CipherInit(op Operation, iv []byte) error
	CipherUpdate(op Operation, in, out []byte) (int, error)
	CipherDoFinal(op Operation, in, out []byte) (int, error)

	// Authenticated encryption. AEInit pins nonce, associated data and tag
	// length. Encrypt updates stream ciphertext; decrypt updates only
	// accumulate, the buffered data is revealed by AEDecryptFinal once the
	// trailing tag verified. AEEncryptFinal emits the tag.
	AEInit(op Operation, nonce, aad []byte, tagLen int) error
	AEEncryptUpdate(op Operation, in, out []byte) (int, error)
	AEDecryptAccumulate(op Operation, in []byte) error
	AEEncryptFinal(op Operation, out []byte) (int, error)
	AEDecryptFinal(op Operation, out []byte) (int, error)

	// MAC computation. Compute-final emits the tag, compare-final checks
	// it against the caller's expected value.
	MACInit(op Operation, iv []byte) error
	MACUpdate(op Operation, in []byte) error
	MACComputeFinal(op Operation, out []byte) (int, error)
	MACCompareFinal(op Operation, expected []byte) error

	// Transient key objects.
	AllocateTransientObject(keyType KeyType, keyBits int) (Key, error)
	PopulateKey(key Key, secret []byte) error
	FreeTransientObject(key Key)

	// GenerateRandom returns size cryptographically secure random bytes.
	GenerateRandom(size int) ([]byte, error)
}

// Provider-native statuses. The engine translates them into its own error
// taxonomy through a fixed mapping table.
var (
	ErrBadParameters = errors.New("tee: bad parameters")
	ErrBadState      = errors.New("tee: bad operation state")
	ErrNotSupported  = errors.New("tee: not supported")
	ErrOutOfMemory   = errors.New("tee: out of memory")
	ErrMACInvalid    = errors.New("tee: MAC verification failed")
	ErrDataLength    = errors.New("tee: input length not valid for algorithm")
	ErrGeneric       = errors.New("tee: generic failure")
)

// ShortBufferError reports an undersized destination together with the
// size that would succeed. Recoverable: the operation state is untouched.
type ShortBufferError struct {
	Needed int
}

func (e *ShortBufferError) Error() string {
	return fmt.Sprintf("tee: short buffer, %d bytes required", e.Needed)
}

// IsShortBuffer tells whether err is a provider short-buffer status and
// returns the required size.
func IsShortBuffer(err error) (int, bool) {
	var sb *ShortBufferError
	if errors.As(err, &sb) {
		return sb.Needed, true
	}
	return 0, false
}

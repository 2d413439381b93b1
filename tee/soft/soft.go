// Package soft is a software implementation of the tee.Provider contract,
// built on the Go standard crypto packages. It backs the engine in tests
// and in deployments without a hardware secure element.
package soft

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"hash"

	"github.com/aead/cmac"
	"github.com/pion/dtls/v2/pkg/crypto/ccm"

	"github.com/niclabs/sks/tee"
)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

type key struct {
	keyType tee.KeyType
	bits    int
	secret  []byte
}

type operation struct {
	algo    tee.Algorithm
	mode    tee.Mode
	keyBits int
	key     *key

	// block cipher state
	block   cipher.Block
	bm      cipher.BlockMode
	stream  cipher.Stream
	iv      []byte
	rem     []byte // partial-block remainder (ECB/CBC) or whole input (CTS)
	started bool

	// AEAD state
	aead   cipher.AEAD
	nonce  []byte
	aad    []byte
	tagLen int
	plain  []byte // encrypt direction, for tag computation at final
	buf    []byte // decrypt direction, ciphertext||tag held until final

	// MAC state
	mac *macState
}

func isCipherAlg(algo tee.Algorithm) bool {
	switch algo {
	case tee.AlgAESECBNoPad, tee.AlgAESCBCNoPad, tee.AlgAESCTR, tee.AlgAESCTS:
		return true
	}
	return false
}

func isAEADAlg(algo tee.Algorithm) bool {
	return algo == tee.AlgAESGCM || algo == tee.AlgAESCCM
}

func isMACAlg(algo tee.Algorithm) bool {
	switch algo {
	case tee.AlgAESCMAC, tee.AlgAESCBCMACNoPad,
		tee.AlgHMACMD5, tee.AlgHMACSHA1, tee.AlgHMACSHA224,
		tee.AlgHMACSHA256, tee.AlgHMACSHA384, tee.AlgHMACSHA512:
		return true
	}
	return false
}

func isAESAlg(algo tee.Algorithm) bool {
	return isCipherAlg(algo) || isAEADAlg(algo) ||
		algo == tee.AlgAESCMAC || algo == tee.AlgAESCBCMACNoPad
}

func (p *Provider) AllocateOperation(algo tee.Algorithm, mode tee.Mode, keyBits int) (tee.Operation, error) {
	switch mode {
	case tee.ModeEncrypt, tee.ModeDecrypt:
		if !isCipherAlg(algo) && !isAEADAlg(algo) {
			return nil, tee.ErrNotSupported
		}
	case tee.ModeMAC:
		if !isMACAlg(algo) {
			return nil, tee.ErrNotSupported
		}
	default:
		return nil, tee.ErrBadParameters
	}
	if isAESAlg(algo) {
		switch keyBits {
		case 128, 192, 256:
		default:
			return nil, tee.ErrNotSupported
		}
	} else if keyBits <= 0 || keyBits%8 != 0 {
		return nil, tee.ErrBadParameters
	}
	return &operation{algo: algo, mode: mode, keyBits: keyBits}, nil
}

func (p *Provider) FreeOperation(op tee.Operation) {
	o, ok := op.(*operation)
	if !ok {
		return
	}
	// Drop any buffered plaintext or keystream state with the operation.
	*o = operation{}
}

func (p *Provider) SetOperationKey(op tee.Operation, k tee.Key) error {
	o, ok := op.(*operation)
	if !ok {
		return tee.ErrBadParameters
	}
	kk, ok := k.(*key)
	if !ok || kk.secret == nil {
		return tee.ErrBadParameters
	}
	if len(kk.secret)*8 != o.keyBits {
		return tee.ErrBadParameters
	}
	o.key = kk
	return nil
}

func (o *operation) newBlock() (cipher.Block, error) {
	block, err := aes.NewCipher(o.key.secret)
	if err != nil {
		return nil, tee.ErrBadParameters
	}
	return block, nil
}

func (p *Provider) CipherInit(op tee.Operation, iv []byte) error {
	o, ok := op.(*operation)
	if !ok || o.key == nil || !isCipherAlg(o.algo) {
		return tee.ErrBadState
	}
	block, err := o.newBlock()
	if err != nil {
		return err
	}
	o.block = block
	o.rem = nil
	switch o.algo {
	case tee.AlgAESECBNoPad:
		if len(iv) != 0 {
			return tee.ErrBadParameters
		}
	case tee.AlgAESCBCNoPad:
		if len(iv) != aes.BlockSize {
			return tee.ErrBadParameters
		}
		if o.mode == tee.ModeEncrypt {
			o.bm = cipher.NewCBCEncrypter(block, iv)
		} else {
			o.bm = cipher.NewCBCDecrypter(block, iv)
		}
	case tee.AlgAESCTR:
		if len(iv) != aes.BlockSize {
			return tee.ErrBadParameters
		}
		o.stream = cipher.NewCTR(block, iv)
	case tee.AlgAESCTS:
		if len(iv) != aes.BlockSize {
			return tee.ErrBadParameters
		}
		o.iv = append([]byte(nil), iv...)
	}
	o.started = true
	return nil
}

// cryptBlocks runs the block transform for ECB and CBC over a full-block
// input.
func (o *operation) cryptBlocks(dst, src []byte) {
	if o.algo == tee.AlgAESECBNoPad {
		for i := 0; i < len(src); i += aes.BlockSize {
			if o.mode == tee.ModeEncrypt {
				o.block.Encrypt(dst[i:], src[i:])
			} else {
				o.block.Decrypt(dst[i:], src[i:])
			}
		}
		return
	}
	o.bm.CryptBlocks(dst, src)
}

func (p *Provider) CipherUpdate(op tee.Operation, in, out []byte) (int, error) {
	o, ok := op.(*operation)
	if !ok || !o.started || !isCipherAlg(o.algo) {
		return 0, tee.ErrBadState
	}
	switch o.algo {
	case tee.AlgAESCTR:
		if len(out) < len(in) {
			return 0, &tee.ShortBufferError{Needed: len(in)}
		}
		o.stream.XORKeyStream(out[:len(in)], in)
		return len(in), nil

	case tee.AlgAESCTS:
		// Ciphertext stealing needs the full message; hold everything
		// until final.
		o.rem = append(o.rem, in...)
		return 0, nil

	default:
		total := len(o.rem) + len(in)
		n := total - total%aes.BlockSize
		if n == 0 {
			o.rem = append(o.rem, in...)
			return 0, nil
		}
		if len(out) < n {
			return 0, &tee.ShortBufferError{Needed: n}
		}
		data := make([]byte, n)
		copied := copy(data, o.rem)
		copy(data[copied:], in[:n-copied])
		rem := append([]byte(nil), in[n-copied:]...)
		o.cryptBlocks(out[:n], data)
		o.rem = rem
		return n, nil
	}
}

func (p *Provider) CipherDoFinal(op tee.Operation, in, out []byte) (int, error) {
	o, ok := op.(*operation)
	if !ok || !o.started || !isCipherAlg(o.algo) {
		return 0, tee.ErrBadState
	}
	data := make([]byte, 0, len(o.rem)+len(in))
	data = append(data, o.rem...)
	data = append(data, in...)

	switch o.algo {
	case tee.AlgAESCTR:
		if len(out) < len(data) {
			return 0, &tee.ShortBufferError{Needed: len(data)}
		}
		o.stream.XORKeyStream(out[:len(data)], data)
		o.rem = nil
		o.started = false
		return len(data), nil

	case tee.AlgAESCTS:
		if len(data) < aes.BlockSize {
			return 0, tee.ErrDataLength
		}
		if len(out) < len(data) {
			return 0, &tee.ShortBufferError{Needed: len(data)}
		}
		var err error
		if o.mode == tee.ModeEncrypt {
			err = ctsEncrypt(o.block, o.iv, out[:len(data)], data)
		} else {
			err = ctsDecrypt(o.block, o.iv, out[:len(data)], data)
		}
		if err != nil {
			return 0, err
		}
		o.rem = nil
		o.started = false
		return len(data), nil

	default:
		if len(data)%aes.BlockSize != 0 {
			return 0, tee.ErrDataLength
		}
		if len(out) < len(data) {
			return 0, &tee.ShortBufferError{Needed: len(data)}
		}
		if len(data) > 0 {
			o.cryptBlocks(out[:len(data)], data)
		}
		o.rem = nil
		o.started = false
		return len(data), nil
	}
}

func (p *Provider) AEInit(op tee.Operation, nonce, aad []byte, tagLen int) error {
	o, ok := op.(*operation)
	if !ok || o.key == nil || !isAEADAlg(o.algo) {
		return tee.ErrBadState
	}
	block, err := o.newBlock()
	if err != nil {
		return err
	}
	switch o.algo {
	case tee.AlgAESGCM:
		// Stdlib GCM only derives the pre-counter block for 96-bit
		// nonces.
		if len(nonce) != 12 {
			return tee.ErrNotSupported
		}
		if tagLen < 12 || tagLen > 16 {
			return tee.ErrBadParameters
		}
		aead, err := cipher.NewGCMWithTagSize(block, tagLen)
		if err != nil {
			return tee.ErrBadParameters
		}
		o.aead = aead
		// Payload keystream starts at counter value 2 of J0.
		ctr := make([]byte, aes.BlockSize)
		copy(ctr, nonce)
		ctr[15] = 2
		o.stream = cipher.NewCTR(block, ctr)

	case tee.AlgAESCCM:
		if len(nonce) < 7 || len(nonce) > 13 {
			return tee.ErrBadParameters
		}
		aead, err := ccm.NewCCM(block, tagLen, len(nonce))
		if err != nil {
			return tee.ErrBadParameters
		}
		o.aead = aead
		// Payload keystream starts at CCM counter block A_1.
		a1 := make([]byte, aes.BlockSize)
		a1[0] = byte(14 - len(nonce)) // L-1, with L = 15 - nonce length
		copy(a1[1:], nonce)
		a1[15] = 1
		o.stream = cipher.NewCTR(block, a1)
	}
	o.block = block
	o.nonce = append([]byte(nil), nonce...)
	o.aad = append([]byte(nil), aad...)
	o.tagLen = tagLen
	o.plain = nil
	o.buf = nil
	o.started = true
	return nil
}

func (p *Provider) AEEncryptUpdate(op tee.Operation, in, out []byte) (int, error) {
	o, ok := op.(*operation)
	if !ok || !o.started || !isAEADAlg(o.algo) || o.mode != tee.ModeEncrypt {
		return 0, tee.ErrBadState
	}
	if len(out) < len(in) {
		return 0, &tee.ShortBufferError{Needed: len(in)}
	}
	o.stream.XORKeyStream(out[:len(in)], in)
	o.plain = append(o.plain, in...)
	return len(in), nil
}

func (p *Provider) AEDecryptAccumulate(op tee.Operation, in []byte) error {
	o, ok := op.(*operation)
	if !ok || !o.started || !isAEADAlg(o.algo) || o.mode != tee.ModeDecrypt {
		return tee.ErrBadState
	}
	o.buf = append(o.buf, in...)
	return nil
}

func (p *Provider) AEEncryptFinal(op tee.Operation, out []byte) (int, error) {
	o, ok := op.(*operation)
	if !ok || !o.started || !isAEADAlg(o.algo) || o.mode != tee.ModeEncrypt {
		return 0, tee.ErrBadState
	}
	if len(out) < o.tagLen {
		return 0, &tee.ShortBufferError{Needed: o.tagLen}
	}
	sealed := o.aead.Seal(nil, o.nonce, o.plain, o.aad)
	copy(out, sealed[len(o.plain):])
	o.started = false
	return o.tagLen, nil
}

func (p *Provider) AEDecryptFinal(op tee.Operation, out []byte) (int, error) {
	o, ok := op.(*operation)
	if !ok || !o.started || !isAEADAlg(o.algo) || o.mode != tee.ModeDecrypt {
		return 0, tee.ErrBadState
	}
	if len(o.buf) < o.tagLen {
		return 0, tee.ErrMACInvalid
	}
	needed := len(o.buf) - o.tagLen
	if len(out) < needed {
		return 0, &tee.ShortBufferError{Needed: needed}
	}
	plain, err := o.aead.Open(nil, o.nonce, o.buf, o.aad)
	if err != nil {
		return 0, tee.ErrMACInvalid
	}
	copy(out, plain)
	o.started = false
	return len(plain), nil
}

type macState struct {
	h      hash.Hash
	cbcmac *cbcMAC
}

func (p *Provider) MACInit(op tee.Operation, iv []byte) error {
	o, ok := op.(*operation)
	if !ok || o.key == nil || !isMACAlg(o.algo) || o.mode != tee.ModeMAC {
		return tee.ErrBadState
	}
	if len(iv) != 0 {
		return tee.ErrBadParameters
	}
	switch o.algo {
	case tee.AlgAESCMAC:
		block, err := o.newBlock()
		if err != nil {
			return err
		}
		h, err := cmac.New(block)
		if err != nil {
			return tee.ErrBadParameters
		}
		o.mac = &macState{h: h}
	case tee.AlgAESCBCMACNoPad:
		block, err := o.newBlock()
		if err != nil {
			return err
		}
		o.mac = &macState{cbcmac: newCBCMAC(block)}
	default:
		newHash := hmacHash(o.algo)
		if newHash == nil {
			return tee.ErrNotSupported
		}
		o.mac = &macState{h: hmac.New(newHash, o.key.secret)}
	}
	o.started = true
	return nil
}

func hmacHash(algo tee.Algorithm) func() hash.Hash {
	switch algo {
	case tee.AlgHMACMD5:
		return md5.New
	case tee.AlgHMACSHA1:
		return sha1.New
	case tee.AlgHMACSHA224:
		return sha256.New224
	case tee.AlgHMACSHA256:
		return sha256.New
	case tee.AlgHMACSHA384:
		return sha512.New384
	case tee.AlgHMACSHA512:
		return sha512.New
	}
	return nil
}

func (p *Provider) MACUpdate(op tee.Operation, in []byte) error {
	o, ok := op.(*operation)
	if !ok || !o.started || o.mac == nil {
		return tee.ErrBadState
	}
	if o.mac.cbcmac != nil {
		o.mac.cbcmac.Write(in)
		return nil
	}
	o.mac.h.Write(in)
	return nil
}

func (o *operation) macSum() ([]byte, error) {
	if o.mac.cbcmac != nil {
		return o.mac.cbcmac.Sum()
	}
	return o.mac.h.Sum(nil), nil
}

func (p *Provider) MACComputeFinal(op tee.Operation, out []byte) (int, error) {
	o, ok := op.(*operation)
	if !ok || !o.started || o.mac == nil {
		return 0, tee.ErrBadState
	}
	tag, err := o.macSum()
	if err != nil {
		return 0, err
	}
	if len(out) < len(tag) {
		return 0, &tee.ShortBufferError{Needed: len(tag)}
	}
	copy(out, tag)
	o.started = false
	return len(tag), nil
}

func (p *Provider) MACCompareFinal(op tee.Operation, expected []byte) error {
	o, ok := op.(*operation)
	if !ok || !o.started || o.mac == nil {
		return tee.ErrBadState
	}
	tag, err := o.macSum()
	if err != nil {
		return err
	}
	o.started = false
	// the expected value must cover the whole tag
	if len(expected) != len(tag) {
		return tee.ErrBadParameters
	}
	if subtle.ConstantTimeCompare(tag, expected) != 1 {
		return tee.ErrMACInvalid
	}
	return nil
}

func (p *Provider) AllocateTransientObject(keyType tee.KeyType, keyBits int) (tee.Key, error) {
	switch keyType {
	case tee.TypeAES:
		switch keyBits {
		case 128, 192, 256:
		default:
			return nil, tee.ErrNotSupported
		}
	case tee.TypeGenericSecret, tee.TypeHMACMD5, tee.TypeHMACSHA1,
		tee.TypeHMACSHA224, tee.TypeHMACSHA256, tee.TypeHMACSHA384,
		tee.TypeHMACSHA512:
		if keyBits <= 0 || keyBits%8 != 0 {
			return nil, tee.ErrBadParameters
		}
	default:
		return nil, tee.ErrNotSupported
	}
	return &key{keyType: keyType, bits: keyBits}, nil
}

func (p *Provider) PopulateKey(k tee.Key, secret []byte) error {
	kk, ok := k.(*key)
	if !ok {
		return tee.ErrBadParameters
	}
	if len(secret)*8 != kk.bits {
		return tee.ErrBadParameters
	}
	kk.secret = append([]byte(nil), secret...)
	return nil
}

func (p *Provider) FreeTransientObject(k tee.Key) {
	kk, ok := k.(*key)
	if !ok {
		return
	}
	for i := range kk.secret {
		kk.secret[i] = 0
	}
	kk.secret = nil
}

func (p *Provider) GenerateRandom(size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := rand.Read(out); err != nil {
		return nil, tee.ErrGeneric
	}
	return out, nil
}

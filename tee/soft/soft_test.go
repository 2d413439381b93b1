package soft_test

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niclabs/sks/tee"
	"github.com/niclabs/sks/tee/soft"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// newKeyedOp allocates an operation and binds a populated key to it.
func newKeyedOp(t *testing.T, p *soft.Provider, algo tee.Algorithm, mode tee.Mode, keyType tee.KeyType, secret []byte) tee.Operation {
	t.Helper()
	op, err := p.AllocateOperation(algo, mode, len(secret)*8)
	require.NoError(t, err)
	k, err := p.AllocateTransientObject(keyType, len(secret)*8)
	require.NoError(t, err)
	require.NoError(t, p.PopulateKey(k, secret))
	require.NoError(t, p.SetOperationKey(op, k))
	return op
}

var (
	testKey, _ = hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	testIV, _  = hex.DecodeString("101112131415161718191a1b1c1d1e1f")
)

func TestCipherECBMatchesBlockCipher(t *testing.T) {
	p := soft.New()
	plaintext := bytes.Repeat([]byte("0123456789abcdef"), 3)

	op := newKeyedOp(t, p, tee.AlgAESECBNoPad, tee.ModeEncrypt, tee.TypeAES, testKey)
	require.NoError(t, p.CipherInit(op, nil))

	out := make([]byte, len(plaintext))
	n1, err := p.CipherUpdate(op, plaintext[:7], out)
	require.NoError(t, err)
	assert.Equal(t, 0, n1) // not a full block yet
	n2, err := p.CipherUpdate(op, plaintext[7:], out)
	require.NoError(t, err)
	n3, err := p.CipherDoFinal(op, nil, out[n2:])
	require.NoError(t, err)
	require.Equal(t, len(plaintext), n1+n2+n3)

	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	want := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += aes.BlockSize {
		block.Encrypt(want[i:], plaintext[i:])
	}
	assert.Equal(t, want, out)
}

func TestCipherCBCMatchesStdlib(t *testing.T) {
	p := soft.New()
	plaintext := bytes.Repeat([]byte{0xAB}, 64)

	op := newKeyedOp(t, p, tee.AlgAESCBCNoPad, tee.ModeEncrypt, tee.TypeAES, testKey)
	require.NoError(t, p.CipherInit(op, testIV))

	var got []byte
	out := make([]byte, len(plaintext))
	for _, chunk := range [][]byte{plaintext[:10], plaintext[10:37], plaintext[37:]} {
		n, err := p.CipherUpdate(op, chunk, out)
		require.NoError(t, err)
		got = append(got, out[:n]...)
	}
	n, err := p.CipherDoFinal(op, nil, out)
	require.NoError(t, err)
	got = append(got, out[:n]...)

	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	want := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, testIV).CryptBlocks(want, plaintext)
	assert.Equal(t, want, got)

	// and back
	op = newKeyedOp(t, p, tee.AlgAESCBCNoPad, tee.ModeDecrypt, tee.TypeAES, testKey)
	require.NoError(t, p.CipherInit(op, testIV))
	back := make([]byte, len(got))
	n, err = p.CipherDoFinal(op, got, back)
	require.NoError(t, err)
	assert.Equal(t, plaintext, back[:n])
}

func TestCipherCBCUnalignedFinal(t *testing.T) {
	p := soft.New()
	op := newKeyedOp(t, p, tee.AlgAESCBCNoPad, tee.ModeEncrypt, tee.TypeAES, testKey)
	require.NoError(t, p.CipherInit(op, testIV))

	out := make([]byte, 32)
	_, err := p.CipherDoFinal(op, make([]byte, 20), out)
	assert.ErrorIs(t, err, tee.ErrDataLength)
}

func TestCipherUpdateShortBufferKeepsState(t *testing.T) {
	p := soft.New()
	op := newKeyedOp(t, p, tee.AlgAESCBCNoPad, tee.ModeEncrypt, tee.TypeAES, testKey)
	require.NoError(t, p.CipherInit(op, testIV))

	in := make([]byte, 32)
	_, err := p.CipherUpdate(op, in, make([]byte, 16))
	needed, ok := tee.IsShortBuffer(err)
	require.True(t, ok)
	assert.Equal(t, 32, needed)

	// the retry with a large enough buffer consumes the same input
	out := make([]byte, 32)
	n, err := p.CipherUpdate(op, in, out)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
}

func TestCipherCTRMatchesStdlib(t *testing.T) {
	p := soft.New()
	plaintext := []byte("counter mode works on any input length, no padding needed")

	op := newKeyedOp(t, p, tee.AlgAESCTR, tee.ModeEncrypt, tee.TypeAES, testKey)
	require.NoError(t, p.CipherInit(op, testIV))

	var got []byte
	out := make([]byte, len(plaintext))
	n, err := p.CipherUpdate(op, plaintext[:13], out)
	require.NoError(t, err)
	got = append(got, out[:n]...)
	n, err = p.CipherDoFinal(op, plaintext[13:], out)
	require.NoError(t, err)
	got = append(got, out[:n]...)

	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	want := make([]byte, len(plaintext))
	cipher.NewCTR(block, testIV).XORKeyStream(want, plaintext)
	assert.Equal(t, want, got)
}

func TestCipherCTSSingleBlockIsCBC(t *testing.T) {
	p := soft.New()
	plaintext := bytes.Repeat([]byte{0x42}, aes.BlockSize)

	op := newKeyedOp(t, p, tee.AlgAESCTS, tee.ModeEncrypt, tee.TypeAES, testKey)
	require.NoError(t, p.CipherInit(op, testIV))
	out := make([]byte, len(plaintext))
	n, err := p.CipherDoFinal(op, plaintext, out)
	require.NoError(t, err)
	require.Equal(t, len(plaintext), n)

	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	want := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, testIV).CryptBlocks(want, plaintext)
	assert.Equal(t, want, out)
}

func TestCipherCTSAlignedSwapsLastBlocks(t *testing.T) {
	p := soft.New()
	plaintext := bytes.Repeat([]byte("steal this block"), 3)

	op := newKeyedOp(t, p, tee.AlgAESCTS, tee.ModeEncrypt, tee.TypeAES, testKey)
	require.NoError(t, p.CipherInit(op, testIV))
	out := make([]byte, len(plaintext))
	_, err := p.CipherDoFinal(op, plaintext, out)
	require.NoError(t, err)

	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	cbc := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, testIV).CryptBlocks(cbc, plaintext)
	want := append([]byte(nil), cbc[:16]...)
	want = append(want, cbc[32:48]...)
	want = append(want, cbc[16:32]...)
	assert.Equal(t, want, out)
}

func TestCipherCTSRaggedRoundTrip(t *testing.T) {
	p := soft.New()
	plaintext := []byte("a message whose length is not a multiple of sixteen!!")
	require.NotZero(t, len(plaintext)%aes.BlockSize)

	op := newKeyedOp(t, p, tee.AlgAESCTS, tee.ModeEncrypt, tee.TypeAES, testKey)
	require.NoError(t, p.CipherInit(op, testIV))
	ciphertext := make([]byte, len(plaintext))
	n, err := p.CipherUpdate(op, plaintext[:20], ciphertext)
	require.NoError(t, err)
	assert.Equal(t, 0, n) // everything is held for final
	n, err = p.CipherDoFinal(op, plaintext[20:], ciphertext)
	require.NoError(t, err)
	require.Equal(t, len(plaintext), n)

	op = newKeyedOp(t, p, tee.AlgAESCTS, tee.ModeDecrypt, tee.TypeAES, testKey)
	require.NoError(t, p.CipherInit(op, testIV))
	back := make([]byte, len(ciphertext))
	n, err = p.CipherDoFinal(op, ciphertext, back)
	require.NoError(t, err)
	assert.Equal(t, plaintext, back[:n])
}

func TestAEADGCMStreamMatchesSeal(t *testing.T) {
	p := soft.New()
	plaintext := []byte("streamed AEAD must match the one-shot construction bit for bit")
	nonce := mustHex(t, "000000000000000000000001")
	aad := []byte("header")

	op := newKeyedOp(t, p, tee.AlgAESGCM, tee.ModeEncrypt, tee.TypeAES, testKey)
	require.NoError(t, p.AEInit(op, nonce, aad, 16))

	var ciphertext []byte
	out := make([]byte, len(plaintext))
	for _, chunk := range [][]byte{plaintext[:5], plaintext[5:31], plaintext[31:]} {
		n, err := p.AEEncryptUpdate(op, chunk, out)
		require.NoError(t, err)
		ciphertext = append(ciphertext, out[:n]...)
	}
	tag := make([]byte, 16)
	n, err := p.AEEncryptFinal(op, tag)
	require.NoError(t, err)
	require.Equal(t, 16, n)

	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	want := gcm.Seal(nil, nonce, plaintext, aad)
	assert.Equal(t, want, append(append([]byte(nil), ciphertext...), tag...))
}

func TestAEADGCMDecrypt(t *testing.T) {
	p := soft.New()
	plaintext := []byte("the tag gates every byte of plaintext")
	nonce := mustHex(t, "0102030405060708090a0b0c")

	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	op := newKeyedOp(t, p, tee.AlgAESGCM, tee.ModeDecrypt, tee.TypeAES, testKey)
	require.NoError(t, p.AEInit(op, nonce, nil, 16))
	require.NoError(t, p.AEDecryptAccumulate(op, sealed[:11]))
	require.NoError(t, p.AEDecryptAccumulate(op, sealed[11:]))

	// too small: the needed size is reported, nothing is revealed
	_, err = p.AEDecryptFinal(op, make([]byte, 4))
	needed, ok := tee.IsShortBuffer(err)
	require.True(t, ok)
	assert.Equal(t, len(plaintext), needed)

	out := make([]byte, needed)
	n, err := p.AEDecryptFinal(op, out)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out[:n])
}

func TestAEADGCMDecryptTamperedTag(t *testing.T) {
	p := soft.New()
	nonce := mustHex(t, "0102030405060708090a0b0c")

	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	sealed := gcm.Seal(nil, nonce, []byte("payload"), nil)
	sealed[len(sealed)-1] ^= 1

	op := newKeyedOp(t, p, tee.AlgAESGCM, tee.ModeDecrypt, tee.TypeAES, testKey)
	require.NoError(t, p.AEInit(op, nonce, nil, 16))
	require.NoError(t, p.AEDecryptAccumulate(op, sealed))
	_, err = p.AEDecryptFinal(op, make([]byte, len(sealed)))
	assert.ErrorIs(t, err, tee.ErrMACInvalid)
}

func TestAEADGCMNonceAndTagLimits(t *testing.T) {
	p := soft.New()
	op := newKeyedOp(t, p, tee.AlgAESGCM, tee.ModeEncrypt, tee.TypeAES, testKey)
	assert.ErrorIs(t, p.AEInit(op, make([]byte, 8), nil, 16), tee.ErrNotSupported)
	assert.ErrorIs(t, p.AEInit(op, make([]byte, 12), nil, 8), tee.ErrBadParameters)
}

func TestAEADCCMRoundTrip(t *testing.T) {
	p := soft.New()
	plaintext := []byte("counter with CBC-MAC, streamed")
	nonce := mustHex(t, "00112233445566778899aabb") // 12 bytes
	aad := []byte("associated")

	op := newKeyedOp(t, p, tee.AlgAESCCM, tee.ModeEncrypt, tee.TypeAES, testKey)
	require.NoError(t, p.AEInit(op, nonce, aad, 8))
	ciphertext := make([]byte, len(plaintext))
	n, err := p.AEEncryptUpdate(op, plaintext, ciphertext)
	require.NoError(t, err)
	require.Equal(t, len(plaintext), n)
	tag := make([]byte, 8)
	n, err = p.AEEncryptFinal(op, tag)
	require.NoError(t, err)
	require.Equal(t, 8, n)

	op = newKeyedOp(t, p, tee.AlgAESCCM, tee.ModeDecrypt, tee.TypeAES, testKey)
	require.NoError(t, p.AEInit(op, nonce, aad, 8))
	require.NoError(t, p.AEDecryptAccumulate(op, ciphertext))
	require.NoError(t, p.AEDecryptAccumulate(op, tag))
	out := make([]byte, len(plaintext))
	n, err = p.AEDecryptFinal(op, out)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out[:n])

	// flip one ciphertext bit
	op = newKeyedOp(t, p, tee.AlgAESCCM, tee.ModeDecrypt, tee.TypeAES, testKey)
	require.NoError(t, p.AEInit(op, nonce, aad, 8))
	ciphertext[0] ^= 1
	require.NoError(t, p.AEDecryptAccumulate(op, ciphertext))
	require.NoError(t, p.AEDecryptAccumulate(op, tag))
	_, err = p.AEDecryptFinal(op, out)
	assert.ErrorIs(t, err, tee.ErrMACInvalid)
}

// RFC 4493 test vectors.
func TestMACCMACVectors(t *testing.T) {
	p := soft.New()
	key := mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	cases := []struct {
		name string
		msg  []byte
		tag  string
	}{
		{"empty", nil, "bb1d6929e95937287fa37d129b756746"},
		{"one block", mustHex(t, "6bc1bee22e409f96e93d7e117393172a"), "070a16b46b4d4144f79bdd9dd04a287c"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			op := newKeyedOp(t, p, tee.AlgAESCMAC, tee.ModeMAC, tee.TypeAES, key)
			require.NoError(t, p.MACInit(op, nil))
			require.NoError(t, p.MACUpdate(op, c.msg))
			out := make([]byte, 16)
			n, err := p.MACComputeFinal(op, out)
			require.NoError(t, err)
			assert.Equal(t, mustHex(t, c.tag), out[:n])
		})
	}
}

// RFC 4231 test case 1.
func TestMACHMACSHA256Vector(t *testing.T) {
	p := soft.New()
	key := bytes.Repeat([]byte{0x0b}, 20)

	op := newKeyedOp(t, p, tee.AlgHMACSHA256, tee.ModeMAC, tee.TypeHMACSHA256, key)
	require.NoError(t, p.MACInit(op, nil))
	require.NoError(t, p.MACUpdate(op, []byte("Hi There")))
	out := make([]byte, 32)
	n, err := p.MACComputeFinal(op, out)
	require.NoError(t, err)
	assert.Equal(t,
		mustHex(t, "b0344c61d8db38535ca8afceaf0bf12b881dc200c9833da726e9376c2e32cff7"),
		out[:n])
}

func TestMACCompareFinal(t *testing.T) {
	p := soft.New()
	key := mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	msg := []byte("check me")

	op := newKeyedOp(t, p, tee.AlgAESCMAC, tee.ModeMAC, tee.TypeAES, key)
	require.NoError(t, p.MACInit(op, nil))
	require.NoError(t, p.MACUpdate(op, msg))
	tag := make([]byte, 16)
	_, err := p.MACComputeFinal(op, tag)
	require.NoError(t, err)

	// the full tag passes
	op = newKeyedOp(t, p, tee.AlgAESCMAC, tee.ModeMAC, tee.TypeAES, key)
	require.NoError(t, p.MACInit(op, nil))
	require.NoError(t, p.MACUpdate(op, msg))
	require.NoError(t, p.MACCompareFinal(op, tag))

	// a truncated expected value is a length mismatch, not a weaker check
	op = newKeyedOp(t, p, tee.AlgAESCMAC, tee.ModeMAC, tee.TypeAES, key)
	require.NoError(t, p.MACInit(op, nil))
	require.NoError(t, p.MACUpdate(op, msg))
	assert.ErrorIs(t, p.MACCompareFinal(op, tag[:8]), tee.ErrBadParameters)

	// wrong tag is rejected
	op = newKeyedOp(t, p, tee.AlgAESCMAC, tee.ModeMAC, tee.TypeAES, key)
	require.NoError(t, p.MACInit(op, nil))
	require.NoError(t, p.MACUpdate(op, msg))
	bad := append([]byte(nil), tag...)
	bad[0] ^= 1
	assert.ErrorIs(t, p.MACCompareFinal(op, bad), tee.ErrMACInvalid)

	// an empty expected value is a caller error, not a mismatch
	op = newKeyedOp(t, p, tee.AlgAESCMAC, tee.ModeMAC, tee.TypeAES, key)
	require.NoError(t, p.MACInit(op, nil))
	assert.ErrorIs(t, p.MACCompareFinal(op, nil), tee.ErrBadParameters)
}

func TestMACCBCMACRequiresAlignment(t *testing.T) {
	p := soft.New()
	op := newKeyedOp(t, p, tee.AlgAESCBCMACNoPad, tee.ModeMAC, tee.TypeAES, testKey)
	require.NoError(t, p.MACInit(op, nil))
	require.NoError(t, p.MACUpdate(op, make([]byte, 20)))
	_, err := p.MACComputeFinal(op, make([]byte, 16))
	assert.ErrorIs(t, err, tee.ErrDataLength)
}

func TestAllocateOperationRejectsBadCombinations(t *testing.T) {
	p := soft.New()
	_, err := p.AllocateOperation(tee.AlgAESCMAC, tee.ModeEncrypt, 128)
	assert.ErrorIs(t, err, tee.ErrNotSupported)
	_, err = p.AllocateOperation(tee.AlgAESCBCNoPad, tee.ModeMAC, 128)
	assert.ErrorIs(t, err, tee.ErrNotSupported)
	_, err = p.AllocateOperation(tee.AlgAESCBCNoPad, tee.ModeEncrypt, 100)
	assert.ErrorIs(t, err, tee.ErrNotSupported)
	_, err = p.AllocateOperation(tee.AlgHMACSHA256, tee.ModeMAC, 100)
	assert.ErrorIs(t, err, tee.ErrBadParameters)
}

func TestKeyLifecycle(t *testing.T) {
	p := soft.New()
	k, err := p.AllocateTransientObject(tee.TypeAES, 128)
	require.NoError(t, err)

	// unpopulated keys cannot be bound
	op, err := p.AllocateOperation(tee.AlgAESCBCNoPad, tee.ModeEncrypt, 128)
	require.NoError(t, err)
	assert.ErrorIs(t, p.SetOperationKey(op, k), tee.ErrBadParameters)

	assert.ErrorIs(t, p.PopulateKey(k, make([]byte, 24)), tee.ErrBadParameters)
	require.NoError(t, p.PopulateKey(k, testKey))
	require.NoError(t, p.SetOperationKey(op, k))

	p.FreeTransientObject(k)
	assert.ErrorIs(t, p.SetOperationKey(op, k), tee.ErrBadParameters)
}

func TestGenerateRandom(t *testing.T) {
	p := soft.New()
	a, err := p.GenerateRandom(32)
	require.NoError(t, err)
	require.Len(t, a, 32)
	b, err := p.GenerateRandom(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

package soft

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/niclabs/sks/tee"
)

// ctsEncrypt implements CBC with ciphertext stealing (CS3 variant, the one
// the GP TEE AES-CTS algorithm specifies): the last two ciphertext blocks
// are swapped and the penultimate one truncated to the trailing input
// length. Inputs shorter than one block are rejected.
func ctsEncrypt(block cipher.Block, iv, dst, src []byte) error {
	total := len(src)
	if total < aes.BlockSize {
		return tee.ErrDataLength
	}
	if total == aes.BlockSize {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(dst, src)
		return nil
	}
	n := (total + aes.BlockSize - 1) / aes.BlockSize
	d := total - (n-1)*aes.BlockSize

	padded := make([]byte, n*aes.BlockSize)
	copy(padded, src)
	enc := make([]byte, n*aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(enc, padded)

	head := (n - 2) * aes.BlockSize
	copy(dst, enc[:head])
	// C_n moves forward, the truncated C_{n-1} goes last.
	copy(dst[head:], enc[(n-1)*aes.BlockSize:])
	copy(dst[head+aes.BlockSize:], enc[head:head+d])
	return nil
}

func ctsDecrypt(block cipher.Block, iv, dst, src []byte) error {
	total := len(src)
	if total < aes.BlockSize {
		return tee.ErrDataLength
	}
	if total == aes.BlockSize {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(dst, src)
		return nil
	}
	n := (total + aes.BlockSize - 1) / aes.BlockSize
	d := total - (n-1)*aes.BlockSize
	head := (n - 2) * aes.BlockSize

	cz := src[head : head+aes.BlockSize] // swapped C_n
	cy := src[head+aes.BlockSize:]       // truncated C_{n-1}

	dz := make([]byte, aes.BlockSize)
	block.Decrypt(dz, cz)

	// Steal the missing tail of C_{n-1} from the raw decryption of C_n.
	cn1 := make([]byte, aes.BlockSize)
	copy(cn1, cy)
	copy(cn1[d:], dz[d:])

	full := make([]byte, n*aes.BlockSize)
	copy(full, src[:head])
	copy(full[head:], cn1)
	copy(full[head+aes.BlockSize:], cz)

	out := make([]byte, n*aes.BlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, full)
	copy(dst, out[:total])
	return nil
}

// cbcMAC is CBC-MAC without padding over a zero IV, the primitive behind
// the AES-XCBC-MAC mechanism mapping. Input must be block aligned by the
// time the tag is read.
type cbcMAC struct {
	block cipher.Block
	state []byte
	rem   []byte
}

func newCBCMAC(block cipher.Block) *cbcMAC {
	return &cbcMAC{
		block: block,
		state: make([]byte, aes.BlockSize),
	}
}

func (m *cbcMAC) Write(p []byte) {
	m.rem = append(m.rem, p...)
	n := len(m.rem) - len(m.rem)%aes.BlockSize
	for i := 0; i < n; i += aes.BlockSize {
		for j := 0; j < aes.BlockSize; j++ {
			m.state[j] ^= m.rem[i+j]
		}
		m.block.Encrypt(m.state, m.state)
	}
	m.rem = append([]byte(nil), m.rem[n:]...)
}

func (m *cbcMAC) Sum() ([]byte, error) {
	if len(m.rem) != 0 {
		return nil, tee.ErrDataLength
	}
	out := make([]byte, aes.BlockSize)
	copy(out, m.state)
	return out, nil
}

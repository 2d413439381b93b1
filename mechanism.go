package sks

import (
	"encoding/binary"

	"github.com/niclabs/sks/objects"
	"github.com/niclabs/sks/tee"
)

// Mechanism pairs a mechanism identifier with its raw parameter bytes, as
// received from the caller.
type Mechanism struct {
	Type      objects.MechanismType
	Parameter []byte
}

// ProcessingImport is the pseudo mechanism the template validator uses for
// raw object imports, where no real mechanism drives the creation.
const ProcessingImport objects.MechanismType = 0x80000000

// opSpec is one row of the mechanism dispatch table: the provider algorithm
// and mode a {key type, mechanism, function} triple resolves to.
type opSpec struct {
	algo tee.Algorithm
	mode tee.Mode
}

var aesCipherSpecs = map[objects.MechanismType]tee.Algorithm{
	objects.CKM_AES_ECB: tee.AlgAESECBNoPad,
	objects.CKM_AES_CBC: tee.AlgAESCBCNoPad,
	objects.CKM_AES_CTR: tee.AlgAESCTR,
	objects.CKM_AES_CTS: tee.AlgAESCTS,
	objects.CKM_AES_GCM: tee.AlgAESGCM,
	objects.CKM_AES_CCM: tee.AlgAESCCM,
}

var aesMACSpecs = map[objects.MechanismType]tee.Algorithm{
	objects.CKM_AES_CMAC:         tee.AlgAESCMAC,
	objects.CKM_AES_CMAC_GENERAL: tee.AlgAESCMAC,
	objects.CKM_AES_XCBC_MAC:     tee.AlgAESCBCMACNoPad,
}

// hmacSpecs also pins the key type each HMAC mechanism accepts. A generic
// secret works with every digest.
var hmacSpecs = map[objects.MechanismType]struct {
	algo    tee.Algorithm
	keyType objects.KeyType
}{
	objects.CKM_MD5_HMAC:    {tee.AlgHMACMD5, objects.CKK_MD5_HMAC},
	objects.CKM_SHA_1_HMAC:  {tee.AlgHMACSHA1, objects.CKK_SHA_1_HMAC},
	objects.CKM_SHA224_HMAC: {tee.AlgHMACSHA224, objects.CKK_SHA224_HMAC},
	objects.CKM_SHA256_HMAC: {tee.AlgHMACSHA256, objects.CKK_SHA256_HMAC},
	objects.CKM_SHA384_HMAC: {tee.AlgHMACSHA384, objects.CKK_SHA384_HMAC},
	objects.CKM_SHA512_HMAC: {tee.AlgHMACSHA512, objects.CKK_SHA512_HMAC},
}

// resolveSpec maps the parent key type, the mechanism and the requested
// function to a provider algorithm and mode. Combinations outside the
// table are rejected without touching the session.
func resolveSpec(keyType objects.KeyType, mech objects.MechanismType, function objects.Function) (opSpec, error) {
	who := "resolveSpec"
	switch keyType {
	case objects.CKK_AES:
		switch function {
		case objects.FunctionEncrypt, objects.FunctionDecrypt:
			algo, ok := aesCipherSpecs[mech]
			if !ok {
				return opSpec{}, objects.NewError(who, "mechanism not valid for AES cipher", objects.CKR_MECHANISM_INVALID)
			}
			mode := tee.ModeEncrypt
			if function == objects.FunctionDecrypt {
				mode = tee.ModeDecrypt
			}
			return opSpec{algo, mode}, nil
		case objects.FunctionSign, objects.FunctionVerify:
			algo, ok := aesMACSpecs[mech]
			if !ok {
				return opSpec{}, objects.NewError(who, "mechanism not valid for AES MAC", objects.CKR_MECHANISM_INVALID)
			}
			return opSpec{algo, tee.ModeMAC}, nil
		}
		return opSpec{}, objects.NewError(who, "function not supported for AES keys", objects.CKR_KEY_FUNCTION_NOT_PERMITTED)
	case objects.CKK_GENERIC_SECRET,
		objects.CKK_MD5_HMAC, objects.CKK_SHA_1_HMAC, objects.CKK_SHA224_HMAC,
		objects.CKK_SHA256_HMAC, objects.CKK_SHA384_HMAC, objects.CKK_SHA512_HMAC:
		if function != objects.FunctionSign && function != objects.FunctionVerify {
			return opSpec{}, objects.NewError(who, "function not supported for HMAC keys", objects.CKR_KEY_FUNCTION_NOT_PERMITTED)
		}
		spec, ok := hmacSpecs[mech]
		if !ok {
			return opSpec{}, objects.NewError(who, "mechanism not valid for HMAC", objects.CKR_MECHANISM_INVALID)
		}
		if keyType != objects.CKK_GENERIC_SECRET && keyType != spec.keyType {
			return opSpec{}, objects.NewError(who, "key type does not match HMAC digest", objects.CKR_KEY_TYPE_INCONSISTENT)
		}
		return opSpec{spec.algo, tee.ModeMAC}, nil
	}
	return opSpec{}, objects.NewError(who, "key type not supported", objects.CKR_KEY_FUNCTION_NOT_PERMITTED)
}

// AEADParams carries the per-operation parameters of the GCM and CCM
// mechanisms. TagLen is in bytes.
type AEADParams struct {
	Nonce  []byte
	AAD    []byte
	TagLen int
}

// EncodeAEADParams serializes params into the self-describing byte shape
// DecodeAEADParams reads: two length-prefixed fields and the tag length in
// bits, all little-endian 32-bit.
func EncodeAEADParams(params *AEADParams) []byte {
	out := make([]byte, 0, 12+len(params.Nonce)+len(params.AAD))
	var u [4]byte
	binary.LittleEndian.PutUint32(u[:], uint32(len(params.Nonce)))
	out = append(out, u[:]...)
	out = append(out, params.Nonce...)
	binary.LittleEndian.PutUint32(u[:], uint32(len(params.AAD)))
	out = append(out, u[:]...)
	out = append(out, params.AAD...)
	binary.LittleEndian.PutUint32(u[:], uint32(params.TagLen*8))
	return append(out, u[:]...)
}

func DecodeAEADParams(data []byte) (*AEADParams, error) {
	who := "DecodeAEADParams"
	fail := objects.NewError(who, "malformed AEAD mechanism parameter", objects.CKR_MECHANISM_PARAM_INVALID)
	if len(data) < 4 {
		return nil, fail
	}
	nonceLen := int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	if len(data) < nonceLen+4 {
		return nil, fail
	}
	nonce := make([]byte, nonceLen)
	copy(nonce, data)
	data = data[nonceLen:]
	aadLen := int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	if len(data) < aadLen+4 {
		return nil, fail
	}
	aad := make([]byte, aadLen)
	copy(aad, data)
	data = data[aadLen:]
	if len(data) != 4 {
		return nil, fail
	}
	tagBits := int(binary.LittleEndian.Uint32(data))
	if tagBits%8 != 0 {
		return nil, fail
	}
	return &AEADParams{Nonce: nonce, AAD: aad, TagLen: tagBits / 8}, nil
}

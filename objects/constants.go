package objects

// PKCS#11 identifier enumerations used by the engine. Values follow the
// Cryptoki v2.40 assignments so serialized stores stay interoperable.

type AttributeType uint32

const (
	CKA_CLASS               AttributeType = 0x0000
	CKA_TOKEN               AttributeType = 0x0001
	CKA_PRIVATE             AttributeType = 0x0002
	CKA_LABEL               AttributeType = 0x0003
	CKA_VALUE               AttributeType = 0x0011
	CKA_TRUSTED             AttributeType = 0x0086
	CKA_KEY_TYPE            AttributeType = 0x0100
	CKA_ID                  AttributeType = 0x0102
	CKA_SENSITIVE           AttributeType = 0x0103
	CKA_ENCRYPT             AttributeType = 0x0104
	CKA_DECRYPT             AttributeType = 0x0105
	CKA_WRAP                AttributeType = 0x0106
	CKA_UNWRAP              AttributeType = 0x0107
	CKA_SIGN                AttributeType = 0x0108
	CKA_SIGN_RECOVER        AttributeType = 0x0109
	CKA_VERIFY              AttributeType = 0x010A
	CKA_VERIFY_RECOVER      AttributeType = 0x010B
	CKA_DERIVE              AttributeType = 0x010C
	CKA_VALUE_LEN           AttributeType = 0x0161
	CKA_EXTRACTABLE         AttributeType = 0x0162
	CKA_LOCAL               AttributeType = 0x0163
	CKA_NEVER_EXTRACTABLE   AttributeType = 0x0164
	CKA_ALWAYS_SENSITIVE    AttributeType = 0x0165
	CKA_KEY_GEN_MECHANISM   AttributeType = 0x0166
	CKA_MODIFIABLE          AttributeType = 0x0170
	CKA_COPYABLE            AttributeType = 0x0171
	CKA_DESTROYABLE         AttributeType = 0x0172
	CKA_ALWAYS_AUTHENTICATE AttributeType = 0x0202
	CKA_WRAP_WITH_TRUSTED   AttributeType = 0x0210
)

type ObjectClass uint32

const (
	CKO_DATA        ObjectClass = 0x0000
	CKO_CERTIFICATE ObjectClass = 0x0001
	CKO_PUBLIC_KEY  ObjectClass = 0x0002
	CKO_PRIVATE_KEY ObjectClass = 0x0003
	CKO_SECRET_KEY  ObjectClass = 0x0004
)

type KeyType uint32

const (
	CKK_GENERIC_SECRET KeyType = 0x0010
	CKK_AES            KeyType = 0x001F
	CKK_MD5_HMAC       KeyType = 0x0027
	CKK_SHA_1_HMAC     KeyType = 0x0028
	CKK_SHA256_HMAC    KeyType = 0x002B
	CKK_SHA384_HMAC    KeyType = 0x002C
	CKK_SHA512_HMAC    KeyType = 0x002D
	CKK_SHA224_HMAC    KeyType = 0x002E
)

type MechanismType uint32

const (
	CKM_MD5_HMAC               MechanismType = 0x0211
	CKM_SHA_1_HMAC             MechanismType = 0x0221
	CKM_SHA256_HMAC            MechanismType = 0x0251
	CKM_SHA224_HMAC            MechanismType = 0x0256
	CKM_SHA384_HMAC            MechanismType = 0x0261
	CKM_SHA512_HMAC            MechanismType = 0x0271
	CKM_GENERIC_SECRET_KEY_GEN MechanismType = 0x0350
	CKM_AES_KEY_GEN            MechanismType = 0x1080
	CKM_AES_ECB                MechanismType = 0x1081
	CKM_AES_CBC                MechanismType = 0x1082
	CKM_AES_CBC_PAD            MechanismType = 0x1085
	CKM_AES_CTR                MechanismType = 0x1086
	CKM_AES_GCM                MechanismType = 0x1087
	CKM_AES_CCM                MechanismType = 0x1088
	CKM_AES_CTS                MechanismType = 0x1089
	CKM_AES_CMAC               MechanismType = 0x108A
	CKM_AES_CMAC_GENERAL       MechanismType = 0x108B
	CKM_AES_XCBC_MAC           MechanismType = 0x108C
)

// CKUndefined marks "no mechanism/class/type" wherever a field of these
// enumerations may be unset.
const CKUndefined = 0xFFFFFFFF

type RV uint32

const (
	CKR_OK                             RV = 0x0000
	CKR_SLOT_ID_INVALID                RV = 0x0003
	CKR_GENERAL_ERROR                  RV = 0x0005
	CKR_FUNCTION_FAILED                RV = 0x0006
	CKR_ARGUMENTS_BAD                  RV = 0x0007
	CKR_ATTRIBUTE_READ_ONLY            RV = 0x0010
	CKR_ATTRIBUTE_TYPE_INVALID         RV = 0x0012
	CKR_ATTRIBUTE_VALUE_INVALID        RV = 0x0013
	CKR_ACTION_PROHIBITED              RV = 0x001B
	CKR_DATA_INVALID                   RV = 0x0020
	CKR_DATA_LEN_RANGE                 RV = 0x0021
	CKR_DEVICE_ERROR                   RV = 0x0030
	CKR_DEVICE_MEMORY                  RV = 0x0031
	CKR_ENCRYPTED_DATA_INVALID         RV = 0x0040
	CKR_ENCRYPTED_DATA_LEN_RANGE       RV = 0x0041
	CKR_FUNCTION_NOT_SUPPORTED         RV = 0x0054
	CKR_KEY_HANDLE_INVALID             RV = 0x0060
	CKR_KEY_SIZE_RANGE                 RV = 0x0062
	CKR_KEY_TYPE_INCONSISTENT          RV = 0x0063
	CKR_KEY_FUNCTION_NOT_PERMITTED     RV = 0x0068
	CKR_MECHANISM_INVALID              RV = 0x0070
	CKR_MECHANISM_PARAM_INVALID        RV = 0x0071
	CKR_OBJECT_HANDLE_INVALID          RV = 0x0082
	CKR_OPERATION_ACTIVE               RV = 0x0090
	CKR_OPERATION_NOT_INITIALIZED      RV = 0x0091
	CKR_PIN_INCORRECT                  RV = 0x00A0
	CKR_SESSION_HANDLE_INVALID         RV = 0x00B3
	CKR_SESSION_READ_ONLY              RV = 0x00B5
	CKR_SIGNATURE_INVALID              RV = 0x00C0
	CKR_SIGNATURE_LEN_RANGE            RV = 0x00C1
	CKR_TEMPLATE_INCOMPLETE            RV = 0x00D0
	CKR_TEMPLATE_INCONSISTENT          RV = 0x00D1
	CKR_TOKEN_NOT_PRESENT              RV = 0x00E0
	CKR_USER_ALREADY_LOGGED_IN         RV = 0x0100
	CKR_USER_NOT_LOGGED_IN             RV = 0x0101
	CKR_USER_TYPE_INVALID              RV = 0x0103
	CKR_USER_ANOTHER_ALREADY_LOGGED_IN RV = 0x0104
	CKR_BUFFER_TOO_SMALL               RV = 0x0150
)

// Function identifies the cryptographic function a mechanism is asked to
// perform on behalf of a key.
type Function int

const (
	FunctionEncrypt Function = iota
	FunctionDecrypt
	FunctionSign
	FunctionVerify
	FunctionImport
	FunctionGenerate
)

func (f Function) String() string {
	switch f {
	case FunctionEncrypt:
		return "encrypt"
	case FunctionDecrypt:
		return "decrypt"
	case FunctionSign:
		return "sign"
	case FunctionVerify:
		return "verify"
	case FunctionImport:
		return "import"
	case FunctionGenerate:
		return "generate"
	}
	return "unknown"
}

// boolPropShifts assigns each boolean capability attribute a bit in the
// store's packed boolprop word. Attributes outside this table are not
// boolprops and always go through the generic entry path.
var boolPropShifts = map[AttributeType]uint{
	CKA_TOKEN:               0,
	CKA_PRIVATE:             1,
	CKA_TRUSTED:             2,
	CKA_SENSITIVE:           3,
	CKA_ENCRYPT:             4,
	CKA_DECRYPT:             5,
	CKA_WRAP:                6,
	CKA_UNWRAP:              7,
	CKA_SIGN:                8,
	CKA_SIGN_RECOVER:        9,
	CKA_VERIFY:              10,
	CKA_VERIFY_RECOVER:      11,
	CKA_DERIVE:              12,
	CKA_EXTRACTABLE:         13,
	CKA_LOCAL:               14,
	CKA_NEVER_EXTRACTABLE:   15,
	CKA_ALWAYS_SENSITIVE:    16,
	CKA_MODIFIABLE:          17,
	CKA_COPYABLE:            18,
	CKA_DESTROYABLE:         19,
	CKA_ALWAYS_AUTHENTICATE: 20,
	CKA_WRAP_WITH_TRUSTED:   21,
}

// BoolPropShift returns the packed bit position for a boolean capability
// attribute, or -1 if the attribute is not a boolprop.
func BoolPropShift(t AttributeType) int {
	if shift, ok := boolPropShifts[t]; ok {
		return int(shift)
	}
	return -1
}

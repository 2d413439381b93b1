package sks

import (
	"github.com/niclabs/sks/objects"
)

// Validator checks attribute templates against the mechanism that creates
// or uses an object and against the token login state. The engine owns one
// validator; replacing it swaps the whole policy layer.
type Validator interface {
	// CreateAttributesFromTemplate turns a caller template into the full
	// attribute set of a new object, defaults applied.
	CreateAttributesFromTemplate(template *objects.Attributes, function objects.Function) (*objects.Attributes, error)
	CheckCreatedAttrsAgainstProcessing(proc objects.MechanismType, attrs *objects.Attributes) error
	CheckCreatedAttrsAgainstToken(session *Session, attrs *objects.Attributes) error
	CheckParentAttrsAgainstProcessing(mech objects.MechanismType, function objects.Function, attrs *objects.Attributes) error
	CheckParentAttrsAgainstToken(session *Session, attrs *objects.Attributes) error
}

// DefaultValidator is the stock policy: secret key objects only, with the
// usual capability and login rules.
type DefaultValidator struct{}

// engine-owned attributes a caller template may never carry.
var readOnlyAttrs = []objects.AttributeType{
	objects.CKA_LOCAL,
	objects.CKA_NEVER_EXTRACTABLE,
	objects.CKA_ALWAYS_SENSITIVE,
	objects.CKA_KEY_GEN_MECHANISM,
}

func (v DefaultValidator) CreateAttributesFromTemplate(template *objects.Attributes, function objects.Function) (*objects.Attributes, error) {
	who := "DefaultValidator.CreateAttributesFromTemplate"
	if template == nil {
		return nil, objects.NewError(who, "got NULL template", objects.CKR_ARGUMENTS_BAD)
	}
	for _, attrType := range readOnlyAttrs {
		if _, err := template.GetPtr(attrType); err == nil {
			return nil, objects.NewError(who, "template carries an engine-owned attribute", objects.CKR_ATTRIBUTE_READ_ONLY)
		}
	}
	if function == objects.FunctionGenerate {
		if _, err := template.GetPtr(objects.CKA_VALUE); err == nil {
			return nil, objects.NewError(who, "value supplied to key generation", objects.CKR_TEMPLATE_INCONSISTENT)
		}
	}

	attrs := objects.NewAttributes()
	for _, entry := range template.Entries() {
		if err := attrs.Add(entry.Type, entry.Value); err != nil {
			return nil, err
		}
	}
	attrs.SetIfUndefined(objects.CKA_CLASS, objects.ULongValue(uint32(objects.CKO_SECRET_KEY)))
	attrs.SetIfUndefined(objects.CKA_KEY_TYPE, objects.ULongValue(uint32(objects.CKK_GENERIC_SECRET)))
	attrs.SetIfUndefined(objects.CKA_TOKEN, objects.BoolValue(false))
	attrs.SetIfUndefined(objects.CKA_PRIVATE, objects.BoolValue(false))
	attrs.SetIfUndefined(objects.CKA_MODIFIABLE, objects.BoolValue(true))
	attrs.SetIfUndefined(objects.CKA_DESTROYABLE, objects.BoolValue(true))
	attrs.SetIfUndefined(objects.CKA_SENSITIVE, objects.BoolValue(false))
	attrs.SetIfUndefined(objects.CKA_EXTRACTABLE, objects.BoolValue(true))
	attrs.SetIfUndefined(objects.CKA_ENCRYPT, objects.BoolValue(true))
	attrs.SetIfUndefined(objects.CKA_DECRYPT, objects.BoolValue(true))
	attrs.SetIfUndefined(objects.CKA_SIGN, objects.BoolValue(true))
	attrs.SetIfUndefined(objects.CKA_VERIFY, objects.BoolValue(true))
	attrs.SetIfUndefined(objects.CKA_WRAP, objects.BoolValue(false))
	attrs.SetIfUndefined(objects.CKA_UNWRAP, objects.BoolValue(false))
	attrs.SetIfUndefined(objects.CKA_DERIVE, objects.BoolValue(false))
	if err := attrs.Add(objects.CKA_LOCAL, objects.BoolValue(function == objects.FunctionGenerate)); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (v DefaultValidator) CheckCreatedAttrsAgainstProcessing(proc objects.MechanismType, attrs *objects.Attributes) error {
	who := "DefaultValidator.CheckCreatedAttrsAgainstProcessing"
	keyType := attrs.KeyType()
	switch proc {
	case ProcessingImport:
		if attrs.Class() != objects.CKO_SECRET_KEY && attrs.Class() != objects.CKO_DATA {
			return objects.NewError(who, "object class not supported for import", objects.CKR_ATTRIBUTE_VALUE_INVALID)
		}
		if attrs.Class() == objects.CKO_SECRET_KEY {
			if _, ok := teeKeyTypes[keyType]; !ok {
				return objects.NewError(who, "key type not supported for import", objects.CKR_ATTRIBUTE_VALUE_INVALID)
			}
		}
		return nil
	case objects.CKM_AES_KEY_GEN:
		if attrs.Class() != objects.CKO_SECRET_KEY || keyType != objects.CKK_AES {
			return objects.NewError(who, "template does not describe an AES secret key", objects.CKR_TEMPLATE_INCONSISTENT)
		}
	case objects.CKM_GENERIC_SECRET_KEY_GEN:
		if attrs.Class() != objects.CKO_SECRET_KEY {
			return objects.NewError(who, "template does not describe a secret key", objects.CKR_TEMPLATE_INCONSISTENT)
		}
		if _, ok := teeKeyTypes[keyType]; !ok || keyType == objects.CKK_AES {
			return objects.NewError(who, "key type not valid for generic secret generation", objects.CKR_TEMPLATE_INCONSISTENT)
		}
	default:
		return objects.NewError(who, "mechanism cannot create objects", objects.CKR_MECHANISM_INVALID)
	}
	if _, err := attrs.GetULong(objects.CKA_VALUE_LEN); err != nil {
		return objects.NewError(who, "value length missing from template", objects.CKR_TEMPLATE_INCOMPLETE)
	}
	return nil
}

func (v DefaultValidator) CheckCreatedAttrsAgainstToken(session *Session, attrs *objects.Attributes) error {
	who := "DefaultValidator.CheckCreatedAttrsAgainstToken"
	isToken := attrs.BoolDefault(objects.CKA_TOKEN, false)
	isPrivate := attrs.BoolDefault(objects.CKA_PRIVATE, false)
	if isToken && session.isReadOnly() {
		return objects.NewError(who, "session is read only", objects.CKR_SESSION_READ_ONLY)
	}
	state, err := session.GetState()
	if err != nil {
		return err
	}
	if !GetUserAuthorization(state, isToken, isPrivate, true) {
		return objects.NewError(who, "user not logged in", objects.CKR_USER_NOT_LOGGED_IN)
	}
	return nil
}

// functionAttrs maps each cryptographic function to the capability
// attribute the parent key must carry.
var functionAttrs = map[objects.Function]objects.AttributeType{
	objects.FunctionEncrypt: objects.CKA_ENCRYPT,
	objects.FunctionDecrypt: objects.CKA_DECRYPT,
	objects.FunctionSign:    objects.CKA_SIGN,
	objects.FunctionVerify:  objects.CKA_VERIFY,
}

func (v DefaultValidator) CheckParentAttrsAgainstProcessing(mech objects.MechanismType, function objects.Function, attrs *objects.Attributes) error {
	who := "DefaultValidator.CheckParentAttrsAgainstProcessing"
	capAttr, ok := functionAttrs[function]
	if !ok {
		return objects.NewError(who, "function cannot use a parent key", objects.CKR_GENERAL_ERROR)
	}
	if !attrs.BoolDefault(capAttr, false) {
		return objects.NewError(who, "key does not allow this function", objects.CKR_KEY_FUNCTION_NOT_PERMITTED)
	}
	return nil
}

func (v DefaultValidator) CheckParentAttrsAgainstToken(session *Session, attrs *objects.Attributes) error {
	who := "DefaultValidator.CheckParentAttrsAgainstToken"
	isToken := attrs.BoolDefault(objects.CKA_TOKEN, false)
	isPrivate := attrs.BoolDefault(objects.CKA_PRIVATE, false)
	state, err := session.GetState()
	if err != nil {
		return err
	}
	if !GetUserAuthorization(state, isToken, isPrivate, false) {
		return objects.NewError(who, "user not logged in", objects.CKR_USER_NOT_LOGGED_IN)
	}
	return nil
}

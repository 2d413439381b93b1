package sks

import (
	"github.com/niclabs/sks/objects"
)

// validAESKeyLengths in bytes.
var validAESKeyLengths = map[uint32]bool{16: true, 24: true, 32: true}

// ImportObject creates an object from a caller template carrying the key
// value. Nothing is registered until the whole template pipeline passed,
// so a failed import leaves the handle space untouched.
func (session *Session) ImportObject(template *objects.Attributes) (handle objects.ObjectHandle, err error) {
	who := "Session.ImportObject"
	defer func() {
		if err != nil {
			session.logAbort(who, err)
		}
	}()
	if template == nil {
		return 0, objects.NewError(who, "got NULL template", objects.CKR_ARGUMENTS_BAD)
	}
	if session.state != Ready {
		return 0, objects.NewError(who, "another operation is active", objects.CKR_OPERATION_ACTIVE)
	}
	validator := session.Slot.Application.Validator
	attrs, err := validator.CreateAttributesFromTemplate(template, objects.FunctionImport)
	if err != nil {
		return 0, err
	}
	if err := validator.CheckCreatedAttrsAgainstProcessing(ProcessingImport, attrs); err != nil {
		return 0, err
	}
	if err := validator.CheckCreatedAttrsAgainstToken(session, attrs); err != nil {
		return 0, err
	}
	value, err := attrs.GetPtr(objects.CKA_VALUE)
	if err != nil {
		return 0, objects.NewError(who, "no value to import", objects.CKR_TEMPLATE_INCOMPLETE)
	}
	if attrs.KeyType() == objects.CKK_AES && !validAESKeyLengths[uint32(len(value))] {
		return 0, objects.NewError(who, "AES key length not valid", objects.CKR_ATTRIBUTE_VALUE_INVALID)
	}
	object, err := session.CreateObject(attrs)
	if err != nil {
		return 0, err
	}
	return object.Handle, nil
}

// GenerateObject creates a secret key whose value the provider draws from
// its secure random source.
func (session *Session) GenerateObject(mechanism *Mechanism, template *objects.Attributes) (handle objects.ObjectHandle, err error) {
	who := "Session.GenerateObject"
	defer func() {
		if err != nil {
			session.logAbort(who, err)
		}
	}()
	if mechanism == nil || template == nil {
		return 0, objects.NewError(who, "got NULL pointer", objects.CKR_ARGUMENTS_BAD)
	}
	if session.state != Ready {
		return 0, objects.NewError(who, "another operation is active", objects.CKR_OPERATION_ACTIVE)
	}
	validator := session.Slot.Application.Validator
	attrs, err := validator.CreateAttributesFromTemplate(template, objects.FunctionGenerate)
	if err != nil {
		return 0, err
	}
	if err := validator.CheckCreatedAttrsAgainstProcessing(mechanism.Type, attrs); err != nil {
		return 0, err
	}
	if err := validator.CheckCreatedAttrsAgainstToken(session, attrs); err != nil {
		return 0, err
	}
	if err := session.generateKeyValue(mechanism, attrs); err != nil {
		return 0, err
	}
	object, err := session.CreateObject(attrs)
	if err != nil {
		return 0, err
	}
	return object.Handle, nil
}

func (session *Session) generateKeyValue(mechanism *Mechanism, attrs *objects.Attributes) error {
	who := "Session.generateKeyValue"
	valueLen, err := attrs.GetULong(objects.CKA_VALUE_LEN)
	if err != nil {
		return objects.NewError(who, "value length missing from template", objects.CKR_TEMPLATE_INCOMPLETE)
	}
	switch mechanism.Type {
	case objects.CKM_AES_KEY_GEN:
		if !validAESKeyLengths[valueLen] {
			return objects.NewError(who, "AES key length not valid", objects.CKR_ATTRIBUTE_VALUE_INVALID)
		}
	case objects.CKM_GENERIC_SECRET_KEY_GEN:
		if valueLen == 0 {
			return objects.NewError(who, "empty key requested", objects.CKR_ATTRIBUTE_VALUE_INVALID)
		}
	default:
		return objects.NewError(who, "mechanism cannot generate keys", objects.CKR_MECHANISM_INVALID)
	}
	value, err := session.Slot.Application.Provider.GenerateRandom(int(valueLen))
	if err != nil {
		return tee2ckError(who, err)
	}
	return attrs.Add(objects.CKA_VALUE, value)
}

package sks

import (
	"errors"

	"go.uber.org/zap"

	"github.com/niclabs/sks/objects"
	"github.com/niclabs/sks/tee"
)

// tee2ckError translates a provider status into the engine's error
// taxonomy through a fixed mapping table. Short buffers keep the required
// size so callers can retry.
func tee2ckError(who string, err error) error {
	if err == nil {
		return nil
	}
	if needed, ok := tee.IsShortBuffer(err); ok {
		return objects.NewShortBufferError(who, needed)
	}
	var code objects.RV
	switch {
	case errors.Is(err, tee.ErrMACInvalid):
		code = objects.CKR_SIGNATURE_INVALID
	case errors.Is(err, tee.ErrBadParameters):
		code = objects.CKR_ARGUMENTS_BAD
	case errors.Is(err, tee.ErrDataLength):
		code = objects.CKR_DATA_LEN_RANGE
	case errors.Is(err, tee.ErrNotSupported):
		code = objects.CKR_MECHANISM_INVALID
	case errors.Is(err, tee.ErrOutOfMemory):
		code = objects.CKR_DEVICE_MEMORY
	case errors.Is(err, tee.ErrBadState):
		code = objects.CKR_GENERAL_ERROR
	default:
		code = objects.CKR_FUNCTION_FAILED
	}
	return objects.NewError(who, err.Error(), code)
}

// logAbort traces an operation failure before the teardown.
func (session *Session) logAbort(who string, err error) {
	if log := session.Slot.Application.Log; log != nil {
		log.Error("operation failed", zap.String("op", who), zap.Error(err))
	}
}

// enterProcessingState moves the session from READY into an active
// processing state. Any other starting point means another operation is
// still active.
func (session *Session) enterProcessingState(target ProcessingState) error {
	who := "Session.enterProcessingState"
	if session.state != Ready {
		return objects.NewError(who, "another operation is active", objects.CKR_OPERATION_ACTIVE)
	}
	session.state = target
	return nil
}

func (session *Session) checkProcessingState(expected ProcessingState) error {
	who := "Session.checkProcessingState"
	if session.state != expected {
		return objects.NewError(who, "operation not initialized", objects.CKR_OPERATION_NOT_INITIALIZED)
	}
	return nil
}

// releaseActiveProcessing frees the provider operation, clears the
// mechanism binding and forces the session back to READY. Any buffered
// AEAD or block remainder state dies with the operation.
func (session *Session) releaseActiveProcessing() {
	if session.op != nil {
		session.Slot.Application.Provider.FreeOperation(session.op)
		session.op = nil
	}
	session.procID = objects.CKUndefined
	session.state = Ready
}

// GetProcessingState exposes the state machine, mostly for callers that
// need to know whether a session is mid-operation.
func (session *Session) GetProcessingState() ProcessingState {
	return session.state
}

func (session *Session) EncryptInit(mechanism *Mechanism, hKey objects.ObjectHandle) error {
	return session.cipherInit(mechanism, hKey, false)
}

func (session *Session) DecryptInit(mechanism *Mechanism, hKey objects.ObjectHandle) error {
	return session.cipherInit(mechanism, hKey, true)
}

// cipherInit sets the processing state first and rolls everything back on
// any later failure, so a failed init always leaves the session READY with
// no operation allocated.
func (session *Session) cipherInit(mechanism *Mechanism, hKey objects.ObjectHandle, decrypt bool) (err error) {
	who := "Session.CipherInit"
	if mechanism == nil {
		return objects.NewError(who, "got NULL mechanism", objects.CKR_ARGUMENTS_BAD)
	}
	function := objects.FunctionEncrypt
	target := Encrypting
	if decrypt {
		function = objects.FunctionDecrypt
		target = Decrypting
	}
	if err = session.enterProcessingState(target); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			session.logAbort(who, err)
			session.releaseActiveProcessing()
		}
	}()

	object, err := session.GetObject(hKey)
	if err != nil {
		return objects.NewError(who, "parent key handle invalid", objects.CKR_KEY_HANDLE_INVALID)
	}
	validator := session.Slot.Application.Validator
	if err = validator.CheckParentAttrsAgainstProcessing(mechanism.Type, function, object.Attributes); err != nil {
		return err
	}
	if err = validator.CheckParentAttrsAgainstToken(session, object.Attributes); err != nil {
		return err
	}
	if err = session.allocateOperation(mechanism, object, function); err != nil {
		return err
	}
	if err = session.bindKey(object); err != nil {
		return err
	}
	if err = session.cipherParamInit(mechanism); err != nil {
		return err
	}
	session.procID = mechanism.Type
	return nil
}

// allocateOperation resolves the mechanism against the parent key and
// reserves the provider operation. A session already holding an operation
// handle at this point is an engine bug, not a caller error.
func (session *Session) allocateOperation(mechanism *Mechanism, object *objects.CryptoObject, function objects.Function) error {
	who := "Session.allocateOperation"
	if session.op != nil {
		return objects.NewError(who, "operation handle already allocated", objects.CKR_GENERAL_ERROR)
	}
	if object.Attributes.Class() != objects.CKO_SECRET_KEY {
		return objects.NewError(who, "parent object is not a secret key", objects.CKR_KEY_TYPE_INCONSISTENT)
	}
	value, err := object.Attributes.GetPtr(objects.CKA_VALUE)
	if err != nil {
		return objects.NewError(who, "secret key has no value", objects.CKR_GENERAL_ERROR)
	}
	spec, err := resolveSpec(object.Attributes.KeyType(), mechanism.Type, function)
	if err != nil {
		return err
	}
	op, err := session.Slot.Application.Provider.AllocateOperation(spec.algo, spec.mode, len(value)*8)
	if err != nil {
		return tee2ckError(who, err)
	}
	session.op = op
	return nil
}

func (session *Session) bindKey(object *objects.CryptoObject) error {
	who := "Session.bindKey"
	if err := session.loadKey(object); err != nil {
		return err
	}
	if err := session.Slot.Application.Provider.SetOperationKey(session.op, object.Key()); err != nil {
		return tee2ckError(who, err)
	}
	return nil
}

// cipherParamInit validates the mechanism parameter shape and primes the
// provider operation with it.
func (session *Session) cipherParamInit(mechanism *Mechanism) error {
	who := "Session.cipherParamInit"
	provider := session.Slot.Application.Provider
	switch mechanism.Type {
	case objects.CKM_AES_ECB:
		if len(mechanism.Parameter) != 0 {
			return objects.NewError(who, "ECB takes no parameter", objects.CKR_MECHANISM_PARAM_INVALID)
		}
		return tee2ckError(who, provider.CipherInit(session.op, nil))
	case objects.CKM_AES_CBC, objects.CKM_AES_CTS, objects.CKM_AES_CTR:
		if len(mechanism.Parameter) != 16 {
			return objects.NewError(who, "expected a 16 byte IV", objects.CKR_MECHANISM_PARAM_INVALID)
		}
		return tee2ckError(who, provider.CipherInit(session.op, mechanism.Parameter))
	case objects.CKM_AES_GCM, objects.CKM_AES_CCM:
		params, err := DecodeAEADParams(mechanism.Parameter)
		if err != nil {
			return err
		}
		if err := provider.AEInit(session.op, params.Nonce, params.AAD, params.TagLen); err != nil {
			if errors.Is(err, tee.ErrBadParameters) || errors.Is(err, tee.ErrNotSupported) {
				return objects.NewError(who, err.Error(), objects.CKR_MECHANISM_PARAM_INVALID)
			}
			return tee2ckError(who, err)
		}
		return nil
	}
	return objects.NewError(who, "mechanism not valid for cipher init", objects.CKR_MECHANISM_INVALID)
}

func (session *Session) EncryptUpdate(in, out []byte) (int, error) {
	return session.cipherUpdate(in, out, false)
}

func (session *Session) DecryptUpdate(in, out []byte) (int, error) {
	return session.cipherUpdate(in, out, true)
}

// cipherUpdate feeds one chunk to the active operation. Any failure other
// than a short buffer aborts the whole processing.
func (session *Session) cipherUpdate(in, out []byte, decrypt bool) (int, error) {
	who := "Session.CipherUpdate"
	expected := Encrypting
	if decrypt {
		expected = Decrypting
	}
	if err := session.checkProcessingState(expected); err != nil {
		return 0, err
	}
	provider := session.Slot.Application.Provider
	var n int
	var err error
	switch session.procID {
	case objects.CKM_AES_GCM, objects.CKM_AES_CCM:
		if decrypt {
			err = provider.AEDecryptAccumulate(session.op, in)
		} else {
			n, err = provider.AEEncryptUpdate(session.op, in, out)
		}
	default:
		n, err = provider.CipherUpdate(session.op, in, out)
	}
	if err != nil {
		err = tee2ckError(who, err)
		if objects.IsShortBuffer(err) {
			if out == nil {
				err = objects.NewError(who, "mandatory output buffer missing", objects.CKR_ARGUMENTS_BAD)
			} else {
				return 0, err
			}
		}
		session.logAbort(who, err)
		session.releaseActiveProcessing()
		return 0, err
	}
	return n, nil
}

func (session *Session) EncryptFinal(in, out []byte) (int, error) {
	return session.cipherFinal(in, out, false)
}

func (session *Session) DecryptFinal(in, out []byte) (int, error) {
	return session.cipherFinal(in, out, true)
}

// cipherFinal closes the active cipher. On a short buffer the operation
// stays alive for a retry; on every other outcome, success included, it is
// released.
func (session *Session) cipherFinal(in, out []byte, decrypt bool) (int, error) {
	who := "Session.CipherFinal"
	expected := Encrypting
	if decrypt {
		expected = Decrypting
	}
	if err := session.checkProcessingState(expected); err != nil {
		return 0, err
	}
	provider := session.Slot.Application.Provider
	var n int
	var err error
	switch session.procID {
	case objects.CKM_AES_GCM, objects.CKM_AES_CCM:
		if len(in) != 0 {
			err = objects.NewError(who, "AEAD final takes no input", objects.CKR_ARGUMENTS_BAD)
			session.logAbort(who, err)
			session.releaseActiveProcessing()
			return 0, err
		}
		if decrypt {
			n, err = provider.AEDecryptFinal(session.op, out)
			if err != nil && errors.Is(err, tee.ErrMACInvalid) {
				err = objects.NewError(who, "authentication tag mismatch", objects.CKR_ENCRYPTED_DATA_INVALID)
				session.logAbort(who, err)
				session.releaseActiveProcessing()
				return 0, err
			}
		} else {
			n, err = provider.AEEncryptFinal(session.op, out)
		}
	default:
		n, err = provider.CipherDoFinal(session.op, in, out)
	}
	if err != nil {
		err = tee2ckError(who, err)
		if objects.IsShortBuffer(err) {
			return 0, err
		}
		session.logAbort(who, err)
		session.releaseActiveProcessing()
		return 0, err
	}
	session.releaseActiveProcessing()
	return n, nil
}

func (session *Session) SignInit(mechanism *Mechanism, hKey objects.ObjectHandle) error {
	return session.macInit(mechanism, hKey, false)
}

func (session *Session) VerifyInit(mechanism *Mechanism, hKey objects.ObjectHandle) error {
	return session.macInit(mechanism, hKey, true)
}

func (session *Session) macInit(mechanism *Mechanism, hKey objects.ObjectHandle, verify bool) (err error) {
	who := "Session.MACInit"
	if mechanism == nil {
		return objects.NewError(who, "got NULL mechanism", objects.CKR_ARGUMENTS_BAD)
	}
	function := objects.FunctionSign
	target := Signing
	if verify {
		function = objects.FunctionVerify
		target = Verifying
	}
	if err = session.enterProcessingState(target); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			session.logAbort(who, err)
			session.releaseActiveProcessing()
		}
	}()

	object, err := session.GetObject(hKey)
	if err != nil {
		return objects.NewError(who, "parent key handle invalid", objects.CKR_KEY_HANDLE_INVALID)
	}
	validator := session.Slot.Application.Validator
	if err = validator.CheckParentAttrsAgainstProcessing(mechanism.Type, function, object.Attributes); err != nil {
		return err
	}
	if err = validator.CheckParentAttrsAgainstToken(session, object.Attributes); err != nil {
		return err
	}
	if err = session.allocateOperation(mechanism, object, function); err != nil {
		return err
	}
	if err = session.bindKey(object); err != nil {
		return err
	}
	if len(mechanism.Parameter) != 0 && mechanism.Type != objects.CKM_AES_CMAC_GENERAL {
		return objects.NewError(who, "MAC mechanism takes no parameter", objects.CKR_MECHANISM_PARAM_INVALID)
	}
	if err = tee2ckError(who, session.Slot.Application.Provider.MACInit(session.op, nil)); err != nil {
		return err
	}
	session.procID = mechanism.Type
	return nil
}

func (session *Session) SignUpdate(in []byte) error {
	return session.macUpdate(in, false)
}

func (session *Session) VerifyUpdate(in []byte) error {
	return session.macUpdate(in, true)
}

func (session *Session) macUpdate(in []byte, verify bool) error {
	who := "Session.MACUpdate"
	expected := Signing
	if verify {
		expected = Verifying
	}
	if err := session.checkProcessingState(expected); err != nil {
		return err
	}
	if err := session.Slot.Application.Provider.MACUpdate(session.op, in); err != nil {
		ckErr := tee2ckError(who, err)
		session.logAbort(who, ckErr)
		session.releaseActiveProcessing()
		return ckErr
	}
	return nil
}

// SignFinal emits the tag. A short output buffer keeps the operation alive
// with the required size reported; anything else ends it.
func (session *Session) SignFinal(out []byte) (int, error) {
	who := "Session.SignFinal"
	if err := session.checkProcessingState(Signing); err != nil {
		return 0, err
	}
	n, err := session.Slot.Application.Provider.MACComputeFinal(session.op, out)
	if err != nil {
		err = tee2ckError(who, err)
		if objects.IsShortBuffer(err) {
			return 0, err
		}
		session.logAbort(who, err)
		session.releaseActiveProcessing()
		return 0, err
	}
	session.releaseActiveProcessing()
	return n, nil
}

// VerifyFinal compares the accumulated MAC against the caller's expected
// tag and always ends the operation.
func (session *Session) VerifyFinal(signature []byte) error {
	who := "Session.VerifyFinal"
	if err := session.checkProcessingState(Verifying); err != nil {
		return err
	}
	err := session.Slot.Application.Provider.MACCompareFinal(session.op, signature)
	session.releaseActiveProcessing()
	if err != nil {
		ckErr := tee2ckError(who, err)
		session.logAbort(who, ckErr)
		return ckErr
	}
	return nil
}

package sks

import (
	"github.com/google/uuid"
	"github.com/niclabs/sks/objects"
	"github.com/niclabs/sks/tee"
)

type SessionHandle uint32

type SessionFlags uint32

const CKF_RW_SESSION SessionFlags = 0x0002

type SessionState uint32

const (
	CKS_RO_PUBLIC_SESSION SessionState = 0
	CKS_RO_USER_FUNCTIONS SessionState = 1
	CKS_RW_PUBLIC_SESSION SessionState = 2
	CKS_RW_USER_FUNCTIONS SessionState = 3
	CKS_RW_SO_FUNCTIONS   SessionState = 4
)

// ProcessingState is the per-session operation state machine. A session
// runs at most one active processing at a time.
type ProcessingState int

const (
	Ready ProcessingState = iota
	Encrypting
	Decrypting
	Signing
	Verifying
)

type Sessions map[SessionHandle]*Session

// Session holds the active processing of one client connection to a slot:
// the state machine, the provider operation handle and the mechanism that
// allocated it, plus the find-objects iterator.
type Session struct {
	Slot   *Slot
	Handle SessionHandle
	flags  SessionFlags

	state  ProcessingState
	procID objects.MechanismType
	op     tee.Operation

	findInitialized bool
	foundObjects    []objects.ObjectHandle
}

var sessionHandleCounter SessionHandle

func NewSession(flags SessionFlags, currentSlot *Slot) *Session {
	sessionHandleCounter++
	return &Session{
		Slot:   currentSlot,
		Handle: sessionHandleCounter,
		flags:  flags,
		state:  Ready,
		procID: objects.CKUndefined,
	}
}

func (session *Session) GetHandle() SessionHandle {
	return session.Handle
}

func (session *Session) GetCurrentSlot() *Slot {
	return session.Slot
}

// CreateObject registers a finalized attribute set as a new object of the
// session's token and sets its handle. Token objects are persisted.
func (session *Session) CreateObject(attrs *objects.Attributes) (*objects.CryptoObject, error) {
	who := "Session.CreateObject"
	if attrs == nil {
		return nil, objects.NewError(who, "got NULL pointer", objects.CKR_ARGUMENTS_BAD)
	}
	token, err := session.Slot.GetToken()
	if err != nil {
		return nil, err
	}

	objType := objects.SessionObject
	if attrs.BoolDefault(objects.CKA_TOKEN, false) {
		objType = objects.TokenObject
	}
	object := &objects.CryptoObject{
		Type:       objType,
		Attributes: attrs,
	}
	if objType == objects.TokenObject {
		id := uuid.New()
		object.UUID = &id
	}

	token.AddObject(object)
	if objType == objects.TokenObject {
		if err := session.saveToken(token); err != nil {
			_ = token.DeleteObject(object.Handle)
			return nil, err
		}
	}
	return object, nil
}

// DestroyObject removes an object from the token. With sessionOnly set,
// token-resident objects are refused; that is the shape object destruction
// takes while any other session still works on the token.
func (session *Session) DestroyObject(handle objects.ObjectHandle, sessionOnly bool) error {
	who := "Session.DestroyObject"
	token, err := session.Slot.GetToken()
	if err != nil {
		return err
	}
	object, err := token.GetObject(handle)
	if err != nil {
		return err
	}
	if sessionOnly && object.Type == objects.TokenObject {
		return objects.NewError(who, "object is token resident", objects.CKR_ACTION_PROHIBITED)
	}
	if key := object.Key(); key != nil {
		session.Slot.Application.Provider.FreeTransientObject(key)
		object.DropKey()
	}
	if err := token.DeleteObject(handle); err != nil {
		return err
	}
	if object.Type == objects.TokenObject {
		return session.saveToken(token)
	}
	return nil
}

// GetObject resolves an object handle against the session's token.
func (session *Session) GetObject(handle objects.ObjectHandle) (*objects.CryptoObject, error) {
	token, err := session.Slot.GetToken()
	if err != nil {
		return nil, err
	}
	return token.GetObject(handle)
}

// GetAttributeValue copies one attribute of an object into out and returns
// the copied size, with the short-buffer protocol of the attribute store.
func (session *Session) GetAttributeValue(handle objects.ObjectHandle, attrType objects.AttributeType, out []byte) (int, error) {
	object, err := session.GetObject(handle)
	if err != nil {
		return 0, err
	}
	return object.Attributes.Get(attrType, out)
}

func (session *Session) FindObjectsInit(template *objects.Attributes) error {
	who := "Session.FindObjectsInit"
	if session.findInitialized {
		return objects.NewError(who, "operation already initialized", objects.CKR_OPERATION_ACTIVE)
	}
	token, err := session.Slot.GetToken()
	if err != nil {
		return err
	}
	session.foundObjects = make([]objects.ObjectHandle, 0, len(token.Objects))
	for _, object := range token.Objects {
		if template == nil || template.Len() == 0 || template.MatchReference(object.Attributes) {
			session.foundObjects = append(session.foundObjects, object.Handle)
		}
	}
	session.findInitialized = true
	return nil
}

func (session *Session) FindObjects(maxObjectCount int) ([]objects.ObjectHandle, error) {
	who := "Session.FindObjects"
	if !session.findInitialized {
		return nil, objects.NewError(who, "operation not initialized", objects.CKR_OPERATION_NOT_INITIALIZED)
	}
	limit := len(session.foundObjects)
	if maxObjectCount < limit {
		limit = maxObjectCount
	}
	result := session.foundObjects[:limit]
	session.foundObjects = session.foundObjects[limit:]
	return result, nil
}

func (session *Session) FindObjectsFinal() error {
	who := "Session.FindObjectsFinal"
	if !session.findInitialized {
		return objects.NewError(who, "operation not initialized", objects.CKR_OPERATION_NOT_INITIALIZED)
	}
	session.findInitialized = false
	session.foundObjects = nil
	return nil
}

// GenerateRandom returns size bytes from the provider's secure source.
func (session *Session) GenerateRandom(size int) ([]byte, error) {
	who := "Session.GenerateRandom"
	out, err := session.Slot.Application.Provider.GenerateRandom(size)
	if err != nil {
		return nil, tee2ckError(who, err)
	}
	return out, nil
}

func (session *Session) GetState() (SessionState, error) {
	who := "Session.GetState"
	token, err := session.Slot.GetToken()
	if err != nil {
		return 0, err
	}
	switch token.GetSecurityLevel() {
	case objects.SecurityOfficer:
		return CKS_RW_SO_FUNCTIONS, nil
	case objects.User:
		if session.isReadOnly() {
			return CKS_RO_USER_FUNCTIONS, nil
		}
		return CKS_RW_USER_FUNCTIONS, nil
	case objects.Public:
		if session.isReadOnly() {
			return CKS_RO_PUBLIC_SESSION, nil
		}
		return CKS_RW_PUBLIC_SESSION, nil
	}
	return 0, objects.NewError(who, "invalid security level", objects.CKR_GENERAL_ERROR)
}

func (session *Session) isReadOnly() bool {
	return session.flags&CKF_RW_SESSION != CKF_RW_SESSION
}

func (session *Session) Login(userType objects.UserType, pin string) error {
	token, err := session.Slot.GetToken()
	if err != nil {
		return err
	}
	return token.Login(userType, pin)
}

func (session *Session) Logout() error {
	token, err := session.Slot.GetToken()
	if err != nil {
		return err
	}
	token.Logout()
	return nil
}

func (session *Session) saveToken(token *objects.Token) error {
	who := "Session.saveToken"
	db := session.Slot.Application.Database
	if db == nil {
		return nil
	}
	if err := db.SaveToken(token); err != nil {
		return objects.NewError(who, err.Error(), objects.CKR_DEVICE_ERROR)
	}
	return nil
}

// GetUserAuthorization tells whether the session state allows creating or
// using an object with the given token and privacy attributes.
func GetUserAuthorization(state SessionState, isToken, isPrivate, userAction bool) bool {
	switch state {
	case CKS_RW_SO_FUNCTIONS:
		return !isPrivate
	case CKS_RW_USER_FUNCTIONS:
		return true
	case CKS_RO_USER_FUNCTIONS:
		if isToken {
			return !userAction
		}
		return true
	case CKS_RW_PUBLIC_SESSION:
		return !isPrivate
	case CKS_RO_PUBLIC_SESSION:
		return false
	}
	return false
}

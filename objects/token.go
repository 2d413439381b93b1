package objects

// Security level constant
type SecurityLevel int

const (
	SecurityLevelError SecurityLevel = iota
	SecurityOfficer
	User
	Public
)

type UserType uint32

const (
	CKU_SO               UserType = 0
	CKU_USER             UserType = 1
	CKU_CONTEXT_SPECIFIC UserType = 2
)

// A token of the PKCS11 device: the object registry the engine resolves
// key handles against, plus the login state the template checks read.
type Token struct {
	Label         string
	Pin           string
	SoPin         string
	Objects       CryptoObjects
	securityLevel SecurityLevel
	loggedIn      bool
	nextHandle    ObjectHandle
}

func NewToken(label, userPin, soPin string) (*Token, error) {
	if len(label) > 32 {
		return nil, NewError("objects.NewToken", "label with more than 32 chars", CKR_ARGUMENTS_BAD)
	}
	return &Token{
		Label:         label,
		Pin:           userPin,
		SoPin:         soPin,
		Objects:       make(CryptoObjects),
		securityLevel: Public,
	}, nil
}

// Equals returns true if the token objects are equal.
func (token *Token) Equals(token2 *Token) bool {
	return token.Label == token2.Label &&
		token.Pin == token2.Pin &&
		token.SoPin == token2.SoPin &&
		token.Objects.Equals(token2.Objects)
}

// Sets the user pin to a new pin.
func (token *Token) SetUserPin(pin string) {
	token.Pin = pin
}

// Gets security level set for the token at Login
func (token *Token) GetSecurityLevel() SecurityLevel {
	return token.securityLevel
}

func (token *Token) IsLoggedIn() bool {
	return token.loggedIn
}

// Checks if the pin provided is the user pin
func (token *Token) CheckUserPin(pin string) (SecurityLevel, error) {
	if token.Pin == pin {
		return User, nil
	}
	return SecurityLevelError, NewError("Token.CheckUserPin", "incorrect pin", CKR_PIN_INCORRECT)
}

// Checks if the pin provided is the SO pin.
func (token *Token) CheckSecurityOfficerPin(pin string) (SecurityLevel, error) {
	if token.SoPin == pin {
		return SecurityOfficer, nil
	}
	return SecurityLevelError, NewError("Token.CheckSecurityOfficerPin", "incorrect pin", CKR_PIN_INCORRECT)
}

// Logs into the token, or returns an error if something goes wrong.
func (token *Token) Login(userType UserType, pin string) error {
	if token.loggedIn &&
		((userType == CKU_USER && token.securityLevel == SecurityOfficer) ||
			(userType == CKU_SO && token.securityLevel == User)) {
		return NewError("Token.Login", "another user already logged in", CKR_USER_ANOTHER_ALREADY_LOGGED_IN)
	}

	switch userType {
	case CKU_SO:
		securityLevel, err := token.CheckSecurityOfficerPin(pin)
		if err != nil {
			return err
		}
		token.securityLevel = securityLevel
	case CKU_USER:
		securityLevel, err := token.CheckUserPin(pin)
		if err != nil {
			return err
		}
		token.securityLevel = securityLevel
	default:
		return NewError("Token.Login", "bad userType", CKR_USER_TYPE_INVALID)
	}
	token.loggedIn = true
	return nil
}

// Logs out from the token.
func (token *Token) Logout() {
	token.securityLevel = Public
	token.loggedIn = false
}

// Adds a cryptoObject to the token, assigning its handle.
func (token *Token) AddObject(object *CryptoObject) ObjectHandle {
	token.nextHandle++
	object.Handle = token.nextHandle
	token.Objects[object.Handle] = object
	return object.Handle
}

// RestoreObject re-registers a persisted object under its stored handle.
func (token *Token) RestoreObject(object *CryptoObject) {
	if object.Handle > token.nextHandle {
		token.nextHandle = object.Handle
	}
	token.Objects[object.Handle] = object
}

// Returns an object that uses the handle provided.
func (token *Token) GetObject(handle ObjectHandle) (*CryptoObject, error) {
	object, ok := token.Objects[handle]
	if !ok {
		return nil, NewError("Token.GetObject", "object not found", CKR_OBJECT_HANDLE_INVALID)
	}
	return object, nil
}

func (token *Token) DeleteObject(handle ObjectHandle) error {
	if _, ok := token.Objects[handle]; !ok {
		return NewError("Token.DeleteObject", "object not found", CKR_OBJECT_HANDLE_INVALID)
	}
	delete(token.Objects, handle)
	return nil
}

// Copies the login state of a token
func (token *Token) CopyState(token2 *Token) {
	token.Pin = token2.Pin
	token.securityLevel = token2.securityLevel
	token.loggedIn = token2.loggedIn
	token.SoPin = token2.SoPin
}

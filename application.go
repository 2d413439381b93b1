package sks

import (
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/niclabs/sks/objects"
	"github.com/niclabs/sks/storage"
	"github.com/niclabs/sks/tee"
	"github.com/niclabs/sks/tee/soft"
)

// Application ties the slots to the provider, the template validator and
// the persistent object store.
type Application struct {
	Database  storage.TokenStorage
	Provider  tee.Provider
	Validator Validator
	Slots     []*Slot
	Config    *Config
	Log       *zap.Logger
}

// NewApplication wires an engine from the configuration file. A nil
// provider selects the software one, a nil logger disables logging.
func NewApplication(config *Config, provider tee.Provider, logger *zap.Logger) (*Application, error) {
	who := "NewApplication"
	if config == nil {
		var err error
		config, err = GetConfig()
		if err != nil {
			return nil, err
		}
	}
	if provider == nil {
		provider = soft.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := storage.NewDatabase(config.Criptoki.DatabaseType)
	if err != nil {
		return nil, objects.NewError(who, err.Error(), objects.CKR_DEVICE_ERROR)
	}
	if err := db.InitStorage(); err != nil {
		return nil, objects.NewError(who, err.Error(), objects.CKR_DEVICE_ERROR)
	}

	app := &Application{
		Database:  db,
		Provider:  provider,
		Validator: DefaultValidator{},
		Slots:     make([]*Slot, len(config.Criptoki.Slots)),
		Config:    config,
		Log:       logger,
	}
	for i, slotConf := range config.Criptoki.Slots {
		slot := &Slot{
			ID:          SlotID(i),
			Application: app,
			Sessions:    make(Sessions),
		}
		token, err := db.GetToken(slotConf.Label)
		if errors.Is(err, sql.ErrNoRows) {
			token, err = objects.NewToken(slotConf.Label, slotConf.UserPin, slotConf.SoPin)
			if err == nil {
				err = db.SaveToken(token)
			}
			if err == nil {
				logger.Info("token initialized", zap.String("label", slotConf.Label))
			}
		}
		if err != nil {
			return nil, objects.NewError(who, err.Error(), objects.CKR_DEVICE_ERROR)
		}
		slot.InsertToken(token)
		app.Slots[i] = slot
		logger.Debug("slot ready", zap.Uint32("slot", uint32(slot.ID)), zap.String("label", token.Label))
	}
	return app, nil
}

func (app *Application) GetSessionSlot(handle SessionHandle) (*Slot, error) {
	for _, slot := range app.Slots {
		if slot.HasSession(handle) {
			return slot, nil
		}
	}
	return nil, objects.NewError("Application.GetSessionSlot", "session not found", objects.CKR_SESSION_HANDLE_INVALID)
}

func (app *Application) GetSession(handle SessionHandle) (*Session, error) {
	slot, err := app.GetSessionSlot(handle)
	if err != nil {
		return nil, err
	}
	return slot.GetSession(handle)
}

func (app *Application) GetSlot(id SlotID) (*Slot, error) {
	if int(id) >= len(app.Slots) {
		return nil, objects.NewError("Application.GetSlot", "index out of bounds", objects.CKR_SLOT_ID_INVALID)
	}
	return app.Slots[int(id)], nil
}

// Close releases every open session and the storage connection.
func (app *Application) Close() error {
	for _, slot := range app.Slots {
		slot.CloseAllSessions()
	}
	return app.Database.CloseStorage()
}

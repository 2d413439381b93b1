package sks

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Criptoki CriptokiConfig
	LogLevel string
}

type CriptokiConfig struct {
	ManufacturerID  string
	Model           string
	Description     string
	VersionMajor    uint16
	VersionMinor    uint16
	SerialNumber    string
	MinPinLength    uint8
	MaxPinLength    uint8
	MaxSessionCount uint16
	DatabaseType    string
	Slots           []*SlotsConfig
}

type SlotsConfig struct {
	Label   string
	UserPin string
	SoPin   string
}

// GetConfig reads the configuration file from the usual locations.
func GetConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.AddConfigPath("/etc/sks/")
	viper.AddConfigPath("$HOME/.sks")
	viper.AddConfigPath("./")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config file not found! %v", err)
	}
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ammawel/cul_bridge/pkg/pathing"
	"github.com/ammawel/cul_bridge/pkg/session"
	"github.com/ammawel/cul_bridge/pkg/transport"
)

var (
	ActiveBridgeConfig  *BridgeConfig
	ActiveMonitorConfig *MonitorConfig
)

func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		ConnectionMode:    string(transport.KindSerial),
		SerialDevice:      "/dev/ttyACM0",
		Baudrate:          9600,
		InitCmd:           "X21",
		VersionProbe:      true,
		SettleDelayMs:     500,
		ProbeDelayMs:      200,
		ReconnectDelaySec: 30,
		AutoReconnect:     true,
		RSSI:              true,
		ListenAddress:     "0.0.0.0",
		ListenPort:        9040,
		MQTTBroker:        "tcp://localhost:1883",
		MQTTTopicPrefix:   "cul",
		RawRetentionDays:  30,
		LogLevel:          "info",
	}
}

func LoadBridgeConfig() error {
	cfg, err := LoadBridgeConfigFile(filepath.Join(pathing.GetConfigDir(), "cul_bridge.toml"))
	if err != nil {
		return err
	}
	ActiveBridgeConfig = cfg
	return nil
}

// LoadBridgeConfigFile reads path, writing the defaults there first if
// the file does not exist, then applies CUL_* environment overrides.
func LoadBridgeConfigFile(path string) (*BridgeConfig, error) {
	cfg := DefaultBridgeConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadMonitorConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "cul_monitor.toml")

	cfg := &MonitorConfig{BridgeHost: "localhost:9040"}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeDefaults(configPath, cfg); err != nil {
			return err
		}
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return fmt.Errorf("decode %s: %w", configPath, err)
	}
	if v := os.Getenv("CUL_BRIDGE_HOST"); v != "" {
		cfg.BridgeHost = v
	}
	ActiveMonitorConfig = cfg
	return nil
}

func writeDefaults(path string, cfg any) error {
	cfgFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create default config: %w", err)
	}
	defer cfgFile.Close()
	if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func (c *BridgeConfig) applyEnv() error {
	str := map[string]*string{
		"CUL_CONNECTION_MODE": &c.ConnectionMode,
		"CUL_SERIAL_DEVICE":   &c.SerialDevice,
		"CUL_TCP_ADDRESS":     &c.TCPAddress,
		"CUL_DATABASE_PATH":   &c.DatabasePath,
		"CUL_ROLES_FILE":      &c.RolesFile,
		"CUL_MQTT_BROKER":     &c.MQTTBroker,
		"CUL_MQTT_USER":       &c.MQTTUser,
		"CUL_MQTT_PASS":       &c.MQTTPass,
		"CUL_LOG_LEVEL":       &c.LogLevel,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("CUL_BAUDRATE"); v != "" {
		rate, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("CUL_BAUDRATE: %w", err)
		}
		c.Baudrate = uint(rate)
	}
	if v := os.Getenv("CUL_LISTEN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CUL_LISTEN_PORT: %w", err)
		}
		c.ListenPort = port
	}
	if v := os.Getenv("CUL_MQTT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CUL_MQTT_ENABLED: %w", err)
		}
		c.MQTTEnabled = enabled
	}
	return nil
}

// Validate reports configuration errors that must stop startup before
// any connection attempt.
func (c *BridgeConfig) Validate() error {
	switch transport.Kind(c.ConnectionMode) {
	case transport.KindSerial:
		if c.SerialDevice == "" {
			return ErrNoSerialDevice
		}
	case transport.KindStream:
		if c.TCPAddress == "" {
			return ErrNoTCPAddress
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConnectionMode, c.ConnectionMode)
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidListenPort, c.ListenPort)
	}
	if c.MQTTEnabled && c.MQTTBroker == "" {
		return ErrMQTTBrokerMissing
	}
	return nil
}

// Dialer builds the transport for the configured connection mode.
func (c *BridgeConfig) Dialer() (transport.Dialer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if transport.Kind(c.ConnectionMode) == transport.KindStream {
		return transport.NewTCPDialer(c.TCPAddress), nil
	}
	return transport.NewSerialDialer(c.SerialDevice, c.Baudrate), nil
}

func (c *BridgeConfig) SessionConfig() session.Config {
	return session.Config{
		InitCmd:        c.InitCmd,
		VersionProbe:   c.VersionProbe,
		SettleDelay:    time.Duration(c.SettleDelayMs) * time.Millisecond,
		ProbeDelay:     time.Duration(c.ProbeDelayMs) * time.Millisecond,
		ReconnectDelay: time.Duration(c.ReconnectDelaySec) * time.Second,
		AutoReconnect:  c.AutoReconnect,
		RSSI:           c.RSSI,
	}
}

func (c *BridgeConfig) ObjectDbPath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return pathing.GetObjectDbPath()
}

func (c *BridgeConfig) RolesPath() string {
	if c.RolesFile != "" {
		return c.RolesFile
	}
	return pathing.GetRolesPath()
}

func (c *BridgeConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}

func (c *BridgeConfig) RawRetention() time.Duration {
	return time.Duration(c.RawRetentionDays) * 24 * time.Hour
}

package config

import "errors"

var (
	ErrNoSerialDevice        = errors.New("no serial device configured")
	ErrNoTCPAddress          = errors.New("no tcp address configured")
	ErrUnknownConnectionMode = errors.New("unknown connection mode")
	ErrInvalidListenPort     = errors.New("invalid listen port")
	ErrMQTTBrokerMissing     = errors.New("mqtt enabled without broker")
)

type BridgeConfig struct {
	// "serial" or "tcp"
	ConnectionMode string `toml:"connection_mode"`
	SerialDevice   string `toml:"serial_device"`
	Baudrate       uint   `toml:"baudrate"`
	// host:port of a ser2net or CUNO style network CUL
	TCPAddress string `toml:"tcp_address"`

	InitCmd           string `toml:"init_cmd"`
	VersionProbe      bool   `toml:"version_probe"`
	SettleDelayMs     int    `toml:"settle_delay_ms"`
	ProbeDelayMs      int    `toml:"probe_delay_ms"`
	ReconnectDelaySec int    `toml:"reconnect_delay_sec"`
	AutoReconnect     bool   `toml:"auto_reconnect"`
	RSSI              bool   `toml:"rssi"`

	// Empty means the default under the data directory.
	DatabasePath string `toml:"database_path"`
	RolesFile    string `toml:"roles_file"`

	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`

	MQTTEnabled     bool   `toml:"mqtt_enabled"`
	MQTTBroker      string `toml:"mqtt_broker"`
	MQTTUser        string `toml:"mqtt_user"`
	MQTTPass        string `toml:"mqtt_pass"`
	MQTTTopicPrefix string `toml:"mqtt_topic_prefix"`

	// 0 keeps raw telegrams forever.
	RawRetentionDays int    `toml:"raw_retention_days"`
	LogLevel         string `toml:"log_level"`
}

type MonitorConfig struct {
	BridgeHost string `toml:"bridge_host"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

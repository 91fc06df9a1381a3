package config

import "time"

type Config struct {
	AP       AP       `yaml:"ap"`
	Portal   Portal   `yaml:"portal"`
	Firewall Firewall `yaml:"firewall"`
	DNS      DNS      `yaml:"dns"`
	MDNS     MDNS     `yaml:"mdns"`
	Redis    Redis    `yaml:"redis"`
	Audit    Audit    `yaml:"audit"`
	Log      Log      `yaml:"log"`
}

type AP struct {
	SSID           string        `yaml:"ssid"`
	Force          bool          `yaml:"force"`
	AddressTimeout time.Duration `yaml:"address_timeout"`
}

type Portal struct {
	Port            int           `yaml:"port"`
	Body            string        `yaml:"body"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Firewall struct {
	Rollback      bool `yaml:"rollback"`
	CleanupOnExit bool `yaml:"cleanup_on_exit"`
}

type DNS struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	TTL     uint32 `yaml:"ttl"`
}

type MDNS struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
}

type Redis struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	AuthRef  string        `yaml:"auth_ref"`
	VisitTTL time.Duration `yaml:"visit_ttl"`
}

type Audit struct {
	Enabled   bool   `yaml:"enabled"`
	SecretRef string `yaml:"secret_ref"`
}

type Log struct {
	Level string `yaml:"level"`
}

package main

import (
	"crypto/tls"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ansel1/merry"
	"github.com/gemalto/asn1stream"
	"github.com/gemalto/flume"
)

type fileConfig struct {
	Address        string `toml:"address"`
	StripSequence  bool   `toml:"strip_sequence"`
	ReadBufferSize int    `toml:"read_buffer_size"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
	LogLevel       string `toml:"log_level"`
	Development    bool   `toml:"development"`
}

type config struct {
	Address        string
	StripSequence  bool
	ReadBufferSize int
	// TLSCert and TLSKey are PEM files.  The key defaults to the cert file.
	TLSCert     string
	TLSKey      string
	LogLevel    string
	Development bool
}

func defaultConfig() config {
	return config{
		Address:        "0.0.0.0:7070",
		ReadBufferSize: asn1stream.DefaultReadBufferSize,
		LogLevel:       "info",
	}
}

// loadConfig overrides cfg with the keys defined in the TOML file at path.
func loadConfig(path string, cfg *config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return merry.Prependf(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return merry.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("strip_sequence") {
		cfg.StripSequence = raw.StripSequence
	}
	if meta.IsDefined("read_buffer_size") {
		if raw.ReadBufferSize <= 0 {
			return merry.Errorf("read_buffer_size must be positive, was %d", raw.ReadBufferSize)
		}
		cfg.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("tls_cert") {
		cfg.TLSCert = strings.TrimSpace(raw.TLSCert)
	}
	if meta.IsDefined("tls_key") {
		cfg.TLSKey = strings.TrimSpace(raw.TLSKey)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("development") {
		cfg.Development = raw.Development
	}
	return nil
}

func (c *config) level() (flume.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "dbg":
		return flume.DebugLevel, nil
	case "info", "inf", "":
		return flume.InfoLevel, nil
	case "error", "err":
		return flume.ErrorLevel, nil
	}
	return flume.InfoLevel, merry.Errorf("invalid log level %q", c.LogLevel)
}

// tlsConfig returns nil if no certificate is configured.
func (c *config) tlsConfig() (*tls.Config, error) {
	if c.TLSCert == "" {
		return nil, nil
	}
	key := c.TLSKey
	if key == "" {
		key = c.TLSCert
	}
	cert, err := tls.LoadX509KeyPair(c.TLSCert, key)
	if err != nil {
		return nil, merry.Prepend(err, "loading TLS certificate")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (c *config) options() *asn1stream.Options {
	return &asn1stream.Options{
		StripSequence:  c.StripSequence,
		ReadBufferSize: c.ReadBufferSize,
	}
}

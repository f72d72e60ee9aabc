package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gemalto/asn1stream"
	"github.com/gemalto/flume"
)

var log = flume.New("berserver")

func main() {
	flag.Usage = func() {
		s := `berserver - BER stream listener

Usage:  berserver [options]

Accepts TCP (or TLS) connections, decodes the BER stream each client
sends, and logs every decoded value.  Options are read from the TOML
file given with -config, and flags override it.

Config keys:

    address          = "0.0.0.0:7070"
    strip_sequence   = false
    read_buffer_size = 4096
    tls_cert         = "server.pem"
    tls_key          = "server.key"
    log_level        = "info"    # debug|info|error
    development      = false
`
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), s)
		flag.PrintDefaults()
	}

	cfg := defaultConfig()

	var configPath string
	var flags config
	flag.StringVar(&configPath, "config", "", "TOML config file")
	flag.StringVar(&flags.Address, "addr", cfg.Address, "listen address")
	flag.BoolVar(&flags.StripSequence, "strip", cfg.StripSequence, "log the outermost sequence as begin/end markers")
	flag.IntVar(&flags.ReadBufferSize, "buffer", cfg.ReadBufferSize, "read buffer size")
	flag.StringVar(&flags.TLSCert, "cert", "", "TLS certificate PEM file")
	flag.StringVar(&flags.TLSKey, "key", "", "TLS key PEM file, defaults to the certificate file")
	flag.StringVar(&flags.LogLevel, "log", cfg.LogLevel, "log level: debug|info|error")
	flag.BoolVar(&flags.Development, "dev", cfg.Development, "development logging")
	flag.Parse()

	if configPath != "" {
		if err := loadConfig(configPath, &cfg); err != nil {
			fail("error loading config", err)
		}
	}

	// flags given on the command line win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Address = flags.Address
		case "strip":
			cfg.StripSequence = flags.StripSequence
		case "buffer":
			cfg.ReadBufferSize = flags.ReadBufferSize
		case "cert":
			cfg.TLSCert = flags.TLSCert
		case "key":
			cfg.TLSKey = flags.TLSKey
		case "log":
			cfg.LogLevel = flags.LogLevel
		case "dev":
			cfg.Development = flags.Development
		}
	})

	level, err := cfg.level()
	if err != nil {
		fail("invalid config", err)
	}
	if err := flume.Configure(flume.Config{
		Development:  cfg.Development,
		DefaultLevel: level,
	}); err != nil {
		fail("error configuring logging", err)
	}

	tlsConf, err := cfg.tlsConfig()
	if err != nil {
		fail("invalid config", err)
	}

	srv := &asn1stream.Server{
		Handler:   asn1stream.LogHandler,
		Options:   cfg.options(),
		TLSConfig: tlsConf,
	}

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		log.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Info("graceful shutdown failed, closing connections", "err", err)
			_ = srv.Close()
		}
	}()

	log.Info("listening", "addr", cfg.Address, "tls", tlsConf != nil, "strip", cfg.StripSequence)
	if err := srv.ListenAndServe(cfg.Address); err != nil && err != asn1stream.ErrServerClosed {
		fail("server failed", err)
	}
}

func fail(msg string, err error) {
	_, _ = fmt.Fprintln(os.Stderr, msg+":", err)
	os.Exit(1)
}

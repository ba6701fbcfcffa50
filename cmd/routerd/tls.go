package main

import (
	"crypto/tls"
	"fmt"

	"github.com/obsrouter/routercore/internal/routerconfig"
)

// tlsServerConfig wraps the *tls.Config built from a routerconfig.TLSConfig
// cert/key pair, for the TCP acceptor's optional TLS termination.
type tlsServerConfig struct {
	config *tls.Config
}

func loadTLSConfig(cfg *routerconfig.TLSConfig) (*tlsServerConfig, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("routerd: load TLS keypair: %w", err)
	}
	return &tlsServerConfig{config: &tls.Config{Certificates: []tls.Certificate{cert}}}, nil
}

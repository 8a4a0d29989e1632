// Package logging provides structured logging for KeyRhythm.
//
// It wraps log/slog so every record carries the service name and build
// version, and so the output destination and format come from config.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "/var/log/keyrhythm/core.log"
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, version)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	logger.Info("starting service", "port", cfg.API.Port)
//
// # Security
//
// Never log passwords, credential hashes, tokens, or raw timing vectors.
// Log a username and an attempt outcome, not the material that was checked.
package logging

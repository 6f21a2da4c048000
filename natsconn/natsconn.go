// Package natsconn builds the service's NATS connection from configuration.
package natsconn

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	natsjwt "github.com/nats-io/jwt/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
)

// DefaultName is the client name reported to the server.
const DefaultName = "mcaccounts"

// Config holds NATS connection settings.
type Config struct {
	// URL is the NATS server URL. Overridden by the NATS_URL environment variable.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Credentials is the path to a .creds file.
	// Mutually exclusive with Nkey.
	Credentials string `json:"credentials,omitempty" yaml:"credentials,omitempty"`

	// Nkey is the path to an nkey seed file.
	// Mutually exclusive with Credentials.
	Nkey string `json:"nkey,omitempty" yaml:"nkey,omitempty"`

	// Name is the connection name. Default: "mcaccounts".
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// ReconnectWait as a duration string. Default: "2s".
	ReconnectWait string `json:"reconnectWait,omitempty" yaml:"reconnectWait,omitempty"`
}

// Validate fills defaults and checks the authentication settings.
func (c *Config) Validate() error {
	if c.Credentials != "" && c.Nkey != "" {
		return errors.New("nats.credentials and nats.nkey are mutually exclusive")
	}
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		c.URL = url
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.ReconnectWait != "" {
		if _, err := time.ParseDuration(c.ReconnectWait); err != nil {
			return fmt.Errorf("nats.reconnectWait: %w", err)
		}
	}
	return nil
}

func (c *Config) reconnectWait() time.Duration {
	d, err := time.ParseDuration(c.ReconnectWait)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// Options builds the connection options, validating any credentials on disk first.
func Options(cfg Config, logger *slog.Logger) ([]nats.Option, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.reconnectWait()),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Debug("nats_connection_closed")
		}),
	}

	switch {
	case cfg.Credentials != "":
		info, err := InspectCredentials(cfg.Credentials)
		if err != nil {
			return nil, err
		}
		logger.Info("nats_credentials_loaded", "user", info.Name, "public_key", info.PublicKey, "expires", info.Expires)
		opts = append(opts, nats.UserCredentials(cfg.Credentials))
	case cfg.Nkey != "":
		pub, err := NkeyPublicKey(cfg.Nkey)
		if err != nil {
			return nil, err
		}
		opt, err := nats.NkeyOptionFromSeed(cfg.Nkey)
		if err != nil {
			return nil, fmt.Errorf("loading nkey from %s: %w", cfg.Nkey, err)
		}
		logger.Info("nats_nkey_loaded", "public_key", pub)
		opts = append(opts, opt)
	}

	return opts, nil
}

// Connect validates cfg and connects.
func Connect(cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := Options(cfg, logger)
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return nc, nil
}

// CredentialsInfo describes the user JWT inside a .creds file.
type CredentialsInfo struct {
	Name      string
	PublicKey string
	// Expires is zero when the JWT does not expire.
	Expires time.Time
}

// InspectCredentials decodes the user JWT and seed of a .creds file and rejects expired credentials.
func InspectCredentials(path string) (CredentialsInfo, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return CredentialsInfo{}, fmt.Errorf("reading credentials file: %w", err)
	}

	token, err := natsjwt.ParseDecoratedJWT(contents)
	if err != nil {
		return CredentialsInfo{}, fmt.Errorf("parsing credentials JWT: %w", err)
	}
	claims, err := natsjwt.DecodeUserClaims(token)
	if err != nil {
		return CredentialsInfo{}, fmt.Errorf("decoding user claims: %w", err)
	}

	kp, err := natsjwt.ParseDecoratedUserNKey(contents)
	if err != nil {
		return CredentialsInfo{}, fmt.Errorf("parsing credentials seed: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return CredentialsInfo{}, fmt.Errorf("deriving public key: %w", err)
	}
	if pub != claims.Subject {
		return CredentialsInfo{}, fmt.Errorf("credentials seed does not match JWT subject %s", claims.Subject)
	}

	info := CredentialsInfo{Name: claims.Name, PublicKey: pub}
	if claims.Expires > 0 {
		info.Expires = time.Unix(claims.Expires, 0)
		if time.Now().After(info.Expires) {
			return info, fmt.Errorf("credentials for %q expired at %s", claims.Name, info.Expires.Format(time.RFC3339))
		}
	}
	return info, nil
}

// NkeyPublicKey reads a user seed file and returns the derived public key.
func NkeyPublicKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading nkey file: %w", err)
	}
	kp, err := nkeys.FromSeed([]byte(strings.TrimSpace(string(data))))
	if err != nil {
		return "", fmt.Errorf("parsing nkey seed: %w", err)
	}
	defer kp.Wipe()

	pub, err := kp.PublicKey()
	if err != nil {
		return "", fmt.Errorf("deriving public key: %w", err)
	}
	if !nkeys.IsValidPublicUserKey(pub) {
		return "", fmt.Errorf("nkey seed is not a user key")
	}
	return pub, nil
}

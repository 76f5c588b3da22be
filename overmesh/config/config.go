// Package config loads and validates tunnel edge configuration and builds
// the transform pipeline it describes.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/overmesh/overmesh/overmesh/transform"
	"github.com/overmesh/overmesh/overmesh/tunnel"

	// Cipher transforms register themselves for name/ID lookup.
	_ "github.com/overmesh/overmesh/overmesh/transform/aescbc"
	_ "github.com/overmesh/overmesh/overmesh/transform/cc20"
	_ "github.com/overmesh/overmesh/overmesh/transform/lzpack"
)

var (
	ErrMissingSecret     = errors.New("config: cipher requires a secret")
	ErrUnknownCipher     = errors.New("config: unknown cipher")
	ErrUnknownCompressor = errors.New("config: unknown compression")
)

// Config describes one tunnel edge. Both peers must agree on secret, cipher
// and compression out of band; the wire carries no negotiation.
type Config struct {
	// Secret is the pre-shared secret, any length. Longer secrets select
	// stronger AES variants (>=24 bytes AES-192, >=32 bytes AES-256).
	Secret string `yaml:"secret"`

	// Cipher names the encryption transform: "aes", "cc20" or "null".
	// Defaults to "aes".
	Cipher string `yaml:"cipher"`

	// Compression names the compression transform: "lz4" or "none".
	// Defaults to "none".
	Compression string `yaml:"compression"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML config bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Cipher == "" {
		c.Cipher = "aes"
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
}

// Validate checks transform names and the secret requirement. Running an
// encrypting transform with an empty secret is a misconfiguration, not a
// weak-but-working tunnel.
func (c *Config) Validate() error {
	c.applyDefaults()

	cipherID, ok := transform.Lookup(c.Cipher)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCipher, c.Cipher)
	}
	if cipherID != transform.IDNull && c.Secret == "" {
		return ErrMissingSecret
	}
	if c.Compression != "none" {
		if _, ok := transform.Lookup(c.Compression); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCompressor, c.Compression)
		}
	}
	return nil
}

// Build validates the config and constructs the described pipeline. logger
// may be nil.
func (c *Config) Build(logger *logrus.Logger) (*tunnel.Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cipherID, _ := transform.Lookup(c.Cipher)
	cipher, err := transform.New(cipherID, []byte(c.Secret))
	if err != nil {
		return nil, fmt.Errorf("config: build cipher: %w", err)
	}

	var comp transform.Transform
	if c.Compression != "none" {
		compID, _ := transform.Lookup(c.Compression)
		comp, err = transform.New(compID, nil)
		if err != nil {
			_ = cipher.Close()
			return nil, fmt.Errorf("config: build compression: %w", err)
		}
	}

	return tunnel.New(cipher, comp, logger), nil
}

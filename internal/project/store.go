package project

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/dosanma1/zonke-cli/pkg/xos"
)

// ErrConcurrentUpdate is returned when the config file changed between
// being read and being written back.
var ErrConcurrentUpdate = errors.New("config file was modified concurrently")

// ErrNotInitialized is returned when no config file exists yet.
var ErrNotInitialized = errors.New("config file does not exist. Run `zonke init` to create it")

// Store reads and writes one config file. Updates are compare-and-swap:
// a write only lands if the file is unchanged since it was read.
type Store struct {
	path string
}

// NewStore returns a store for the config file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the config file is present.
func (s *Store) Exists() bool {
	return xos.Exists(s.path)
}

// Load reads and validates the config.
func (s *Store) Load() (*Config, error) {
	cfg, _, err := s.read()
	return cfg, err
}

// Create writes a new config file and lists it in the sibling .gitignore.
// It fails if the file already exists.
func (s *Store) Create(cfg *Config) error {
	if s.Exists() {
		return fmt.Errorf("config file %s already exists", s.path)
	}
	if err := s.write(cfg); err != nil {
		return err
	}
	return AppendGitignore(filepath.Dir(s.path), filepath.Base(s.path))
}

// Update loads the config, applies fn and writes the result back if the
// file was not modified in the meantime. Nothing is written when fn fails.
func (s *Store) Update(fn func(*Config) error) error {
	cfg, fingerprint, err := s.read()
	if err != nil {
		return err
	}

	if err := fn(cfg); err != nil {
		return err
	}

	current, err := s.fingerprint()
	if err != nil {
		return err
	}
	if current != fingerprint {
		return ErrConcurrentUpdate
	}

	return s.write(cfg)
}

func (s *Store) read() (*Config, [32]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, [32]byte{}, ErrNotInitialized
		}
		return nil, [32]byte{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, [32]byte{}, err
	}
	return cfg, blake3.Sum256(data), nil
}

func (s *Store) fingerprint() ([32]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to read config: %w", err)
	}
	return blake3.Sum256(data), nil
}

func (s *Store) write(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}

	if err := xos.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// AppendGitignore adds entry to dir/.gitignore unless already listed.
func AppendGitignore(dir, entry string) error {
	path := filepath.Join(dir, ".gitignore")

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read .gitignore: %w", err)
	}

	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(entry + "\n")

	if err := xos.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to update .gitignore: %w", err)
	}
	return nil
}

package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/dosanma1/zonke-cli/pkg/xos"
)

// CredentialsFile is the default credentials file name.
const CredentialsFile = ".env.zonke"

// Environment variables holding credentials. They take precedence over
// the credentials file.
const (
	EnvAPIKey      = "ZONKE_API_KEY"
	EnvAPIToken    = "ZONKE_API_TOKEN"
	EnvAPIEndpoint = "ZONKE_API_ENDPOINT"
)

// ErrNoCredentials is returned when no API key or token is configured.
var ErrNoCredentials = errors.New("credentials file does not exist. Run `zonke init` to create it")

// Credentials authenticate against the control plane.
type Credentials struct {
	APIKey      string
	APIToken    string
	APIEndpoint string
}

// LoadCredentials reads path and overlays the process environment.
func LoadCredentials(path string) (*Credentials, error) {
	values := map[string]string{}
	if xos.Exists(path) {
		read, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials: %w", err)
		}
		values = read
	}

	for _, key := range []string{EnvAPIKey, EnvAPIToken, EnvAPIEndpoint} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			values[key] = v
		}
	}

	creds := &Credentials{
		APIKey:      values[EnvAPIKey],
		APIToken:    values[EnvAPIToken],
		APIEndpoint: values[EnvAPIEndpoint],
	}
	if creds.APIKey == "" || creds.APIToken == "" {
		return nil, ErrNoCredentials
	}
	return creds, nil
}

// SaveCredentials writes creds to path, readable only by the owner, and
// lists the file in the sibling .gitignore.
func SaveCredentials(path string, creds Credentials) error {
	content, err := godotenv.Marshal(map[string]string{
		EnvAPIKey:      creds.APIKey,
		EnvAPIToken:    creds.APIToken,
		EnvAPIEndpoint: creds.APIEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	if err := xos.WriteFile(path, []byte(content+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	return AppendGitignore(filepath.Dir(path), filepath.Base(path))
}

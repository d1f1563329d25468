package kraken

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrMissingCredentials = errors.New("missing credentials")

// Credentials for the private REST API. The secret stays base64-encoded as
// issued; it is only decoded at signing time.
type Credentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

func (c Credentials) Empty() bool {
	return c.Key == "" || c.Secret == ""
}

// LoadCredentialsFile reads a json file of the form
// {"key": "...", "secret": "..."}.
func LoadCredentialsFile(path string) (Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("could not read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Credentials{}, fmt.Errorf("could not parse credentials file %s: %w", path, err)
	}

	if creds.Empty() {
		return Credentials{}, fmt.Errorf("credentials file %s: %w", path, ErrMissingCredentials)
	}

	return creds, nil
}

// CredentialsFromEnv reads KRAKEN_API_KEY and KRAKEN_API_SECRET.
func CredentialsFromEnv() Credentials {
	return Credentials{
		Key:    os.Getenv("KRAKEN_API_KEY"),
		Secret: os.Getenv("KRAKEN_API_SECRET"),
	}
}

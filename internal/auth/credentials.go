package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrCredentialRead wraps any failure to read or parse the service credential
// file. Callers surface it as a server failure and keep the previously loaded
// credential set intact.
var ErrCredentialRead = errors.New("credential read failed")

// LoadCredentials reads the credential file at path: a UTF-8 JSON object
// whose keys are opaque bearer tokens and whose values are service-client
// identity strings.
func LoadCredentials(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrCredentialRead, path, err)
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCredentialRead, path, err)
	}
	credentials := make(map[string]string, len(parsed))
	for token, identityName := range parsed {
		token = strings.TrimSpace(token)
		identityName = strings.TrimSpace(identityName)
		if token == "" {
			return nil, fmt.Errorf("%w: %s contains an empty token", ErrCredentialRead, path)
		}
		if identityName == "" {
			return nil, fmt.Errorf("%w: %s maps token to an empty identity", ErrCredentialRead, path)
		}
		credentials[token] = identityName
	}
	return credentials, nil
}

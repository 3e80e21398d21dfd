// Command gen-credentials creates or rotates service client tokens in the
// credential file consumed by the API server.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultTokenBytes = 32

func main() {
	var (
		filePath    string
		name        string
		tokenLength int
		remove      bool
	)

	flag.StringVar(&filePath, "file", "", "Path to the credential file (credentials.json)")
	flag.StringVar(&name, "name", "", "Identity of the service client")
	flag.IntVar(&tokenLength, "token-bytes", defaultTokenBytes, "Random bytes per generated token")
	flag.BoolVar(&remove, "remove", false, "Remove the named service client instead of issuing a token")
	flag.Parse()

	if strings.TrimSpace(filePath) == "" {
		fatalf("--file is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		fatalf("--name is required")
	}
	if tokenLength <= 0 {
		fatalf("--token-bytes must be positive")
	}

	creds, err := loadCredentialFile(filePath)
	if err != nil {
		fatalf("load credential file: %v", err)
	}

	// One token per identity: drop any existing entry before writing.
	replaced := false
	for token, identity := range creds {
		if identity == name {
			delete(creds, token)
			replaced = true
		}
	}

	if remove {
		if !replaced {
			fatalf("no service client named %q in %s", name, filePath)
		}
		if err := writeCredentialFile(filePath, creds); err != nil {
			fatalf("write credential file: %v", err)
		}
		fmt.Printf("Service client %q removed.\n", name)
		return
	}

	token, err := generateToken(tokenLength)
	if err != nil {
		fatalf("generate token: %v", err)
	}
	creds[token] = name

	if err := writeCredentialFile(filePath, creds); err != nil {
		fatalf("write credential file: %v", err)
	}

	state := "created"
	if replaced {
		state = "rotated"
	}
	fmt.Printf("Service client %q %s.\n", name, state)
	fmt.Printf("Token: %s\n", token)
	fmt.Println("The running server picks up the change on its next credential reload.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func loadCredentialFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}
	creds := make(map[string]string)
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return creds, nil
}

func writeCredentialFile(path string, creds map[string]string) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".credentials-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

package chatapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// TokenSource supplies the bearer credential attached to every backend
// request. Refresh is the external auth collaborator's job: implementations
// only hand back whatever is currently valid.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer credential.
type StaticToken string

func (t StaticToken) Token(_ context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", errors.New("no bearer token configured")
	}
	return string(t), nil
}

// FileToken reads the credential from a file on every call, so an external
// refresher can rotate the file without restarting the client.
type FileToken string

func (t FileToken) Token(_ context.Context) (string, error) {
	data, err := os.ReadFile(string(t))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", string(t))
	}
	return token, nil
}

package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// tokenFile is the on-disk layout written by the sign-in helper:
//
//	{"tokens": {"supabase": "<jwt>"}}
type tokenFile struct {
	Tokens map[string]string `json:"tokens"`
}

// FSSource reads tokens from a JSON file that an external sign-in flow keeps
// fresh. The file is re-read on every call.
type FSSource struct {
	Path string
	mu   sync.Mutex
}

func NewFSSource(path string) *FSSource {
	return &FSSource{Path: path}
}

func (f *FSSource) Token(ctx context.Context, template string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tf, err := readTokenFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return NormalizeToken(tf.Tokens[template]), nil
}

// Store writes token for template into the file, keeping other templates.
func (f *FSSource) Store(template, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return SaveToken(f.Path, template, token)
}

// SaveToken writes token for template into the token file at path, creating
// the file and its parent directory when missing.
func SaveToken(path, template, token string) error {
	if template == "" {
		return fmt.Errorf("template must not be empty")
	}
	if err := EnsureParentDir(path); err != nil {
		return err
	}

	tf, err := readTokenFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		tf = &tokenFile{}
	}
	if tf.Tokens == nil {
		tf.Tokens = make(map[string]string)
	}
	tf.Tokens[template] = NormalizeToken(token)

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func readTokenFile(path string) (*tokenFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &tf, nil
}

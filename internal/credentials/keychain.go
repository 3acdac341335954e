package credentials

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// KeychainSource reads tokens from the macOS login keychain, where the
// desktop sign-in helper stores one generic password per template:
//
//	security add-generic-password -s notebook-gateway -a supabase -w <jwt> -U
type KeychainSource struct {
	Service string
}

func NewKeychainSource(service string) *KeychainSource {
	if service == "" {
		service = "notebook-gateway"
	}
	return &KeychainSource{Service: service}
}

func (k *KeychainSource) Token(ctx context.Context, template string) (string, error) {
	cmd := exec.CommandContext(ctx, "security", "find-generic-password", "-s", k.Service, "-a", template, "-w")
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		// Exit status 44: the item could not be found.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return "", nil
		}
		return "", fmt.Errorf("failed to retrieve token from Keychain: %w", err)
	}
	return NormalizeToken(strings.TrimSpace(string(output))), nil
}

// Store replaces the keychain item for template.
func (k *KeychainSource) Store(template, token string) error {
	cmd := exec.Command("security", "add-generic-password", "-s", k.Service, "-a", template, "-w", NormalizeToken(token), "-U")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to update keychain: %w", err)
	}
	return nil
}

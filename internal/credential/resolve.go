package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissing is returned when no configured reference yields a value.
var ErrMissing = errors.New("credential not set")

// Resolve returns the secret behind ref. A "keyring:<key>" ref is read
// from the system keyring; anything else names an environment variable.
func Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrMissing
	}
	if key, ok := keyringKey(ref); ok {
		return Get(key)
	}
	v := strings.TrimSpace(os.Getenv(ref))
	if v == "" {
		return "", fmt.Errorf("environment variable %s: %w", ref, ErrMissing)
	}
	return v, nil
}

// Lookup tries each ref in order and returns the first value found.
// Empty refs are skipped. Errors other than ErrMissing stop the search.
func Lookup(refs ...string) (string, error) {
	var tried []string
	for _, ref := range refs {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		v, err := Resolve(ref)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrMissing) {
			return "", err
		}
		tried = append(tried, ref)
	}
	if len(tried) == 0 {
		return "", ErrMissing
	}
	return "", fmt.Errorf("none of %s is set: %w", strings.Join(tried, ", "), ErrMissing)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("checking %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

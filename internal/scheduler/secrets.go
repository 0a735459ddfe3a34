package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/joho/godotenv"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/recipe"
)

// SecretPrefix starts every environment variable holding an unattended sensitive value.
const SecretPrefix = "HARVEST_SECRET_"

// LoadEnv loads .env files into the process environment without overriding variables
// that are already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// SecretKey names the variable that supplies step (one-based) of recipeID, e.g.
// HARVEST_SECRET_FIRST_FEDERAL_2.
func SecretKey(recipeID string, step int) string {
	id := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, recipeID)
	return fmt.Sprintf("%s%s_%d", SecretPrefix, id, step)
}

// EnvSecrets answers sensitive requests from lookup (os.LookupEnv in production).
// A missing or empty value fails the playback.
func EnvSecrets(recipeID string, lookup func(string) (string, bool)) recipe.SensitiveInputFunc {
	return func(_ context.Context, req recipe.SensitiveRequest) (string, error) {
		key := SecretKey(recipeID, req.StepIndex+1)
		value, ok := lookup(key)
		if !ok || value == "" {
			return "", fmt.Errorf("%w: set %s for %q", common.ErrSensitiveInputMissing, key, req.Label)
		}
		return value, nil
	}
}

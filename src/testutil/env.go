package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethaccount/userop/src/utils"
	"github.com/joho/godotenv"
)

// GetEnv reads key after loading the project .env file, if there is one.
func GetEnv(key string) string {
	_ = godotenv.Load(filepath.Join(utils.FindProjectRoot(), ".env"))
	return os.Getenv(key)
}

// RequireEnv skips the test when key is unset.
func RequireEnv(t *testing.T, key string) string {
	t.Helper()

	value := GetEnv(key)
	if value == "" {
		t.Skipf("%s is not set", key)
	}
	return value
}

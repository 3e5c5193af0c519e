package utils

import (
	"fmt"
	"os"
	"runtime"

	"github.com/alpacanetworks/telemon/pkg/version"
)

func IsSuccessStatusCode(code int) bool {
	return code/100 == 2
}

func GetEnvOrDefault(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetUserAgent returns the default User-Agent for the named program.
func GetUserAgent(name string) string {
	return fmt.Sprintf("%s/%s (%s; %s)", name, version.Version, runtime.GOOS, runtime.GOARCH)
}

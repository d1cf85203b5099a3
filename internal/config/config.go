package config

import (
	"os"
	"sync"
)

var currentEnvironment = ""

const DefaultEnvironment = "development"
const DevelopmentEnvironment = "development"

// envOnce is used to ensure concurrent tests only pull the value once at startup. While it is
// mainly used for tests, it also ensures safely with the chance the value is overwritten during
// runtime.
var envOnce sync.Once

// GetCurrentEnvironment returns the configured deployment environment,
// defaulting to development for unknown values. The api binary uses it to
// pick console versus structured log output.
func GetCurrentEnvironment() string {
	envOnce.Do(func() {
		currentEnvironment = os.Getenv("environment")

		if currentEnvironment == "" {
			currentEnvironment = DefaultEnvironment
			return
		}

		for _, s := range []string{"staging", "production", "development"} {
			if currentEnvironment == s {
				currentEnvironment = s
				return
			}
		}

		currentEnvironment = DefaultEnvironment
	})

	return currentEnvironment
}

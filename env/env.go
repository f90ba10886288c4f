// Package env reads the runtime variables every deployed function is
// provisioned with: the application name, the deployment identifier, and
// the resource discovery storage backend.
package env

import (
	"fmt"
	"os"
)

// Variable names provisioned on every function's environment.
const (
	AppNameVar          = "DA_VINCI_APP_NAME"
	DeploymentIDVar     = "DA_VINCI_DEPLOYMENT_ID"
	DiscoveryStorageVar = "DA_VINCI_RESOURCE_DISCOVERY_STORAGE"

	// LogLevelVar is optional; empty means the deployment default.
	LogLevelVar = "LOG_LEVEL"
)

// requiredVars are validated by Load and Validate.
var requiredVars = []string{AppNameVar, DeploymentIDVar, DiscoveryStorageVar}

// Runtime is the resolved execution environment.
type Runtime struct {
	AppName          string
	DeploymentID     string
	DiscoveryStorage string
	LogLevel         string
}

// MissingVariableError reports a required environment variable that is not
// set.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("env: required variable %s is not set", e.Name)
}

// Validate checks that every required variable is present.
func Validate() error {
	for _, name := range requiredVars {
		if os.Getenv(name) == "" {
			return &MissingVariableError{Name: name}
		}
	}
	return nil
}

// Load validates and returns the runtime environment.
func Load() (*Runtime, error) {
	if err := Validate(); err != nil {
		return nil, err
	}
	return &Runtime{
		AppName:          os.Getenv(AppNameVar),
		DeploymentID:     os.Getenv(DeploymentIDVar),
		DiscoveryStorage: os.Getenv(DiscoveryStorageVar),
		LogLevel:         os.Getenv(LogLevelVar),
	}, nil
}

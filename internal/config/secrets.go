package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret returns the value of envName. When envName_FILE is set it
// wins, and the trimmed contents of that file are returned instead.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// Credentials are the basic-auth accounts of the HTTP API.
type Credentials struct {
	AdminUser    string
	AdminPass    string
	OperatorUser string
	OperatorPass string
}

// Enabled reports whether authentication is on. Admin credentials turn it on.
func (c Credentials) Enabled() bool {
	return c.AdminUser != "" && c.AdminPass != ""
}

// LoadCredentials resolves CURAFLOW_ADMIN_USER, CURAFLOW_ADMIN_PASS,
// CURAFLOW_OPERATOR_USER and CURAFLOW_OPERATOR_PASS.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	for _, s := range []struct {
		env string
		dst *string
	}{
		{"CURAFLOW_ADMIN_USER", &c.AdminUser},
		{"CURAFLOW_ADMIN_PASS", &c.AdminPass},
		{"CURAFLOW_OPERATOR_USER", &c.OperatorUser},
		{"CURAFLOW_OPERATOR_PASS", &c.OperatorPass},
	} {
		v, err := ResolveSecret(s.env)
		if err != nil {
			return Credentials{}, err
		}
		*s.dst = v
	}
	return c, nil
}

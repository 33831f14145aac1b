package instance

import (
	"os"

	"github.com/angelmondragon/marketplace-backend/pkg/env"
)

// EnvInstanceID overrides the detected instance identifier.
const EnvInstanceID = "MARKETPLACE_INSTANCE_ID"

// GetID returns the process instance identifier: the override, the Cloud
// Run revision, the host name, or "local".
func GetID() string {
	if id := env.FirstOf("", EnvInstanceID, "K_REVISION"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}

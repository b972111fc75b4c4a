// Package instance names the running process for logs and broker client ids.
package instance

import (
	"os"
	"strings"
)

// GetID returns SUPPORTDESK_INSTANCE_ID, then the platform dyno name, then
// the hostname, then "local".
func GetID() string {
	for _, key := range []string{"SUPPORTDESK_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}

// ClientID suffixes base with the instance id so replicas never share an id.
func ClientID(base string) string {
	id := GetID()
	if base == "" {
		return id
	}
	return base + "-" + id
}

package config

import "fmt"

// ConfigError reports settings that cannot work, such as cloud storage enabled
// without credentials or a storage unit.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

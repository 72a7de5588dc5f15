package ioc

import (
	"encoding/json"
	"fmt"
)

// DuplicatePolicy controls what happens when a name is registered twice in
// the same Registry.
type DuplicatePolicy int

const (
	// DuplicateError rejects the second registration with a RegistryError.
	DuplicateError DuplicatePolicy = iota

	// DuplicateWarn keeps the first registration and logs a warning.
	DuplicateWarn

	// DuplicateReplace overwrites the existing registration.
	DuplicateReplace
)

// String returns the string representation of the DuplicatePolicy.
func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateError:
		return "error"
	case DuplicateWarn:
		return "warn"
	case DuplicateReplace:
		return "replace"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// IsValid checks if the duplicate policy is valid.
func (p DuplicatePolicy) IsValid() bool {
	return p >= DuplicateError && p <= DuplicateReplace
}

// MarshalText implements encoding.TextMarshaler.
func (p DuplicatePolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *DuplicatePolicy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "error":
		*p = DuplicateError
	case "warn":
		*p = DuplicateWarn
	case "replace":
		*p = DuplicateReplace
	default:
		return PolicyError{Value: string(text)}
	}
	return nil
}

// StartupPolicy is the process-wide choice of how fatal a startup hook
// failure is treated.
type StartupPolicy int

const (
	// StartupStrict aborts startup on the first hook failure. Components
	// scheduled after the failing one never receive their hooks.
	StartupStrict StartupPolicy = iota

	// StartupWarn logs the failure and continues. The failed component is
	// left out of the ready set while all others complete normally.
	StartupWarn

	// StartupIgnore suppresses the failure entirely.
	StartupIgnore
)

// String returns the string representation of the StartupPolicy.
func (p StartupPolicy) String() string {
	switch p {
	case StartupStrict:
		return "strict"
	case StartupWarn:
		return "warn"
	case StartupIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// IsValid checks if the startup policy is valid.
func (p StartupPolicy) IsValid() bool {
	return p >= StartupStrict && p <= StartupIgnore
}

// MarshalText implements encoding.TextMarshaler.
func (p StartupPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *StartupPolicy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "strict":
		*p = StartupStrict
	case "warn":
		*p = StartupWarn
	case "ignore":
		*p = StartupIgnore
	default:
		return PolicyError{Value: string(text)}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p StartupPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *StartupPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	return p.UnmarshalText([]byte(s))
}

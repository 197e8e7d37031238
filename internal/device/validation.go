package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxIDLength   = 64
	idPattern     = `^[A-Za-z0-9][A-Za-z0-9_.:-]*$`
)

var idRegex = regexp.MustCompile(idPattern)

var validTypes map[Type]struct{}

func init() {
	validTypes = make(map[Type]struct{}, len(AllTypes()))
	for _, t := range AllTypes() {
		validTypes[t] = struct{}{}
	}
}

// ValidateDevice checks a device submitted to the inventory.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.Placeholder {
		return nil
	}
	return ValidateType(d.Type)
}

// ValidateID checks that an ID is short and uses only URL- and topic-safe characters.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidID, maxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q contains unsupported characters", ErrInvalidID, id)
	}
	return nil
}

// ValidateName checks that a name is present and not too long.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateType checks that a device type is one of the known types.
func ValidateType(t Type) error {
	if t == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidDeviceType)
	}
	if _, ok := validTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, t)
	}
	return nil
}

// GenerateID creates a new unique device ID.
func GenerateID() string {
	return uuid.New().String()
}

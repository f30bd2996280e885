// Package objects models the device/state hierarchy kept in the object
// store and defines the store boundary the bridge depends on.
package objects

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("object not found")

type ObjectType string

const (
	TypeDevice ObjectType = "device"
	TypeState  ObjectType = "state"
	TypeMeta   ObjectType = "meta"
)

// ValueType is the declared type of a state; it drives coercion.
type ValueType string

const (
	ValueBoolean ValueType = "boolean"
	ValueNumber  ValueType = "number"
	ValueString  ValueType = "string"
	ValueMixed   ValueType = "mixed"
)

type Common struct {
	Name  string    `json:"name"`
	Role  string    `json:"role,omitempty"`
	Type  ValueType `json:"type,omitempty"`
	Unit  string    `json:"unit,omitempty"`
	Read  bool      `json:"read"`
	Write bool      `json:"write"`
}

// Object is a device, state or meta entry. Native holds protocol-specific
// attributes captured when the entry was created.
type Object struct {
	ID     string         `json:"_id"`
	Type   ObjectType     `json:"type"`
	Common Common         `json:"common"`
	Native map[string]any `json:"native"`
}

// State is the current value of a state object.
type State struct {
	ID        string    `json:"id"`
	Val       any       `json:"val"`
	Ack       bool      `json:"ack"`
	Timestamp time.Time `json:"ts"`
}

// Store is the persistent object/state store boundary.
type Store interface {
	// GetObject returns ErrNotFound when id does not exist.
	GetObject(ctx context.Context, id string) (*Object, error)
	// CreateObjectIfAbsent stores obj under id unless id already exists.
	CreateObjectIfAbsent(ctx context.Context, id string, obj Object) (bool, error)
	// SetState writes val. ack is true for values reported by the
	// controller and false for operator requests.
	SetState(ctx context.Context, id string, val any, ack bool) error
	// GetState returns ErrNotFound when no value was ever written.
	GetState(ctx context.Context, id string) (*State, error)
	// ListObjects returns every object whose id starts with prefix.
	ListObjects(ctx context.Context, prefix string) ([]Object, error)
}

// Well-known ids.
const (
	IDConnection = "info.connection"
	IDRawData    = "info.rawData"
	IDVersion    = "info.version"
	IDMetaRoles  = "meta.roles"
)

func DeviceID(protocol, address string) string {
	return protocol + "." + address
}

func StateID(deviceID, field string) string {
	return deviceID + "." + field
}

// SplitStateID splits "{protocol}.{address}.{field}".
func SplitStateID(id string) (protocol, address, field string, ok bool) {
	parts := strings.Split(id, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

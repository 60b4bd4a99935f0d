// Package ids provides opaque, typed 128-bit identifiers for domain entities.
//
// Each id type is a distinct Go type over uuid.UUID so that, for example, a
// PeerId cannot be passed where a ClusterId is expected without an explicit
// conversion. All id types round-trip through JSON and SQL identically.
package ids

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// PeerId identifies a host agent. Once assigned, immutable.
type PeerId struct{ uuid.UUID }

// ClusterId identifies a cluster.
type ClusterId struct{ uuid.UUID }

// NetworkInterfaceId identifies a network interface owned by a peer.
type NetworkInterfaceId struct{ uuid.UUID }

// DeviceId identifies a device (typically an ECU) attached to a peer.
type DeviceId struct{ uuid.UUID }

// ExecutorId identifies an executor descriptor owned by a peer.
type ExecutorId struct{ uuid.UUID }

func NewPeerId() PeerId                       { return PeerId{uuid.New()} }
func NewClusterId() ClusterId                 { return ClusterId{uuid.New()} }
func NewNetworkInterfaceId() NetworkInterfaceId { return NetworkInterfaceId{uuid.New()} }
func NewDeviceId() DeviceId                   { return DeviceId{uuid.New()} }
func NewExecutorId() ExecutorId               { return ExecutorId{uuid.New()} }

func ParsePeerId(s string) (PeerId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PeerId{}, fmt.Errorf("parsing peer id %q: %w", s, err)
	}
	return PeerId{u}, nil
}

func ParseClusterId(s string) (ClusterId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ClusterId{}, fmt.Errorf("parsing cluster id %q: %w", s, err)
	}
	return ClusterId{u}, nil
}

func ParseNetworkInterfaceId(s string) (NetworkInterfaceId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NetworkInterfaceId{}, fmt.Errorf("parsing network interface id %q: %w", s, err)
	}
	return NetworkInterfaceId{u}, nil
}

func ParseDeviceId(s string) (DeviceId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DeviceId{}, fmt.Errorf("parsing device id %q: %w", s, err)
	}
	return DeviceId{u}, nil
}

func ParseExecutorId(s string) (ExecutorId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ExecutorId{}, fmt.Errorf("parsing executor id %q: %w", s, err)
	}
	return ExecutorId{u}, nil
}

func (id PeerId) String() string               { return id.UUID.String() }
func (id ClusterId) String() string             { return id.UUID.String() }
func (id NetworkInterfaceId) String() string    { return id.UUID.String() }
func (id DeviceId) String() string              { return id.UUID.String() }
func (id ExecutorId) String() string            { return id.UUID.String() }

func (id PeerId) MarshalText() ([]byte, error)  { return id.UUID.MarshalText() }
func (id *PeerId) UnmarshalText(b []byte) error { return id.UUID.UnmarshalText(b) }

func (id ClusterId) MarshalText() ([]byte, error)  { return id.UUID.MarshalText() }
func (id *ClusterId) UnmarshalText(b []byte) error { return id.UUID.UnmarshalText(b) }

func (id NetworkInterfaceId) MarshalText() ([]byte, error)  { return id.UUID.MarshalText() }
func (id *NetworkInterfaceId) UnmarshalText(b []byte) error { return id.UUID.UnmarshalText(b) }

func (id DeviceId) MarshalText() ([]byte, error)  { return id.UUID.MarshalText() }
func (id *DeviceId) UnmarshalText(b []byte) error { return id.UUID.UnmarshalText(b) }

func (id ExecutorId) MarshalText() ([]byte, error)  { return id.UUID.MarshalText() }
func (id *ExecutorId) UnmarshalText(b []byte) error { return id.UUID.UnmarshalText(b) }

// Value implements driver.Valuer so id types can be written directly as SQL parameters.
func (id PeerId) Value() (driver.Value, error) { return id.UUID.String(), nil }

func (id ClusterId) Value() (driver.Value, error) { return id.UUID.String(), nil }

func (id NetworkInterfaceId) Value() (driver.Value, error) { return id.UUID.String(), nil }

func (id DeviceId) Value() (driver.Value, error) { return id.UUID.String(), nil }

func (id ExecutorId) Value() (driver.Value, error) { return id.UUID.String(), nil }

// Scan implements sql.Scanner.
func (id *PeerId) Scan(src any) error { return scanUUID(&id.UUID, src) }
func (id *ClusterId) Scan(src any) error { return scanUUID(&id.UUID, src) }
func (id *NetworkInterfaceId) Scan(src any) error { return scanUUID(&id.UUID, src) }
func (id *DeviceId) Scan(src any) error { return scanUUID(&id.UUID, src) }
func (id *ExecutorId) Scan(src any) error { return scanUUID(&id.UUID, src) }

func scanUUID(dst *uuid.UUID, src any) error {
	switch v := src.(type) {
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		*dst = u
		return nil
	case []byte:
		u, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		*dst = u
		return nil
	case nil:
		*dst = uuid.UUID{}
		return nil
	default:
		return fmt.Errorf("ids: cannot scan %T into uuid", src)
	}
}

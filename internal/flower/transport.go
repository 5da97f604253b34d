package flower

import "context"

// Transport opens sessions to BLE peripherals. Implementations live in the
// ble package; tests use in-memory fakes.
type Transport interface {
	Connect(ctx context.Context, address string) (Session, error)
}

// Session is one open connection to a device. Callers must Close it on every
// path.
type Session interface {
	// Read returns the raw value at a characteristic value handle.
	Read(ctx context.Context, handle uint16) ([]byte, error)
	Close() error
}

package sequencer

import (
	"context"
	"sync"
)

// Conn is the exclusive handle to one physical bus, bound to a single
// link speed for the lifetime of a run. Never shared across runs.
type Conn struct {
	bus       string
	linkSpeed int
	driver    Driver

	mu     sync.Mutex
	closed bool
}

// Bus returns the bus identifier (port name).
func (c *Conn) Bus() string {
	return c.bus
}

// LinkSpeed returns the link speed the bus was opened at.
func (c *Conn) LinkSpeed() int {
	return c.linkSpeed
}

// BulkRead issues one grouped read transaction on this bus.
func (c *Conn) BulkRead(ctx context.Context, reqs []ReadRequest) (map[int][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &BusError{Bus: c.bus, Op: "bulk_read", Err: ErrConnClosed}
	}
	data, err := c.driver.BulkRead(ctx, reqs)
	if err != nil {
		return nil, &BusError{Bus: c.bus, Op: "bulk_read", Err: err}
	}
	return data, nil
}

// BulkWrite issues one grouped write transaction on this bus.
func (c *Conn) BulkWrite(ctx context.Context, reqs []WriteRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &BusError{Bus: c.bus, Op: "bulk_write", Err: ErrConnClosed}
	}
	if err := c.driver.BulkWrite(ctx, reqs); err != nil {
		return &BusError{Bus: c.bus, Op: "bulk_write", Err: err}
	}
	return nil
}

// Close releases the bus. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.driver.Close()
}

// Manager opens and tears down the bus connections for a run.
type Manager struct {
	factory DriverFactory

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewManager creates a manager that opens buses through the given factory.
func NewManager(factory DriverFactory) *Manager {
	return &Manager{factory: factory}
}

// OpenAll opens every distinct bus in the manifest at its declared link
// speed. All-or-nothing: if any bus fails to open, every connection
// already opened is closed and the error is returned. A run never
// proceeds with a partial set of buses.
func (m *Manager) OpenAll(manifest *Manifest) (map[string]*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns := make(map[string]*Conn)
	for bus, linkSpeed := range manifest.Buses() {
		driver, err := m.factory(bus, linkSpeed)
		if err != nil {
			for _, c := range conns {
				c.Close()
			}
			return nil, &BusError{Bus: bus, Op: "open", Err: err}
		}
		conns[bus] = &Conn{bus: bus, linkSpeed: linkSpeed, driver: driver}
	}

	m.conns = conns
	return conns, nil
}

// CloseAll closes every open connection. Idempotent and safe to call on
// every exit path.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		c.Close()
	}
	m.conns = nil
}

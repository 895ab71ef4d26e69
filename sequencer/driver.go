package sequencer

import "context"

// ReadRequest addresses one register on one actuator within a grouped
// read transaction.
type ReadRequest struct {
	ID  int
	Reg Register
}

// WriteRequest carries one register write within a grouped write
// transaction. Data length must equal Reg.Width.
type WriteRequest struct {
	ID   int
	Reg  Register
	Data []byte
}

// Driver is the boundary to the wire protocol for a single bus. The
// engine never frames packets itself; an implementation wraps a vendor
// SDK or protocol stack over the bus transport.
//
// BulkRead returns raw register bytes per actuator ID. An actuator
// missing from the result was not answered in the transaction; the caller
// decides whether that is fatal. A non-nil error means the whole
// transaction failed.
//
// Ping is not called by the engine itself; discovery and session-capture
// tooling uses it to enumerate a bus and learn device types.
type Driver interface {
	Ping(ctx context.Context, id int) (deviceType int, err error)
	BulkRead(ctx context.Context, reqs []ReadRequest) (map[int][]byte, error)
	BulkWrite(ctx context.Context, reqs []WriteRequest) error
	Close() error
}

// DriverFactory opens the driver for one bus at its declared link speed.
// Used by the connection manager at run start.
type DriverFactory func(bus string, linkSpeed int) (Driver, error)

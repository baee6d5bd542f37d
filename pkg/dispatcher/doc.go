// Package dispatcher serializes adapter operations across an isolation
// boundary.
//
// Each logical database handle is a connection identified by a
// ConnectionTag. Calls are stamped with monotonically increasing correlation
// ids and sent to the connection's boundary one at a time; responses must come
// back in request order, and a mismatch breaks the connection for good.
// Until the backend finishes its schema setup, calls are parked in a FIFO
// waiting queue and flushed in arrival order once the connection is ready.
package dispatcher

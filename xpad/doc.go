// Package xpad implements the client side of the XPAD acquisition server protocol.
//
// The server speaks a line oriented text protocol on a TCP socket. Every line
// starts with a marker byte that identifies its kind:
//
//   - '>' the server prompt, the server is ready for the next command.
//   - '!' an error message, kept as the connection's last error text.
//   - '#' a debug message, collected for the current exchange.
//   - '@' a progress ("timebar") update: "<done> <total>" and an optional quoted text.
//   - '*' a typed return value: a quoted string, "(null)", an integer or a double.
//
// Any other marker produces an Unknown line.
//
// Client is the command/response engine. Each exchange consumes a prompt,
// writes one command line and blocks until the typed return value arrives,
// routing the interleaved error, debug and progress lines to their handlers.
// Exchanges on a Client are serialized, so a response is always attributable
// to the command that precedes it.
//
// Bulk data uses two shapes. Frames and configuration blobs sent inline on the
// command socket are framed with a 4-byte little-endian size prefix (frames may
// carry two more 4-byte fields with rows and columns) and acknowledged with a
// single newline byte. The legacy data port shape has the client listen on an
// ephemeral port, announce it with "Port <n>" and read raw samples from the
// connection the server opens to it.
//
// Errors fall in three families: *ConnError for connection faults (the
// connection is closed), *ProtocolError for protocol violations (the command
// failed, the connection survives) and *ServerError for errors the server
// reported with its own message text.
package xpad

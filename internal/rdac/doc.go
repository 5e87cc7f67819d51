// Package rdac talks to an RDAC engine data acquisition unit over a serial
// link.
//
// The unit streams fixed-size binary messages:
//
//	AA | type | payload (big-endian, fixed size per type) | sum8(type..payload)
//
// Decode and Encode are pure; Connector owns the link, the frame buffer and
// the reconnect state machine.
package rdac

// Package connector holds the bookkeeping the RDAC and NMEA connectors have in
// common: lifecycle, link state tracking, reconnect backoff and rate-limited
// status reporting. The read loops themselves live with their protocols.
package connector

// Package nav reads NMEA 0183 sentences from a GPS/navigator serial port and
// turns the route sentences into time-to-destination records.
//
// Only two sentence types carry what the display needs:
//   - RMB: range and closing velocity to the destination waypoint, or a
//     trailing time-to-go field when the navigator appends one
//   - ZTG: time to go to the destination waypoint
//
// Every other sentence type is ignored without complaint.
package nav

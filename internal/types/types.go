// README: Shared value objects used across modules.
package types

// ID is an opaque entity identifier (UUID string form in persistence).
type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// README: Shared identifier and coordinate value objects used across modules.
package types

// ID identifies sessions, users and saved locations.
type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude" yaml:"latitude"`
	Lng float64 `json:"longitude" yaml:"longitude"`
}

// Package config handles configuration loading, parsing, and validation
// from defaults, an optional file, and MEDIAQ_ environment variables. It also
// hosts the range clamping shared by CLI flags and admin request bodies.
package config

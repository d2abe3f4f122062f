// Package logging wires log/slog for the milltrack services. Loggers carry
// a component attribute identifying the emitting service; construction is
// driven by the application config, never by ambient globals.
package logging

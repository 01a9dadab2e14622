// Package telemetry sets up the OpenTelemetry SDK for bundlekit.
// With telemetry disabled nothing is exported and the global providers stay
// noop, so reconciliation spans cost nothing.
package telemetry

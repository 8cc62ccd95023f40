// Package debug maintains debug-session state on top of the Debug Adapter
// Protocol client: session lifecycle, threads and stacks, breakpoints,
// execution control, and a typed event stream for consumers.
package debug

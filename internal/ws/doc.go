// Package ws exposes the host-facing bridge socket: WebSocket upgrade with
// origin enforcement, rate-limited command intake, and a per-connection
// bridge instance.
package ws

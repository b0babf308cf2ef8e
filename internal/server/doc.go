// Package server assembles the HTTP surface: the bridge socket route, health
// and metrics endpoints, and graceful lifecycle.
package server

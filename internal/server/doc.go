// Package server implements the UDP ingest server for incoming audio
// packets and the HTTP API for monitoring and management.
package server

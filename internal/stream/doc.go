// Package stream manages per-source audio sessions: one ring buffer
// and one set of sticky spatial parameters per remote sender, with
// inactivity-based teardown.
package stream

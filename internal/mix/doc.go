// Package mix implements the playback-side consumer: a fixed-cadence
// loop that drains one frame per cycle from every ready ring buffer,
// sums the attenuated sources with saturation, and returns the mix to
// each sender over UDP, honoring loopback requests.
package mix

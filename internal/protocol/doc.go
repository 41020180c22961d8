// Package protocol implements decoding of incoming audio packet
// bodies: the optional spatial metadata header (position, attenuation,
// bearing) and the loopback-via-bearing sideband policy. It hands the
// remaining PCM payload to the ring buffer untouched.
package protocol

// Package audio implements the fixed-capacity ring buffer that sits
// between the network producer and the mix consumer, plus WAV
// encoding for recording mixed output.
package audio

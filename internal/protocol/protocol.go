// Package protocol defines the probe wire format.
//
// A probe datagram carries a big-endian uint32 sequence number in its
// first four bytes; the remainder is zero padding up to the configured
// probe size. The reflector never interprets any of it.
package protocol

import "encoding/binary"

const (
	// SeqHeaderSize is the length of the sequence number prefix.
	SeqHeaderSize = 4

	// MinProbeSize is the smallest valid probe datagram.
	MinProbeSize = SeqHeaderSize

	// MaxProbeSize caps a probe at the largest datagram we are willing
	// to send or receive in one read.
	MaxProbeSize = 64 * 1024
)

// PutSeq writes the sequence number into the probe prefix.
func PutSeq(p []byte, seq uint32) {
	binary.BigEndian.PutUint32(p[:SeqHeaderSize], seq)
}

// Seq reads the sequence number from the probe prefix.
func Seq(p []byte) uint32 {
	return binary.BigEndian.Uint32(p[:SeqHeaderSize])
}

// Package codec implements the autokey XOR stream cipher used by TP-Link
// Kasa smart plugs to obscure their JSON payloads.
//
// The cipher starts from a fixed key and feeds every ciphertext byte back in
// as the key for the next byte. Over TCP a message carries a 4-byte
// big-endian length prefix; over UDP the datagram already delimits the
// message, so the prefix is stripped before sending.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	InitialKey byte = 0xAB
	HeaderSize      = 4
)

var (
	ErrShortFrame     = errors.New("frame shorter than length header")
	ErrLengthMismatch = errors.New("frame length does not match header")
)

// Encode returns the length-prefixed ciphertext of plaintext.
func Encode(plaintext []byte) []byte {
	out := make([]byte, HeaderSize+len(plaintext))
	binary.BigEndian.PutUint32(out, uint32(len(plaintext)))
	key := InitialKey
	for i, b := range plaintext {
		key ^= b
		out[HeaderSize+i] = key
	}
	return out
}

// EncodeDatagram returns the ciphertext of plaintext as it is sent in a
// single UDP datagram, i.e. without the length prefix.
func EncodeDatagram(plaintext []byte) []byte {
	return Encode(plaintext)[HeaderSize:]
}

// Decode deciphers a ciphertext that carries no length prefix. It never
// fails; garbage in yields garbage out.
func Decode(ciphertext []byte) []byte {
	out := make([]byte, len(ciphertext))
	key := InitialKey
	for i, c := range ciphertext {
		out[i] = key ^ c
		key = c
	}
	return out
}

// DecodeFrame checks the length prefix of a framed message and deciphers
// the remainder.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortFrame, len(frame))
	}
	n := binary.BigEndian.Uint32(frame[:HeaderSize])
	if int64(n) != int64(len(frame)-HeaderSize) {
		return nil, fmt.Errorf("%w: header says %d bytes, got %d", ErrLengthMismatch, n, len(frame)-HeaderSize)
	}
	return Decode(frame[HeaderSize:]), nil
}

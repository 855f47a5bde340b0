// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

package ctrlproto

// Checksum computes the XOR checksum over the given bytes. A frame's
// checksum byte is the XOR of every preceding byte, start marker included.
func Checksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

// Checksum computes the frame checksum for the given payload: the one's
// complement of the 8-bit sum of every byte
func Checksum(payload []byte) uint8 {
	var sum uint8
	for _, b := range payload {
		sum += b
	}
	return ^sum
}

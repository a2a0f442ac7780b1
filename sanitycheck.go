// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

//go:build race

package erpc

// sanity check the configuration
func init() {
	if SessionCredits < 1 {
		panic("SessionCredits < 1")
	}
	if SessionReqWindow != SessionCredits {
		panic("SessionReqWindow != SessionCredits")
	}
	if PktHdrSize != 16 {
		panic("PktHdrSize != 16")
	}
	if MaxClassSize&(MaxClassSize-1) != 0 {
		panic("MaxClassSize not a power of two")
	}
}

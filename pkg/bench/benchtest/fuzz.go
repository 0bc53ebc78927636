// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package benchtest

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// FuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func FuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// fuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func fuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// NewRand creates a new random number generator and logs the seed for reproducibility
func NewRand(t testing.TB) *rand.Rand {
	seed := fuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// FlipBit returns a copy of b with one bit inverted
func FlipBit(b []byte, index int, bit uint) []byte {
	out := append([]byte(nil), b...)
	out[index] ^= 1 << bit
	return out
}

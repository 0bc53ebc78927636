// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Statistics tracks transaction outcomes and error rates. It is an
// Observer and safe for use from several runners.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Transactions uint64
	Succeeded    uint64
	Failed       uint64
	Attempts     uint64
	Retried      uint64 // transactions that needed more than one attempt
	Recoveries   uint64 // remote-mode switches
	ByKind       map[ErrorKind]uint64

	// Rates (calculated)
	TransactionRate float64 // transactions/sec
	ErrorRate       float64 // failed attempts/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByKind:         make(map[ErrorKind]uint64),
	}
}

// ObserveAttempt counts every attempt and the kind of each failed one
func (s *Statistics) ObserveAttempt(a Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Attempts++
	if a.Err != nil {
		s.ByKind[KindOf(a.Err)]++
	}
	s.LastUpdateTime = time.Now()
}

// ObserveTransaction counts the final outcome of a logical call
func (s *Statistics) ObserveTransaction(sum Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Transactions++
	if sum.Err != nil {
		s.Failed++
	} else {
		s.Succeeded++
	}
	if sum.Attempts > 1 {
		s.Retried++
	}
	if sum.Recovered {
		s.Recoveries++
	}
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates transaction and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.TransactionRate = float64(s.Transactions) / elapsed
		var errorCount uint64
		for _, n := range s.ByKind {
			errorCount += n
		}
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	var okPercent float64
	if s.Transactions > 0 {
		okPercent = float64(s.Succeeded) * 100.0 / float64(s.Transactions)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Transactions:    %8d\n", s.Transactions)
	result += fmt.Sprintf("Succeeded:       %8d (%.1f%%)\n", s.Succeeded, okPercent)
	if s.Failed > 0 {
		result += fmt.Sprintf("Failed:          %8d\n", s.Failed)
	}
	result += fmt.Sprintf("Attempts:        %8d\n", s.Attempts)
	if s.Retried > 0 {
		result += fmt.Sprintf("Retried:         %8d\n", s.Retried)
	}
	if s.Recoveries > 0 {
		result += fmt.Sprintf("Remote Switches: %8d\n", s.Recoveries)
	}

	kinds := make([]ErrorKind, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		result += fmt.Sprintf("  %-24s %5d\n", k.String()+":", s.ByKind[k])
	}

	result += fmt.Sprintf("Transaction Rate:%8.1f /sec\n", s.TransactionRate)
	result += fmt.Sprintf("Error Rate:      %8.1f /sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.Transactions = 0
	s.Succeeded = 0
	s.Failed = 0
	s.Attempts = 0
	s.Retried = 0
	s.Recoveries = 0
	s.ByKind = make(map[ErrorKind]uint64)
	s.TransactionRate = 0
	s.ErrorRate = 0
}

// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graph

import "time"

// RetryPolicy governs whether and how long the executor waits before
// re-invoking a failing node (spec.md §4.3, C4). Interrupts are never
// retried; any other error a node returns is retried while ShouldRetry
// allows it.
type RetryPolicy interface {
	// ShouldRetry reports whether attempt (0-indexed) may be retried.
	ShouldRetry(attempt int) bool

	// Delay returns how long to sleep before the given retry attempt.
	Delay(attempt int) time.Duration
}

// NoRetry never retries.
type NoRetry struct{}

func (NoRetry) ShouldRetry(attempt int) bool    { return false }
func (NoRetry) Delay(attempt int) time.Duration { return 0 }

// FixedRetry retries up to MaxAttempts times with a constant delay.
type FixedRetry struct {
	MaxAttempts int
	Delay_      time.Duration
}

func (r FixedRetry) ShouldRetry(attempt int) bool { return attempt < r.MaxAttempts }
func (r FixedRetry) Delay(attempt int) time.Duration {
	return r.Delay_
}

// ExponentialRetry retries with exponentially growing delay, capped at
// MaxDelay: delay(n) = min(MaxDelay, InitialDelay * Multiplier^n).
type ExponentialRetry struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func (r ExponentialRetry) ShouldRetry(attempt int) bool { return attempt < r.MaxAttempts }

func (r ExponentialRetry) Delay(attempt int) time.Duration {
	d := float64(r.InitialDelay)
	mult := r.Multiplier
	if mult <= 0 {
		mult = 1
	}
	for i := 0; i < attempt; i++ {
		d *= mult
	}
	delay := time.Duration(d)
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}

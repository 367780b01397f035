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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoRetry_NeverRetries(t *testing.T) {
	var p RetryPolicy = NoRetry{}
	assert.False(t, p.ShouldRetry(0))
	assert.Equal(t, time.Duration(0), p.Delay(0))
}

func TestFixedRetry_StopsAtMaxAttempts(t *testing.T) {
	p := FixedRetry{MaxAttempts: 3, Delay_: 50 * time.Millisecond}
	assert.True(t, p.ShouldRetry(0))
	assert.True(t, p.ShouldRetry(2))
	assert.False(t, p.ShouldRetry(3))
	assert.Equal(t, 50*time.Millisecond, p.Delay(2))
}

func TestExponentialRetry_GrowsAndCaps(t *testing.T) {
	p := ExponentialRetry{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2,
	}
	assert.Equal(t, 10*time.Millisecond, p.Delay(0))
	assert.Equal(t, 20*time.Millisecond, p.Delay(1))
	assert.Equal(t, 40*time.Millisecond, p.Delay(2))
	assert.Equal(t, 80*time.Millisecond, p.Delay(3))
	assert.Equal(t, 100*time.Millisecond, p.Delay(4), "delay must cap at MaxDelay")
}

func TestExponentialRetry_ZeroMultiplierDefaultsToOne(t *testing.T) {
	p := ExponentialRetry{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, p.Delay(3), "a zero Multiplier must not collapse delay to zero")
}

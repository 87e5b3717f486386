// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	// Test disabling
	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	// Test enabling
	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordCeremony(t *testing.T) {
	Enable()

	// Reset metrics
	CeremoniesTotal.Reset()
	CeremonyDuration.Reset()

	// Record a ceremony
	RecordCeremony(CeremonyAssertion, StatusSuccess, 0.05)

	// Verify counter incremented
	count := testutil.CollectAndCount(CeremoniesTotal)
	if count != 1 {
		t.Errorf("Expected 1 ceremony series, got %d", count)
	}

	value := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(CeremonyAssertion, StatusSuccess))
	if value != 1 {
		t.Errorf("Expected success counter to be 1, got %f", value)
	}

	// Verify histogram recorded
	histCount := testutil.CollectAndCount(CeremonyDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram series, got %d", histCount)
	}

	// A failed ceremony gets its own series
	RecordCeremony(CeremonyAssertion, StatusFailure, 0.01)

	count = testutil.CollectAndCount(CeremoniesTotal)
	if count != 2 {
		t.Errorf("Expected 2 ceremony series, got %d", count)
	}
}

func TestRecordCeremonyWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	// Reset metrics
	CeremoniesTotal.Reset()

	// Record a ceremony (should be no-op)
	RecordCeremony(CeremonyRegistration, StatusSuccess, 0.05)

	// Verify nothing was recorded
	count := testutil.CollectAndCount(CeremoniesTotal)
	if count != 0 {
		t.Errorf("Expected no ceremonies recorded when disabled, got %d", count)
	}
}

func TestRecordFailure(t *testing.T) {
	Enable()

	FailuresTotal.Reset()

	RecordFailure("signature_invalid")
	RecordFailure("signature_invalid")
	RecordFailure("challenge_expired")

	count := testutil.CollectAndCount(FailuresTotal)
	if count != 2 {
		t.Errorf("Expected 2 failure kinds, got %d", count)
	}

	value := testutil.ToFloat64(FailuresTotal.WithLabelValues("signature_invalid"))
	if value != 2 {
		t.Errorf("Expected signature_invalid counter to be 2, got %f", value)
	}
}

func TestRecordFailureWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	FailuresTotal.Reset()

	RecordFailure("signature_invalid")

	count := testutil.CollectAndCount(FailuresTotal)
	if count != 0 {
		t.Errorf("Expected no failures recorded when disabled, got %d", count)
	}
}

func TestRecordLockout(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(LockoutsTotal)
	RecordLockout()
	after := testutil.ToFloat64(LockoutsTotal)

	if after != before+1 {
		t.Errorf("Expected lockout counter to increase by 1, got %f -> %f", before, after)
	}
}

func TestRecordCloneWarning(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(CloneWarningsTotal)
	RecordCloneWarning()
	after := testutil.ToFloat64(CloneWarningsTotal)

	if after != before+1 {
		t.Errorf("Expected clone warning counter to increase by 1, got %f -> %f", before, after)
	}
}

func TestSetCredentialsTotal(t *testing.T) {
	Enable()

	CredentialsTotal.Reset()

	SetCredentialsTotal("memory", 42)

	value := testutil.ToFloat64(CredentialsTotal.WithLabelValues("memory"))
	if value != 42 {
		t.Errorf("Expected credentials gauge to be 42, got %f", value)
	}

	// Gauges can go down
	SetCredentialsTotal("memory", 41)

	value = testutil.ToFloat64(CredentialsTotal.WithLabelValues("memory"))
	if value != 41 {
		t.Errorf("Expected credentials gauge to be 41, got %f", value)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	Enable()

	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "200", 0.01)

	count := testutil.CollectAndCount(HTTPRequestsTotal)
	if count != 1 {
		t.Errorf("Expected 1 HTTP request series, got %d", count)
	}

	value := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "200"))
	if value != 1 {
		t.Errorf("Expected request counter to be 1, got %f", value)
	}

	histCount := testutil.CollectAndCount(HTTPRequestDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram series, got %d", histCount)
	}
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCapabilitiesReadOnly(t *testing.T) {
	methods, topics := buildCapabilities(true, false, false, false)
	assert.Equal(t, walletReadMethods, methods)
	assert.Empty(t, topics)
}

func TestBuildCapabilitiesSpending(t *testing.T) {
	methods, _ := buildCapabilities(false, false, false, false)
	assert.Subset(t, methods, walletReadMethods)
	assert.Subset(t, methods, walletPayMethods)
	assert.NotContains(t, methods, methodPayOffer)
}

func TestBuildCapabilitiesOffers(t *testing.T) {
	methods, _ := buildCapabilities(false, true, false, false)
	assert.Contains(t, methods, methodGetOfferInfo)
	assert.Contains(t, methods, methodPayOffer)

	// A read-only connection still reads offers but never pays them.
	methods, _ = buildCapabilities(true, true, false, false)
	assert.Contains(t, methods, methodGetOfferInfo)
	assert.NotContains(t, methods, methodPayOffer)
}

func TestBuildCapabilitiesNotifications(t *testing.T) {
	_, topics := buildCapabilities(false, false, false, true)
	assert.Equal(t, []string{topicPaymentReceived, topicPaymentSent}, topics)

	_, topics = buildCapabilities(false, false, true, true)
	assert.Contains(t, topics, topicHoldInvoiceAccepted)
}

func TestBuildCapabilitiesHoldNeverAdvertised(t *testing.T) {
	methods, _ := buildCapabilities(false, true, true, true)
	for _, m := range walletHoldMethods {
		assert.NotContains(t, methods, m)
	}
}

// Repeated calls must be byte-identical so an unchanged advertisement can
// be detected by comparison.
func TestBuildCapabilitiesStable(t *testing.T) {
	m1, t1 := buildCapabilities(false, true, true, true)
	m2, t2 := buildCapabilities(false, true, true, true)
	assert.Equal(t, m1, m2)
	assert.Equal(t, t1, t2)
}

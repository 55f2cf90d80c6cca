package mail

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestUnconfiguredMailerIsInert(t *testing.T) {
	m := New("smtp.example.com", 465, "", "", "", 5.0, testLogger())
	assert.False(t, m.Configured())
	assert.False(t, m.SendPriceAlert("VOO", decimal.NewFromFloat(6.5), decimal.NewFromInt(110)))
	assert.Error(t, m.TestConnection())
}

func TestConfigured(t *testing.T) {
	m := New("smtp.example.com", 465, "user@example.com", "secret", "owner@example.com", 5.0, testLogger())
	assert.True(t, m.Configured())

	// any single missing credential disables sending
	m = New("smtp.example.com", 465, "user@example.com", "", "owner@example.com", 5.0, testLogger())
	assert.False(t, m.Configured())
}

func TestAlertBodyFormatting(t *testing.T) {
	m := New("smtp.example.com", 465, "u", "p", "o", 5.0, testLogger())

	body := m.alertBody("VOO", decimal.NewFromFloat(6.25), decimal.NewFromFloat(110.5))
	assert.Contains(t, body, "VOO")
	assert.Contains(t, body, "+6.25%")
	assert.Contains(t, body, "$110.50")
	assert.Contains(t, body, "#3B82F6") // gains render blue

	body = m.alertBody("QQQ", decimal.NewFromFloat(-7.1), decimal.NewFromFloat(350))
	assert.Contains(t, body, "-7.10%")
	assert.True(t, strings.Contains(body, "#EF4444")) // losses render red
}

func TestSignedPercent(t *testing.T) {
	assert.Equal(t, "+5.00", signedPercent(decimal.NewFromInt(5)))
	assert.Equal(t, "-5.00", signedPercent(decimal.NewFromInt(-5)))
	assert.Equal(t, "+0.00", signedPercent(decimal.Zero))
}

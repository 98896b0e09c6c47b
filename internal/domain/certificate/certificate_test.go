package certificate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCertificate_IsValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, Certificate{IsActive: true, ValidUntil: now}.IsValid(now))
	assert.True(t, Certificate{IsActive: true, ValidUntil: now.Add(time.Hour)}.IsValid(now))
	assert.False(t, Certificate{IsActive: true, ValidUntil: now.Add(-time.Second)}.IsValid(now))
	assert.False(t, Certificate{IsActive: false, ValidUntil: now.Add(time.Hour)}.IsValid(now))
}

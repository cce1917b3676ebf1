package sms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New("AC123", "", "+15550000000")
	assert.Error(t, err)

	c, err := New("AC123", "token", "+15550000000")
	assert.NoError(t, err)
	assert.NotNil(t, c)
}

func TestValidateNumber(t *testing.T) {
	assert.NoError(t, ValidateNumber("+919876543210"))
	assert.Error(t, ValidateNumber("9876543210"))
	assert.Error(t, ValidateNumber("+91"))
}

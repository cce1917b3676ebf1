package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscape(t *testing.T) {
	assert.Equal(t, `Old\_Market \*zone\*`, Escape("Old_Market *zone*"))
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

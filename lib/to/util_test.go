package to

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPtr(t *testing.T) {
	assert.Equal(t, "test", *Ptr("test"))
	assert.Equal(t, 1, *Ptr(1))
}

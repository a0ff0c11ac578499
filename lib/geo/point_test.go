package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAxisAccessors(t *testing.T) {
	p := NewPoint(3, 4)
	assert.Equal(t, 3., p.Get(AxisX))
	assert.Equal(t, 4., p.Get(AxisY))

	p.Set(AxisY, 10)
	assert.Equal(t, 10., p.Y)
	assert.Equal(t, AxisX, AxisY.Other())
}

package utils

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, Map([]int{1, 2, 3}, strconv.Itoa))
	assert.Empty(t, Map(nil, strconv.Itoa))
}

func TestFilter(t *testing.T) {
	even := func(i int) bool { return i%2 == 0 }
	assert.Equal(t, []int{2, 4}, Filter([]int{1, 2, 3, 4}, even))
	assert.NotNil(t, Filter(nil, even))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"rj1dy1o8", "abc"}, "rj1dy1o8"))
	assert.False(t, Contains([]string{"abc"}, "rj1dy1o8"))
}

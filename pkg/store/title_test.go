package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClipTitle_Boundary(t *testing.T) {
	cases := []struct {
		inLen, wantLen int
	}{
		{0, len("Untitled")},
		{254, 254},
		{255, 254},
		{300, 254},
	}
	for _, c := range cases {
		in := strings.Repeat("a", c.inLen)
		got := clipTitle(in)
		assert.Equal(t, c.wantLen, len(got), "inLen=%d", c.inLen)
	}
}

func TestClipTitle_Null(t *testing.T) {
	assert.Equal(t, "Untitled", clipTitle(""))
}

package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"long key keeps both ends", "abcdefghijkl", "abcd...ijkl"},
		{"short key keeps head only", "abcde", "abcd..."},
		{"nine chars masks both ends", "abcdefghi", "abcd...fghi"},
		{"tiny key", "abc", "abc..."},
		{"empty key", "", "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskKey(tt.key))
		})
	}
}

func TestMaskKeyNeverRevealsMiddle(t *testing.T) {
	key := "sk-verysecretmiddlepart-end1"
	masked := MaskKey(key)
	assert.NotContains(t, masked, "secretmiddle")
	assert.True(t, strings.Contains(masked, "..."))
}

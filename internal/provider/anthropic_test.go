package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAnthropic(t *testing.T) {
	t.Run("applies default model", func(t *testing.T) {
		c := NewAnthropic(Config{})
		assert.Equal(t, "anthropic", c.Name())
		assert.Equal(t, defaultAnthropicModel, c.Model())
	})

	t.Run("uses configured model", func(t *testing.T) {
		c := NewAnthropic(Config{APIKey: "sk-ant-test", Model: "claude-sonnet-4-5"})
		assert.Equal(t, "claude-sonnet-4-5", c.Model())
	})
}

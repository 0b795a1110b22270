package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	p := New(Config{APIKey: "k"}, nil)
	assert.Equal(t, "openai", p.Name())
	assert.True(t, p.ValidateModel("gpt-3.5-turbo"))
	assert.True(t, p.ValidateModel("gpt-4"))
	assert.False(t, p.ValidateModel("nonexistent-model"))
}

func TestNew_CustomBaseURL(t *testing.T) {
	p := New(Config{APIKey: "k", BaseURL: "http://localhost:9999", DefaultModel: "gpt-4"}, nil)
	assert.Equal(t, "openai", p.Name())
}

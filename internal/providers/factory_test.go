package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_UnknownKind(t *testing.T) {
	_, err := Build(context.Background(), Spec{Kind: Kind("made-up")})
	require.Error(t, err)
}

func TestBuild_Compat_DefaultsBaseURL(t *testing.T) {
	a, err := Build(context.Background(), Spec{Kind: KindCompat, Models: []string{"llama3"}})
	require.NoError(t, err)
	compat, ok := a.(*GenericCompatAdapter)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:11434/v1", compat.baseURL)
}

func TestBuild_Anthropic(t *testing.T) {
	a, err := Build(context.Background(), Spec{Kind: KindAnthropic, APIKey: "sk-test", Models: []string{"claude-3-5-sonnet"}})
	require.NoError(t, err)
	assert.True(t, a.Capabilities().HasModel("claude-3-5-sonnet"))
}

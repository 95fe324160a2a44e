package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAPIKey(t *testing.T) {
	a := HashAPIKey("secret-key")
	b := HashAPIKey("secret-key")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HashAPIKey("other-key"))
	assert.Len(t, a, 64) // hex-encoded sha256
	assert.NotContains(t, a, "secret")
}

func TestStaticResolver(t *testing.T) {
	resolver := NewStaticResolver(map[string]Tenant{
		"key-acme": {ID: "acme", GraphName: "tenant_acme"},
		"key-beta": {ID: "beta", GraphName: "tenant_beta"},
	})

	ctx := context.Background()

	resolved, err := resolver.Resolve(ctx, "key-acme")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "acme", resolved.ID)
	assert.Equal(t, "tenant_acme", resolved.GraphName)

	// Unknown key is a nil result, not an error
	resolved, err = resolver.Resolve(ctx, "key-unknown")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

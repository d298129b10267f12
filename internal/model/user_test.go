package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSchemaRoundTrip(t *testing.T) {
	for _, u := range SampleUsers() {
		doc := UserSchema.ToDocument(&u)
		back, err := UserSchema.FromDocument(doc)
		require.NoError(t, err)
		assert.Equal(t, u, back)
	}
}

func TestSampleUsersHaveUniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for _, u := range SampleUsers() {
		assert.False(t, seen[u.ID], "duplicate id %s", u.ID)
		seen[u.ID] = true
	}
	assert.Len(t, seen, 20)
}

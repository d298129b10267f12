package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAndSet(t *testing.T) {
	doc := New(Text("id", "1"), Text("userName", "钟无艳"))

	v, ok := doc.Get("userName")
	require.True(t, ok)
	assert.Equal(t, "钟无艳", v)

	doc.Set("userName", "关羽")
	doc.Set("sal", "")
	v, _ = doc.Get("userName")
	assert.Equal(t, "关羽", v)
	assert.Equal(t, []string{"id", "userName", "sal"}, doc.Names())

	_, ok = doc.Get("missing")
	assert.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	doc := New(Text("id", "1"))
	c := doc.Clone()
	c.Set("id", "2")

	v, _ := doc.Get("id")
	assert.Equal(t, "1", v)
}

func TestStoredDropsUnstoredFields(t *testing.T) {
	doc := New(
		Text("id", "1"),
		Field{Name: "body", Value: "only searchable", Indexed: true},
	)
	assert.Equal(t, []string{"id"}, doc.Stored().Names())
}

func TestValidate(t *testing.T) {
	assert.Error(t, Document{}.Validate())
	assert.Error(t, New(Text("", "x")).Validate())
	assert.Error(t, New(Text("a", "x"), Text("a", "y")).Validate())
	assert.NoError(t, New(Text("a", ""), Text("b", "y")).Validate())
}

package scan

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type usersController struct{}

type typeHolder struct{ t reflect.Type }

func (h typeHolder) Type() reflect.Type { return h.t }

func TestCatalog_FindByPrefix(t *testing.T) {
	c := NewCatalog()
	c.AddEntry(Entry{Package: "example.com/app/api", Name: "Users", Value: "users"})
	c.AddEntry(Entry{Package: "example.com/app/api/admin", Name: "Admin", Value: "admin"})
	c.AddEntry(Entry{Package: "example.com/app/apix", Name: "Other", Value: "other"})
	c.AddEntry(Entry{Package: "example.com/lib", Name: "Lib", Value: "lib"})

	tests := []struct {
		name     string
		prefixes []string
		expected []any
	}{
		{"no prefixes means everything", nil, []any{"users", "admin", "other", "lib"}},
		{"package and subpackages", []string{"example.com/app/api"}, []any{"users", "admin"}},
		{"go style pattern", []string{"example.com/app/api/..."}, []any{"users", "admin"}},
		{"multiple prefixes", []string{"example.com/lib", "example.com/app/apix"}, []any{"other", "lib"}},
		{"no match", []string{"example.com/none"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found := c.Find(tt.prefixes...)
			assert.ElementsMatch(t, tt.expected, found)
		})
	}
}

func TestCatalog_CachesUntilReset(t *testing.T) {
	c := NewCatalog()
	c.AddEntry(Entry{Package: "example.com/app", Name: "A", Value: 1})

	c.Find("example.com/app")
	c.Find("example.com/app")
	assert.Equal(t, 1, c.Scans())

	c.Reset()
	c.Find("example.com/app")
	assert.Equal(t, 2, c.Scans())

	c.AddEntry(Entry{Package: "example.com/app", Name: "B", Value: 2})
	assert.Len(t, c.Find("example.com/app"), 2)
	assert.Equal(t, 3, c.Scans())
}

func TestCatalog_OrderedByPackageThenName(t *testing.T) {
	c := NewCatalog()
	c.AddEntry(Entry{Package: "b", Name: "Z", Value: "bz"})
	c.AddEntry(Entry{Package: "a", Name: "Y", Value: "ay"})
	c.AddEntry(Entry{Package: "b", Name: "A", Value: "ba"})

	assert.Equal(t, []any{"ay", "ba", "bz"}, c.Find())
	assert.Equal(t, []string{"a", "b"}, c.Packages())
	assert.Equal(t, 3, c.Len())
}

func TestIdentify(t *testing.T) {
	pkg, name := Identify(&usersController{})
	assert.Equal(t, "github.com/toyz/rewire/internal/scan", pkg)
	assert.Equal(t, "usersController", name)

	pkg, name = Identify(reflect.TypeOf(usersController{}))
	assert.Equal(t, "github.com/toyz/rewire/internal/scan", pkg)
	assert.Equal(t, "usersController", name)

	_, name = Identify(typeHolder{t: reflect.TypeOf(usersController{})})
	assert.Equal(t, "usersController", name)

	pkg, name = Identify(nil)
	assert.Empty(t, pkg)
	assert.Empty(t, name)
}

func TestCatalog_Add(t *testing.T) {
	c := NewCatalog()
	c.Add(&usersController{})

	entries := c.FindEntries("github.com/toyz/rewire/internal")
	require.Len(t, entries, 1)
	assert.Equal(t, "usersController", entries[0].Name)
}

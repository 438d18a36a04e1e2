package typeprovider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadExtractsAnnotationsAndReferences(t *testing.T) {
	root := t.TempDir()
	apiDir := filepath.Join(root, "api")
	require.NoError(t, os.MkdirAll(apiDir, 0o755))

	writeFile(t, root, "service.go", `package orders

// OrderService owns order lifecycle.
//
// @ApplicationModule(displayName="Orders")
type OrderService struct {
	Repo *OrderRepository
}

type OrderRepository struct{}
`)

	writeFile(t, apiDir, "api.go", `package api

// OrderApi is the public order surface.
//
// @NamedInterface(api)
type OrderApi struct{}
`)

	types, err := Load(root)
	require.NoError(t, err)
	require.NotEmpty(t, types)

	base := RootPackage(root)

	var service, api *struct{}
	_ = service
	_ = api

	var found []string
	for _, ty := range types {
		found = append(found, ty.FQName)
	}

	assert.Contains(t, found, base+".OrderService")
	assert.Contains(t, found, base+".api.OrderApi")

	for _, ty := range types {
		if ty.FQName == base+".OrderService" {
			require.Len(t, ty.Annotations, 1)
			assert.Equal(t, "ApplicationModule", ty.Annotations[0].Name)
			v, ok := ty.Annotations[0].Value("displayName")
			assert.True(t, ok)
			assert.Equal(t, "Orders", v)
			assert.Contains(t, ty.ReferencedTypes, "OrderRepository")
		}
		if ty.FQName == base+".api.OrderApi" {
			require.Len(t, ty.Annotations, 1)
			assert.Equal(t, "NamedInterface", ty.Annotations[0].Name)
			v, ok := ty.Annotations[0].Value("value")
			assert.True(t, ok)
			assert.Equal(t, "api", v)
		}
	}
}

func TestRootPackageUsesBaseDirName(t *testing.T) {
	assert.Equal(t, "modulith", RootPackage("/some/path/modulith"))
	assert.Equal(t, "modulith", RootPackage("/some/path/modulith/"))
}

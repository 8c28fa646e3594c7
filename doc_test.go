package camera

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageDocOnlyInDocFile(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)

	fset := token.NewFileSet()
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, parser.PackageClauseOnly|parser.ParseComments)
		require.NoError(t, err, name)
		if name == "doc.go" {
			assert.NotNil(t, f.Doc, "doc.go carries the package comment")
			continue
		}
		assert.Nil(t, f.Doc, "%s has a comment attached to its package clause", name)
	}
}

package sdfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type statTree map[string]bool

func (p statTree) stat(path string) (bool, bool) {
	isDir, ok := p[path]
	return ok, isDir
}

func TestResolvePath(t *testing.T) {
	tree := statTree{
		"/":              true,
		"/docs":          true,
		"/docs/2021":     true,
		"/docs/note.txt": false,
		"/readme":        false,
		"logs":           true,
	}
	for _, c := range []struct {
		path string
		want resolution
	}{
		{"", resolution{anchor: "/"}},
		{"/", resolution{anchor: "/"}},
		{"///", resolution{anchor: "/"}},
		{"/docs", resolution{anchor: "/docs", dirPath: "/docs"}},
		{"/docs/", resolution{anchor: "/docs", dirPath: "/docs"}},
		{"/docs/2021//", resolution{anchor: "/docs/2021", dirPath: "/docs/2021"}},
		{"/docs/note.txt", resolution{anchor: "/docs", filter: "note.txt", dirPath: "/docs"}},
		{"/docs/no", resolution{anchor: "/docs", filter: "no", dirPath: "/docs"}},
		{"/readme", resolution{anchor: "/", filter: "readme"}},
		{"/missing", resolution{anchor: "/", filter: "missing"}},
		{"readme", resolution{anchor: "/", filter: "readme"}},
		{"logs", resolution{anchor: "logs", dirPath: "logs"}},
		{"/a/b/c", resolution{anchor: "/a/b", filter: "c", dirPath: "/a/b"}},
	} {
		require.Equal(t, c.want, resolvePath(c.path, tree.stat), c.path)
	}
}

func TestResolvePathProbes(t *testing.T) {
	var statted []string
	stat := func(path string) (bool, bool) {
		statted = append(statted, path)
		return false, false
	}
	resolvePath("", stat)
	resolvePath("/", stat)
	require.Empty(t, statted)
	resolvePath("/x/y/", stat)
	require.Equal(t, []string{"/x/y"}, statted)
}

func TestChildPath(t *testing.T) {
	require.Equal(t, "name", childPath("", "name"))
	require.Equal(t, "/docs/name", childPath("/docs", "name"))
}

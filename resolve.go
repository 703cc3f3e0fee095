package sdfs

import "strings"

// resolution is where a caller path lands on the volume: the directory to
// open and the name filter to enumerate it with.
type resolution struct {
	anchor string
	filter string
	// dirPath prefixes child names to rebuild their full paths.
	dirPath string
}

// statFunc reports whether a path exists and whether it is a directory.
type statFunc func(path string) (found, isDir bool)

// resolvePath maps a path onto an anchor directory and filter. A directory
// resolves to itself with an empty filter; a file or a missing name resolves
// to its parent with the final segment as filter.
func resolvePath(path string, stat statFunc) resolution {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return resolution{anchor: "/"}
	}
	if found, isDir := stat(trimmed); found && isDir {
		return resolution{anchor: trimmed, dirPath: trimmed}
	}
	slash := strings.LastIndexByte(trimmed, '/')
	if slash < 0 {
		return resolution{anchor: "/", filter: trimmed}
	}
	parent, filter := trimmed[:slash], trimmed[slash+1:]
	if parent == "" {
		return resolution{anchor: "/", filter: filter}
	}
	return resolution{anchor: parent, filter: filter, dirPath: parent}
}

// childPath joins a cursor's directory path and a child name.
func childPath(dirPath, name string) string {
	if dirPath == "" {
		return name
	}
	return dirPath + "/" + name
}

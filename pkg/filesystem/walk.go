package filesystem

import (
	"fmt"
	"strings"
)

// Normalize rewrites a lookup path to begin with a slash and drops any
// trailing slash.
func Normalize(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

// Walk resolves a path relative to start by iterating each directory along
// the way and matching components by exact name. Empty components are
// skipped, so absolute and relative paths both work.
func Walk(start Entry, path string) (Entry, error) {
	current := start
	for _, elem := range strings.Split(path, "/") {
		if elem == "" {
			continue
		}
		if !current.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrNotADirectory, current.Name())
		}

		children, err := current.Iterdir()
		if err != nil {
			return nil, err
		}

		var found Entry
		for _, child := range children {
			if child.Name() == elem {
				found = child
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		current = found
	}
	return current, nil
}

package fs

import "strings"

// Complete returns the names of the live directory entries that start with
// prefix, in directory order.
func (fs *FileSystem) Complete(prefix string) []string {
	var matches []string
	for i := 0; i < fs.dirCount(); i++ {
		if name := fs.entry(i).Name; strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	return matches
}

// CommonPrefix returns the longest prefix shared by all names.
func CommonPrefix(names []string) string {
	if len(names) == 0 {
		return ""
	}

	prefix := names[0]
	for _, name := range names[1:] {
		for !strings.HasPrefix(name, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}

package procfs

// SetReadlink replaces the link reader and returns a restore function.
func SetReadlink(fn func(string) (string, error)) func() {
	orig := readlink
	readlink = fn
	return func() { readlink = orig }
}

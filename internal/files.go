package internal

import (
	"log"
	"os"
)

// MkdirAll is os.MkdirAll with the error escalated to a panic: callers
// that reach this point have no sensible recovery besides logging and
// aborting.
func MkdirAll(path string, perm os.FileMode) {
	if err := os.MkdirAll(path, perm); err != nil {
		log.Panic(err)
	}
}

// FileCreate is os.Create with the error escalated to a panic.
func FileCreate(name string) *os.File {
	f, err := os.Create(name)
	if err != nil {
		log.Panic(err)
	}
	return f
}

// Close closes f, panicking on error so a failed flush on a log or
// profile file is never silently swallowed.
func Close(f *os.File) {
	if err := f.Close(); err != nil {
		log.Panic(err)
	}
}

package popen

import (
	"io"
	"io/ioutil"
	"os"
)

// TempFile copies the content of a reader into a new temporary file, and returns its name.
// The reader is always closed.
func TempFile(r io.ReadCloser, pattern string) (string, error) {
	defer func() { _ = r.Close() }()

	f, err := ioutil.TempFile("", pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

type removingReadCloser struct {
	io.ReadCloser
	paths []string
}

func (r *removingReadCloser) Close() error {
	err := r.ReadCloser.Close()
	if rerr := RemoveFiles(r.paths...); rerr != nil && err == nil {
		err = rerr
	}
	r.paths = nil
	return err
}

// RemoveFiles deletes temporary files, ignoring those already gone. It reports the first error.
func RemoveFiles(paths ...string) error {
	var err error
	for _, p := range paths {
		if rerr := removeFunc(p)(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// RemovingReader wraps a stream so that the given files are deleted when the stream is closed
func RemovingReader(rc io.ReadCloser, paths ...string) io.ReadCloser {
	return &removingReadCloser{ReadCloser: rc, paths: paths}
}

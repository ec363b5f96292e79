package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// imageDir serves regular files from the image directory. Directory
// listings and dot files (in-progress uploads) are hidden.
type imageDir struct {
	root http.FileSystem
}

func (d imageDir) Open(name string) (http.File, error) {
	if strings.HasPrefix(path.Base(name), ".") {
		return nil, fs.ErrNotExist
	}
	f, err := d.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

func staticFileServer(root string) http.Handler {
	return http.FileServer(imageDir{root: http.Dir(root)})
}

package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrOutputMissing is returned when the build produced no output directory.
var ErrOutputMissing = errors.New("build output directory not found")

// File is one regular file of the build output.
type File struct {
	Path string
	Rel  string
	Size int64
}

// collect lists every regular file under dir/outputDir in lexical order, with
// slash-separated paths relative to the output root.
func collect(dir, outputDir string) ([]File, error) {
	root := filepath.Join(dir, filepath.FromSlash(outputDir))
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrOutputMissing, outputDir)
		}
		return nil, fmt.Errorf("stat output directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrOutputMissing, outputDir)
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, File{Path: path, Rel: filepath.ToSlash(rel), Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk output directory: %w", err)
	}
	return files, nil
}

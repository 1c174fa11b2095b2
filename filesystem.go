// filesystem.go: Operating system implementation of FileSystem
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
)

// OSFileSystem implements FileSystem on the local disk. File identity is
// decided by os.SameFile, so two spellings of one path (or a hard link) are
// the same file.
type OSFileSystem struct{}

// NewOSFileSystem returns the local file system.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// OpenDir implements FileSystem.
func (OSFileSystem) OpenDir(dir string) (DirReader, error) {
	f, err := os.Open(filepath.Clean(dir))
	if err != nil {
		return nil, NewDirectoryReadError(dir, err)
	}
	return &osDirReader{dir: dir, f: f}, nil
}

// Stat implements FileSystem.
func (OSFileSystem) Stat(path string) (PluginFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return PluginFile{}, NewFileStatError(path, err)
	}
	return pluginFileFromInfo(path, info), nil
}

// Copy implements FileSystem. The destination must not exist yet.
func (OSFileSystem) Copy(src, dir, name string) (dst string, err error) {
	dst = filepath.Join(dir, name)

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return "", NewFileCopyError(src, dst, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return "", NewFileCopyError(src, dst, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm()) // #nosec G304 -- dst is built from the scanned directory
	if err != nil {
		return "", NewFileCopyError(src, dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", NewFileCopyError(src, dst, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", NewFileCopyError(src, dst, err)
	}

	return dst, nil
}

// Remove implements FileSystem.
func (OSFileSystem) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return NewFileRemoveError(path, err)
	}
	return nil
}

// Exists implements FileSystem.
func (OSFileSystem) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, NewFileStatError(path, err)
}

// SameFile implements FileSystem.
func (OSFileSystem) SameFile(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}

type osDirReader struct {
	dir string
	f   *os.File
}

func (r *osDirReader) ReadEntries(n int) ([]PluginFile, error) {
	entries, err := r.f.ReadDir(n)
	files := make([]PluginFile, 0, len(entries))
	for _, entry := range entries {
		info, infoErr := entry.Info()
		if infoErr != nil {
			// entry vanished between listing and stat
			continue
		}
		files = append(files, pluginFileFromInfo(filepath.Join(r.dir, entry.Name()), info))
	}
	if err != nil && err != io.EOF {
		return files, NewDirectoryReadError(r.dir, err)
	}
	return files, err
}

func (r *osDirReader) Close() error {
	return r.f.Close()
}

func pluginFileFromInfo(path string, info fs.FileInfo) PluginFile {
	name := info.Name()
	return PluginFile{
		Path:      path,
		Name:      name,
		Size:      info.Size(),
		Hidden:    strings.HasPrefix(name, "."),
		Extension: foldExtension(filepath.Ext(name)),
		IsDir:     info.IsDir(),
	}
}

// foldExtension normalizes an extension for case-insensitive comparison.
func foldExtension(ext string) string {
	return cases.Fold().String(strings.TrimPrefix(ext, "."))
}

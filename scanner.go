// scanner.go: One-pass discovery of orphaned search plugin descriptors
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"context"
	"io"
)

const defaultScanBatchSize = 64

// PluginScanner finds descriptors that an interrupted install left with the
// sentinel extension.
//
// Example usage:
//
//	scanner := NewPluginScanner(NewOSFileSystem(), "/profile/searchplugins", "undefined", logger)
//	scan := scanner.Scan(ctx)
//	for scan.Next() {
//	    reconciler.Enqueue(scan.File())
//	}
//	if err := scan.Err(); err != nil {
//	    logger.Error("Scan failed", "error", err)
//	}
type PluginScanner struct {
	fs        FileSystem
	dir       string
	sentinel  string
	batchSize int
	logger    Logger
}

// NewPluginScanner creates a scanner over dir.
func NewPluginScanner(fs FileSystem, dir, sentinel string, logger Logger) *PluginScanner {
	if sentinel == "" {
		sentinel = DefaultSentinelExtension
	}
	return &PluginScanner{
		fs:        fs,
		dir:       dir,
		sentinel:  sentinel,
		batchSize: defaultScanBatchSize,
		logger:    NewLogger(logger),
	}
}

// Dir returns the scanned directory.
func (s *PluginScanner) Dir() string {
	return s.dir
}

// Scan starts a new pass. The pass is lazy: directory entries are read in
// batches as Next is called. A finished pass cannot be restarted; call Scan
// again to observe later changes.
func (s *PluginScanner) Scan(ctx context.Context) *PluginScan {
	return &PluginScan{scanner: s, ctx: ctx}
}

// Orphans drains a fresh pass into a slice.
func (s *PluginScanner) Orphans(ctx context.Context) ([]PluginFile, error) {
	scan := s.Scan(ctx)
	var files []PluginFile
	for scan.Next() {
		files = append(files, scan.File())
	}
	return files, scan.Err()
}

// PluginScan is a single pass over the plugin directory.
type PluginScan struct {
	scanner *PluginScanner
	ctx     context.Context

	reader  DirReader
	pending []PluginFile
	current PluginFile
	started bool
	eof     bool
	readErr error
	done    bool
	err     error

	seen    int
	orphans int
}

// Next advances to the next orphan. It returns false when the directory is
// exhausted, the context is done, or reading failed (see Err).
func (p *PluginScan) Next() bool {
	if p.done {
		return false
	}

	if !p.started {
		p.started = true
		reader, err := p.scanner.fs.OpenDir(p.scanner.dir)
		if err != nil {
			p.finish(err)
			return false
		}
		p.reader = reader
		p.scanner.logger.Debug("Scanning search plugin directory", "dir", p.scanner.dir)
	}

	for {
		if err := p.ctx.Err(); err != nil {
			p.finish(err)
			return false
		}

		for len(p.pending) > 0 {
			file := p.pending[0]
			p.pending = p.pending[1:]
			p.seen++

			if file.IsOrphan(p.scanner.sentinel) {
				p.orphans++
				p.current = file
				p.scanner.logger.Info("Found orphaned search plugin",
					"path", file.Path,
					"size", file.Size)
				return true
			}
		}

		if p.eof || p.readErr != nil {
			p.finish(p.readErr)
			return false
		}

		batch, err := p.reader.ReadEntries(p.scanner.batchSize)
		p.pending = batch
		switch {
		case err == io.EOF:
			p.eof = true
		case err != nil:
			p.readErr = err
		}
	}
}

// File returns the orphan found by the last successful Next.
func (p *PluginScan) File() PluginFile {
	return p.current
}

// Err returns the error that ended the pass, if any.
func (p *PluginScan) Err() error {
	return p.err
}

// Stats returns how many entries were inspected and how many were orphans.
func (p *PluginScan) Stats() (seen, orphans int) {
	return p.seen, p.orphans
}

func (p *PluginScan) finish(err error) {
	p.done = true
	p.err = err
	p.pending = nil
	if p.reader != nil {
		if closeErr := p.reader.Close(); closeErr != nil && p.err == nil {
			p.err = NewDirectoryReadError(p.scanner.dir, closeErr)
		}
		p.reader = nil
	}
	if err != nil {
		p.scanner.logger.Error("Search plugin directory scan failed",
			"dir", p.scanner.dir,
			"error", err)
		return
	}
	p.scanner.logger.Debug("Search plugin directory scan completed",
		"dir", p.scanner.dir,
		"entries", p.seen,
		"orphans", p.orphans)
}

package main

import (
	"path/filepath"

	"github.com/cuemby/datahost/pkg/catalog"
	"github.com/cuemby/datahost/pkg/hostdir"
	"github.com/cuemby/datahost/pkg/log"
)

// collectionsSubdir is the fixed child of --data-dir under which every
// collection gets its own directory, named after the collection. The
// catalog database itself lives directly under --data-dir, alongside this.
const collectionsSubdir = "collections"

func openCatalog(dataDir string) (*catalog.Catalog, error) {
	return catalog.Open(dataDir)
}

func hostdirRoot(dataDir string) (*hostdir.Dir, error) {
	return hostdir.Open(filepath.Join(dataDir, collectionsSubdir), log.WithComponent("hostdir"))
}

func openCollectionDir(dataDir, name string) (*hostdir.Dir, error) {
	root, err := hostdirRoot(dataDir)
	if err != nil {
		return nil, err
	}
	return root.GetOrCreateDir(name)
}

// swapInScratch replaces name's live directory with the rebuilt contents of
// scratchDir: the old directory and everything in it is discarded, a fresh
// one is created in its place, and the rebuilt blocks are moved in.
func swapInScratch(root *hostdir.Dir, name string, scratchDir *hostdir.Dir) error {
	if err := root.DeleteDir(name); err != nil {
		return err
	}
	finalDir, err := root.CreateDir(name)
	if err != nil {
		return err
	}
	return finalDir.CopyAll(scratchDir)
}

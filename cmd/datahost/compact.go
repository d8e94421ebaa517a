package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/datahost/pkg/btree"
	"github.com/cuemby/datahost/pkg/catalog"
	"github.com/cuemby/datahost/pkg/table"
	"github.com/cuemby/datahost/pkg/txid"
	"github.com/cuemby/datahost/pkg/value"
)

// compactSuffix names the scratch directory a rebuild happens in, so a
// crash mid-compaction leaves the live collection untouched.
const compactSuffix = ".compact"

var compactCmd = &cobra.Command{
	Use:   "compact <collection>",
	Short: "Rebuild a collection from its live entries, reclaiming tombstoned space",
	Long: `B-Tree deletes are tombstones; nothing reclaims the space or
rebalances the tree on its own.
compact streams every live entry of a collection into a freshly built
index in a scratch directory, then swaps it in and updates the catalog's
root pointers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		name := args[0]

		cat, err := openCatalog(dataDir)
		if err != nil {
			return err
		}
		defer cat.Close()

		desc, found, err := cat.Get(name)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("collection %q is not registered", name)
		}

		switch desc.Kind {
		case catalog.KindBTree:
			return compactBTree(cat, desc, dataDir, name)
		case catalog.KindTable:
			return compactTable(cat, desc, dataDir, name)
		default:
			return fmt.Errorf("collection %q has unknown kind %d", name, desc.Kind)
		}
	},
}

func newTxn() txid.ID {
	return txid.New(time.Now().UnixNano())
}

func compactBTree(cat *catalog.Catalog, desc catalog.Descriptor, dataDir, name string) error {
	oldDir, err := openCollectionDir(dataDir, name)
	if err != nil {
		return err
	}
	readTxn := newTxn()
	oldIdx, err := btree.Open(name, oldDir, desc.BTreeSchema, desc.Roots["primary"])
	if err != nil {
		return err
	}
	keys, err := oldIdx.Stream(readTxn, value.FullRange(), false)
	if err != nil {
		return err
	}

	collectionsRoot, err := hostdirRoot(dataDir)
	if err != nil {
		return err
	}
	scratchName := name + compactSuffix
	scratchDir, err := collectionsRoot.CreateDir(scratchName)
	if err != nil {
		return err
	}

	writeTxn := newTxn()
	newIdx, newRoot, err := btree.Create(writeTxn, name, scratchDir, desc.BTreeSchema)
	if err != nil {
		return err
	}
	if err := newIdx.InsertFrom(writeTxn, keys); err != nil {
		return err
	}
	if err := newIdx.Commit(writeTxn); err != nil {
		return err
	}
	newRoot = newIdx.RootID(writeTxn)
	if err := newIdx.Finalize(writeTxn); err != nil {
		return err
	}

	if err := swapInScratch(collectionsRoot, name, scratchDir); err != nil {
		return err
	}

	desc.Roots = map[string]string{"primary": newRoot}
	if err := cat.Put(desc); err != nil {
		return err
	}

	fmt.Printf("compacted %q: new root %s\n", name, newRoot)
	return nil
}

func compactTable(cat *catalog.Catalog, desc catalog.Descriptor, dataDir, name string) error {
	oldDir, err := openCollectionDir(dataDir, name)
	if err != nil {
		return err
	}
	readTxn := newTxn()
	oldTbl, err := table.Open(name, oldDir, *desc.TableSchema, desc.Roots)
	if err != nil {
		return err
	}
	view, err := oldTbl.Stream(readTxn)
	if err != nil {
		return err
	}
	seq, err := view.Stream(readTxn)
	if err != nil {
		return err
	}

	collectionsRoot, err := hostdirRoot(dataDir)
	if err != nil {
		return err
	}
	scratchName := name + compactSuffix
	scratchDir, err := collectionsRoot.CreateDir(scratchName)
	if err != nil {
		return err
	}

	writeTxn := newTxn()
	newTbl, _, err := table.Create(writeTxn, name, scratchDir, *desc.TableSchema)
	if err != nil {
		return err
	}

	primary := desc.TableSchema.Primary
	var insertErr error
	for row := range seq {
		key, err := primary.Key.ToKey(row)
		if err != nil {
			insertErr = err
			break
		}
		values, err := primary.Values.ToKey(row)
		if err != nil {
			insertErr = err
			break
		}
		if err := newTbl.Insert(writeTxn, key, values); err != nil {
			insertErr = err
			break
		}
	}
	if insertErr != nil {
		return insertErr
	}

	if err := newTbl.Commit(writeTxn); err != nil {
		return err
	}
	newRoots := newTbl.Roots(writeTxn)
	if err := newTbl.Finalize(writeTxn); err != nil {
		return err
	}

	if err := swapInScratch(collectionsRoot, name, scratchDir); err != nil {
		return err
	}

	desc.Roots = newRoots
	if err := cat.Put(desc); err != nil {
		return err
	}

	fmt.Printf("compacted %q: new roots %v\n", name, newRoots)
	return nil
}

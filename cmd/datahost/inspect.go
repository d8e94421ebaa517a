package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/datahost/pkg/btree"
	"github.com/cuemby/datahost/pkg/catalog"
	"github.com/cuemby/datahost/pkg/table"
	"github.com/cuemby/datahost/pkg/txid"
	"github.com/cuemby/datahost/pkg/value"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <collection>",
	Short: "Print a collection's schema, roots, and live entry count",
	Args:  cobra.ExactArgs(1),
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

		dir, err := openCollectionDir(dataDir, name)
		if err != nil {
			return err
		}

		fmt.Printf("collection: %s\n", desc.Name)
		switch desc.Kind {
		case catalog.KindBTree:
			fmt.Println("kind:       btree")
			fmt.Printf("schema:     %s\n", describeSchema(desc.BTreeSchema))
			fmt.Printf("root:       %s\n", desc.Roots["primary"])

			idx, err := btree.Open(name, dir, desc.BTreeSchema, desc.Roots["primary"])
			if err != nil {
				return err
			}
			readTxn := txid.New(0)
			count, err := idx.Len(readTxn, value.FullRange())
			if err != nil {
				return err
			}
			fmt.Printf("entries:    %d\n", count)

		case catalog.KindTable:
			fmt.Println("kind:       table")
			fmt.Printf("primary schema: %s\n", describeSchema(desc.TableSchema.Primary.Combined()))
			for _, aux := range desc.TableSchema.Auxiliary {
				fmt.Printf("auxiliary:      %s (%v)\n", aux.Name, aux.Columns)
			}
			fmt.Println("roots:")
			for idxName, root := range desc.Roots {
				fmt.Printf("  %-12s %s\n", idxName, root)
			}

			tbl, err := table.Open(name, dir, *desc.TableSchema, desc.Roots)
			if err != nil {
				return err
			}
			readTxn := txid.New(0)
			count, err := tbl.Count(readTxn)
			if err != nil {
				return err
			}
			fmt.Printf("rows:       %d\n", count)

		default:
			return fmt.Errorf("collection %q has unknown kind %d", name, desc.Kind)
		}
		return nil
	},
}

func describeSchema(s value.Schema) string {
	out := ""
	for i, col := range s {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s:%s", col.Name, col.Kind)
	}
	return out
}

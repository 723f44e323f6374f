package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/factbase/factbase/internal/conn"
	"github.com/factbase/factbase/internal/debug"
	"github.com/factbase/factbase/internal/fulltext"
	"github.com/factbase/factbase/internal/substrate"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <path>",
	Short: "Print every datom currently in a store, in canonical order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		sub, err := substrate.OpenSQLite(args[0])
		if err != nil {
			return err
		}
		defer sub.Close()

		ft, err := fulltext.Open(fulltextPathFor(args[0]))
		if err != nil {
			return err
		}
		defer ft.Close()

		c, err := conn.Open(ctx, sub, ft)
		if err != nil {
			return err
		}
		schema := c.CurrentSchema().Schema()

		datoms, err := debug.Datoms(ctx, sub, schema, ft)
		if err != nil {
			return err
		}
		fmt.Println(debug.RenderEDN(datoms))
		return nil
	},
}

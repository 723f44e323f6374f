package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/factbase/factbase/internal/conn"
	"github.com/factbase/factbase/internal/fulltext"
	"github.com/factbase/factbase/internal/substrate"
)

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open (creating if absent) a SQLite-backed store and report whether its bootstrap schema is present",
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
		fmt.Printf("opened %s\n", args[0])
		if _, ok := schema.IdentForEntid(1); ok {
			fmt.Println("bootstrap schema present: :db/ident")
		}
		return nil
	},
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/factbase/factbase/internal/conn"
	"github.com/factbase/factbase/internal/fulltext"
	"github.com/factbase/factbase/internal/substrate"
)

var transactCmd = &cobra.Command{
	Use:   "transact <path> <tx-text>",
	Short: "Apply a transaction (data-notation text) to a store and print its report",
	Args:  cobra.ExactArgs(2),
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

		report, err := c.Transact(ctx, sub, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("tx %d\n", report.TxID)
		for tempid, e := range report.Tempids {
			fmt.Printf("%s -> %d\n", tempid, e)
		}
		return nil
	},
}

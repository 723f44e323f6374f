package debug

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/factbase/factbase/internal/core"
	"github.com/factbase/factbase/internal/substrate"
)

// DumpSQLQuery executes query with args and formats the result as a
// tab-separated, newline-terminated string suitable for debug printing:
// the query text, then the column names, then each row, with columns
// padded by tabs to align at 8-column tab stops.
// Grounded in debug.rs's dump_sql_query, using text/tabwriter in place of
// the Rust tabwriter crate.
func DumpSQLQuery(ctx context.Context, q substrate.Querier, query string, args ...any) (string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return "", core.NewSubstrateError("dump_sql_query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", core.NewSubstrateError("dump_sql_query columns", err)
	}

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 8, 2, '\t', 0)
	fmt.Fprintf(tw, "%s\n", query)
	for _, c := range cols {
		fmt.Fprintf(tw, "%s\t", c)
	}
	fmt.Fprint(tw, "\n")

	dest := make([]any, len(cols))
	scanBufs := make([]any, len(cols))
	for i := range dest {
		scanBufs[i] = new(any)
		dest[i] = scanBufs[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return "", core.NewSubstrateError("dump_sql_query scan", err)
		}
		for _, d := range dest {
			fmt.Fprintf(tw, "%v\t", *(d.(*any)))
		}
		fmt.Fprint(tw, "\n")
	}
	if err := rows.Err(); err != nil {
		return "", core.NewSubstrateError("dump_sql_query rows", err)
	}
	if err := tw.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// DumpDatoms is a convenience wrapper over DumpSQLQuery for the datoms
// table specifically, the table the CLI dump command most often wants.
func DumpDatoms(ctx context.Context, q substrate.Querier) (string, error) {
	return DumpSQLQuery(ctx, q, `SELECT e, a, v, value_type_tag, tx, added FROM datoms ORDER BY e, a, value_type_tag, v, tx`)
}

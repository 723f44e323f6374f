package debug

import (
	"context"
	"strings"
	"testing"

	"github.com/factbase/factbase/internal/core"
)

func TestDumpSQLQueryIncludesQueryColumnsAndRows(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubstrate(t)
	insertDatom(t, sub, 1, 100, core.LongValue(42), 1000, true)

	out, err := DumpSQLQuery(ctx, sub, `SELECT e, v FROM datoms`)
	if err != nil {
		t.Fatalf("DumpSQLQuery: %v", err)
	}
	if !strings.Contains(out, "SELECT e, v FROM datoms") {
		t.Fatalf("expected output to include the query text, got %q", out)
	}
	if !strings.Contains(out, "e") || !strings.Contains(out, "v") {
		t.Fatalf("expected output to include column names, got %q", out)
	}
	if !strings.Contains(out, "1") || !strings.Contains(out, "42") {
		t.Fatalf("expected output to include the row's values, got %q", out)
	}
}

func TestDumpDatomsOrdersCanonically(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubstrate(t)
	insertDatom(t, sub, 2, 100, core.LongValue(1), 1000, true)
	insertDatom(t, sub, 1, 100, core.LongValue(2), 1000, true)

	out, err := DumpDatoms(ctx, sub)
	if err != nil {
		t.Fatalf("DumpDatoms: %v", err)
	}
	firstRowIdx := strings.Index(out, "1\t")
	secondRowIdx := strings.Index(out, "2\t")
	if firstRowIdx == -1 || secondRowIdx == -1 || firstRowIdx > secondRowIdx {
		t.Fatalf("expected entity 1's row before entity 2's row, got %q", out)
	}
}

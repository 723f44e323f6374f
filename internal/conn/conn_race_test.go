package conn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/factbase/factbase/internal/core"
)

// Grounded in store_race_test.go's TestConcurrentTransactions_10Goroutines:
// many goroutines transacting concurrently against one Connection must
// never lose a write or hand out a duplicate entid, since the substrate's
// IMMEDIATE transaction behavior serializes writers and Commit's
// generation check is a belt-and-braces guard behind that.
func TestConcurrentTransactionsManyGoroutines(t *testing.T) {
	ctx := context.Background()
	c, sub := newTestConnection(t)

	const goroutines = 10
	var wg sync.WaitGroup
	var succeeded atomic.Int64
	errs := make(chan error, goroutines)
	allocated := make(chan core.Entid, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tempid := fmt.Sprintf("tempid-%d", i)
			text := fmt.Sprintf(`[[:db/add %q :db.schema/attribute "worker-%d"]]`, tempid, i)
			report, err := c.Transact(ctx, sub, text)
			if err != nil {
				errs <- err
				return
			}
			allocated <- report.Tempids[tempid]
			succeeded.Add(1)
		}(i)
	}
	wg.Wait()
	close(errs)
	close(allocated)

	for err := range errs {
		t.Errorf("unexpected transact error: %v", err)
	}
	require.EqualValues(t, goroutines, succeeded.Load())

	seen := make(map[core.Entid]bool)
	pm := c.currentMetadata().PartitionMap
	userPart := pm[core.PartitionUser]
	require.EqualValues(t, core.USER0+goroutines, userPart.Index)
	for e := range allocated {
		require.False(t, seen[e], "duplicate entid %d allocated", e)
		seen[e] = true
	}
	require.EqualValues(t, goroutines, len(seen))
}

package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ store.Store = (*store.MemoryStore)(nil)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) store.Store { return store.NewMemoryStore() })
}

func TestMemoryStore_ConcurrentResultWritesHaveOneWinner(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	job := seedJob(t, s)
	uploadAll(t, s, job)
	require.NoError(t, s.QueueJob(ctx, alice, job.ObjectID))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		conflict int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(q store.Queries) error {
				if _, err := q.AddJobResult(ctx, alice, job.ObjectID, "/", models.ResultActualVsModeled, models.FormatArrow, []byte("r")); err != nil {
					return err
				}
				return q.SetJobCompletion(ctx, alice, job.ObjectID, models.JobStatusComplete)
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if assert.ErrorIs(t, err, store.ErrAlreadyComplete) {
				conflict++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
	assert.Equal(t, 7, conflict)
}

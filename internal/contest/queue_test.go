package contest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-prep-platform/pkg/kv"
)

func TestEnqueueValidation(t *testing.T) {
	q := NewQueue(nil)

	err := q.Enqueue(context.Background(), &Batch{UserID: "u"})
	assert.Error(t, err, "missing contest_id must be rejected")

	err = q.Enqueue(context.Background(), &Batch{ContestID: "c", UserID: "u"})
	assert.Error(t, err, "empty batch must be rejected")
}

// testStore connects to TEST_REDIS_URL or skips.
func testStore(t *testing.T) *kv.Store {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis integration test")
	}
	store, err := kv.Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestDequeueExclusivity verifies the at-most-one-worker delivery contract:
// with two concurrent consumers and ten queued batches, exactly ten batches
// are processed and none twice.
func TestDequeueExclusivity(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	queue := NewQueue(store)

	contestID := uuid.NewString()
	key := kv.SubmissionQueueKey(contestID)
	t.Cleanup(func() { store.Client.Del(ctx, key) })

	const batches = 10
	for i := 0; i < batches; i++ {
		err := queue.Enqueue(ctx, &Batch{
			ContestID: contestID,
			UserID:    fmt.Sprintf("user-%d", i),
			Submissions: []Submission{
				{QuestionID: uuid.NewString(), UserAnswer: []string{"5"}, TimeTaken: 1},
			},
		})
		require.NoError(t, err)
	}

	var (
		mu       sync.Mutex
		received = make(map[string]int)
		wg       sync.WaitGroup
	)

	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := queue.Dequeue(ctx, key, 500*time.Millisecond)
				if err != nil {
					return // queue drained
				}
				mu.Lock()
				received[batch.UserID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, received, batches)
	for user, count := range received {
		assert.Equal(t, 1, count, "batch for %s delivered more than once", user)
	}
}

func TestQueueLenAndScan(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	queue := NewQueue(store)

	contestID := uuid.NewString()
	key := kv.SubmissionQueueKey(contestID)
	t.Cleanup(func() { store.Client.Del(ctx, key) })

	require.NoError(t, queue.Enqueue(ctx, &Batch{
		ContestID:   contestID,
		UserID:      "u1",
		Submissions: []Submission{{QuestionID: uuid.NewString(), UserAnswer: []string{"7"}}},
	}))

	n, err := queue.Len(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, lengths, err := queue.ActiveQueues(ctx)
	require.NoError(t, err)
	assert.Contains(t, active, key)
	assert.Equal(t, int64(1), lengths[key])
}

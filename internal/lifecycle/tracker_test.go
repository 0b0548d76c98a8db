package lifecycle

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"VocalForge/internal/models"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testDelay = 30 * time.Millisecond

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := util.InitDatabase("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func insertProcessing(t *testing.T, db *gorm.DB, userID string) *models.Generation {
	t.Helper()
	g := &models.Generation{
		ID:       uuid.NewString(),
		UserID:   userID,
		Prompt:   "late night synthwave",
		Title:    models.DeriveTitle("late night synthwave"),
		Status:   models.GenerationProcessing,
		Duration: 60,
		Waveform: models.GenerateWaveform(rand.New(rand.NewSource(7))),
		Cost:     models.CostStandard,
	}
	require.NoError(t, models.CreateGeneration(db, g))
	return g
}

func statusOf(t *testing.T, db *gorm.DB, id string) models.GenerationStatus {
	t.Helper()
	var g models.Generation
	require.NoError(t, db.Where("id = ?", id).Take(&g).Error)
	return g.Status
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transition never finished")
	}
}

func TestSubmitCompletesOnceAfterDelay(t *testing.T) {
	db := newTestDB(t)
	sig := util.NewSignals()
	var completed atomic.Int32
	sig.Connect(models.SigGenerationCompleted, func(sender any, params ...any) {
		g := sender.(*models.Generation)
		assert.Equal(t, models.GenerationCompleted, g.Status)
		completed.Add(1)
	})

	tr := New(db, WithDelay(testDelay), WithSignals(sig))
	defer tr.Stop()

	g := insertProcessing(t, db, "u1")
	h, err := tr.Submit(g)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Pending())
	assert.Equal(t, models.GenerationProcessing, statusOf(t, db, g.ID))

	waitDone(t, h)
	assert.True(t, h.Fired())
	assert.Equal(t, models.GenerationCompleted, statusOf(t, db, g.ID))
	assert.Equal(t, int32(1), completed.Load())
	assert.Equal(t, 0, tr.Pending())

	// 再次提交同一条已完成的记录会被拒绝
	g.Status = models.GenerationCompleted
	_, err = tr.Submit(g)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidStatus))
}

func TestSubmitRejectsInvalidRecords(t *testing.T) {
	tr := New(newTestDB(t), WithDelay(testDelay), WithSignals(util.NewSignals()))
	defer tr.Stop()

	_, err := tr.Submit(nil)
	assert.Error(t, err)
	_, err = tr.Submit(&models.Generation{Status: models.GenerationProcessing})
	assert.Error(t, err)
	_, err = tr.Submit(&models.Generation{ID: "x", Status: models.GenerationPending})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidStatus))
}

func TestDeleteBeforeDelayPreventsWrite(t *testing.T) {
	db := newTestDB(t)
	sig := util.NewSignals()
	var completed atomic.Int32
	sig.Connect(models.SigGenerationCompleted, func(any, ...any) { completed.Add(1) })

	tr := New(db, WithDelay(testDelay), WithSignals(sig))
	defer tr.Stop()

	g := insertProcessing(t, db, "u1")
	h, err := tr.Submit(g)
	require.NoError(t, err)

	_, err = models.DeleteGeneration(db, "u1", g.ID)
	require.NoError(t, err)
	assert.True(t, tr.Cancel(g.ID))
	waitDone(t, h)

	time.Sleep(2 * testDelay)
	assert.False(t, h.Fired())
	assert.Zero(t, completed.Load())
	var n int64
	db.Model(&models.Generation{}).Where("id = ?", g.ID).Count(&n)
	assert.Zero(t, n)
}

func TestLateFireAfterDeleteIsNoop(t *testing.T) {
	db := newTestDB(t)
	sig := util.NewSignals()
	var completed atomic.Int32
	sig.Connect(models.SigGenerationCompleted, func(any, ...any) { completed.Add(1) })

	tr := New(db, WithDelay(testDelay), WithSignals(sig))
	defer tr.Stop()

	g := insertProcessing(t, db, "u1")
	h, err := tr.Submit(g)
	require.NoError(t, err)

	// 不取消定时器，只删除记录
	_, err = models.DeleteGeneration(db, "u1", g.ID)
	require.NoError(t, err)
	waitDone(t, h)

	assert.True(t, h.Fired())
	assert.Zero(t, completed.Load())
	var n int64
	db.Model(&models.Generation{}).Where("id = ?", g.ID).Count(&n)
	assert.Zero(t, n)
}

func TestConcurrentSubmissionsCompleteIndependently(t *testing.T) {
	db := newTestDB(t)
	sig := util.NewSignals()
	var mu sync.Mutex
	seen := map[string]int{}
	sig.Connect(models.SigGenerationCompleted, func(sender any, _ ...any) {
		mu.Lock()
		seen[sender.(*models.Generation).ID]++
		mu.Unlock()
	})

	tr := New(db, WithDelay(testDelay), WithSignals(sig))
	defer tr.Stop()

	const n = 10
	gens := make([]*models.Generation, n)
	for i := range gens {
		gens[i] = insertProcessing(t, db, "u1")
	}

	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := range gens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := tr.Submit(gens[i])
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		require.NotNil(t, h)
		waitDone(t, h)
	}
	for _, g := range gens {
		assert.Equal(t, models.GenerationCompleted, statusOf(t, db, g.ID))
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, n)
	for id, c := range seen {
		assert.Equal(t, 1, c, id)
	}
}

func TestSubmitTwiceReturnsSameHandle(t *testing.T) {
	db := newTestDB(t)
	tr := New(db, WithDelay(time.Hour), WithSignals(util.NewSignals()))
	defer tr.Stop()

	g := insertProcessing(t, db, "u1")
	h1, err := tr.Submit(g)
	require.NoError(t, err)
	h2, err := tr.Submit(g)
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	assert.Equal(t, 1, tr.Pending())

	assert.True(t, h1.Cancel())
	assert.Equal(t, 0, tr.Pending())
	assert.False(t, tr.Cancel(g.ID))
}

func TestResumeUsesRemainingDelay(t *testing.T) {
	db := newTestDB(t)
	tr := New(db, WithDelay(time.Hour), WithSignals(util.NewSignals()))
	defer tr.Stop()

	overdue := insertProcessing(t, db, "u1")
	db.Model(&models.Generation{}).Where("id = ?", overdue.ID).Update("created_at", time.Now().Add(-2*time.Hour))
	fresh := insertProcessing(t, db, "u1")
	done := insertProcessing(t, db, "u1")
	_, err := models.CompleteGeneration(db, done.ID)
	require.NoError(t, err)

	records, err := models.ListProcessing(db)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 2, tr.Resume(records))

	require.Eventually(t, func() bool {
		return statusOf(t, db, overdue.ID) == models.GenerationCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.GenerationProcessing, statusOf(t, db, fresh.ID))
	assert.Equal(t, 1, tr.Pending())
}

func TestStopCancelsPending(t *testing.T) {
	db := newTestDB(t)
	tr := New(db, WithDelay(testDelay), WithSignals(util.NewSignals()))

	g := insertProcessing(t, db, "u1")
	h, err := tr.Submit(g)
	require.NoError(t, err)
	tr.Stop()

	waitDone(t, h)
	time.Sleep(2 * testDelay)
	assert.Equal(t, models.GenerationProcessing, statusOf(t, db, g.ID))
	assert.Equal(t, 0, tr.Pending())
}

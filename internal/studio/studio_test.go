package studio

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"VocalForge/internal/lifecycle"
	"VocalForge/internal/models"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/search"
	"VocalForge/pkg/stores"
	"VocalForge/pkg/util"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testDelay = 40 * time.Millisecond

type fixture struct {
	db      *gorm.DB
	sig     *util.Signals
	tracker *lifecycle.Tracker
	store   stores.Store
	studio  *Studio
	sess    *models.Session
}

func newFixture(t *testing.T, credits int, opts ...Option) *fixture {
	t.Helper()
	db, err := util.InitDatabase("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	sig := util.NewSignals()
	tr := lifecycle.New(db, lifecycle.WithDelay(testDelay), lifecycle.WithSignals(sig))
	t.Cleanup(tr.Stop)

	store := stores.NewFsStore(afero.NewMemMapFs(), "/api/files")
	opts = append([]Option{WithStore(store), WithSignals(sig), WithSeed(1)}, opts...)
	st := New(db, tr, Config{StartingCredits: credits}, opts...)

	u, _, err := st.Register(context.Background(), "Artist@Example.com", "secret123", "Test Artist")
	require.NoError(t, err)
	return &fixture{
		db: db, sig: sig, tracker: tr, store: store, studio: st,
		sess: &models.Session{UserID: u.ID, Email: u.Email},
	}
}

func (f *fixture) status(t *testing.T, id string) models.GenerationStatus {
	t.Helper()
	var g models.Generation
	require.NoError(t, f.db.Where("id = ?", id).Take(&g).Error)
	return g.Status
}

func TestComposeDebitsAndCompletes(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	var mu sync.Mutex
	var created []string
	f.sig.Connect(models.SigGenerationCreated, func(sender any, params ...any) {
		mu.Lock()
		created = append(created, sender.(*models.Generation).ID)
		mu.Unlock()
	})

	g, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "  Neon skyline chase at dawn ", Duration: 60})
	require.NoError(t, err)
	assert.Equal(t, models.GenerationProcessing, g.Status)
	assert.Equal(t, 60, g.Duration)
	assert.Len(t, g.Waveform, models.WaveformLength)
	assert.Equal(t, "Neon skyline chase", g.Title)
	assert.Equal(t, models.CostStandard, g.Cost)
	assert.Empty(t, g.AudioURL)

	p, err := f.studio.Profile(ctx, f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, 60, p.Credits)

	require.Eventually(t, func() bool {
		return f.status(t, g.ID) == models.GenerationCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.tracker.Pending())

	mu.Lock()
	assert.Equal(t, []string{g.ID}, created)
	mu.Unlock()
}

func TestComposeRejectsBeforeAnyWrite(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	_, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "anything", Duration: 30})
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientCredits))

	_, err = f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "   ", Duration: 30})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidPrompt))

	_, err = f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "ok", Duration: 45})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidDuration))

	_, err = f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "ok", Duration: 30, ModelID: "missing"})
	assert.True(t, apperrors.Is(err, apperrors.ErrModelNotFound))

	n, err := models.CountGenerations(f.db, f.sess.UserID)
	require.NoError(t, err)
	assert.Zero(t, n)
	p, err := models.GetProfile(f.db, f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, 30, p.Credits)
}

func TestComposeWithBeat(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	vm, err := f.studio.CreateVoiceModel(ctx, f.sess, "Velvet")
	require.NoError(t, err)

	data := []byte("RIFF....WAVEfmt ")
	g, err := f.studio.Compose(ctx, f.sess, ComposeInput{
		Prompt:   "drill with piano",
		Duration: 90,
		ModelID:  vm.ID,
		Beat:     &Beat{Filename: "loop.WAV", Size: int64(len(data)), ContentType: "audio/wav", Body: bytes.NewReader(data)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.CostWithBeat, g.Cost)
	assert.Equal(t, "Velvet", g.ModelName)
	assert.True(t, strings.HasPrefix(g.BeatKey, "beats/"+f.sess.UserID+"/"))
	assert.True(t, strings.HasSuffix(g.BeatKey, ".wav"))
	assert.Equal(t, "/api/files/"+g.BeatKey, g.BeatURL)

	ok, err := f.store.Exists(ctx, g.BeatKey)
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := f.studio.Profile(ctx, f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, 40, p.Credits)

	_, err = f.studio.DeleteGeneration(ctx, f.sess, g.ID)
	require.NoError(t, err)
	ok, err = f.store.Exists(ctx, g.BeatKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestComposeBeatTooLarge(t *testing.T) {
	f := newFixture(t, 100)
	_, err := f.studio.Compose(context.Background(), f.sess, ComposeInput{
		Prompt: "x", Duration: 30,
		Beat: &Beat{Filename: "big.mp3", Size: MaxBeatSize + 1, Body: bytes.NewReader(nil)},
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrBeatTooLarge))
}

func TestDeleteBeforeDelayPreventsWrite(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	g, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "short lived", Duration: 30})
	require.NoError(t, err)
	_, err = f.studio.DeleteGeneration(ctx, f.sess, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.tracker.Pending())

	time.Sleep(3 * testDelay)
	var n int64
	require.NoError(t, f.db.Model(&models.Generation{}).Where("id = ?", g.ID).Count(&n).Error)
	assert.Zero(t, n)

	_, err = f.studio.DeleteGeneration(ctx, f.sess, g.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestDeleteIsOwnerScoped(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	g, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "mine", Duration: 30})
	require.NoError(t, err)

	other := &models.Session{UserID: "someone-else"}
	_, err = f.studio.DeleteGeneration(ctx, other, g.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, 1, f.tracker.Pending())
}

func TestConcurrentComposeIndependentRecords(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "same prompt every time", Duration: 30})
			if assert.NoError(t, err) {
				ids[i] = g.ID
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, n)

	p, err := models.GetProfile(f.db, f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1000-n*models.CostStandard, p.Credits)

	require.Eventually(t, func() bool {
		var c int64
		f.db.Model(&models.Generation{}).Where("status = ?", models.GenerationCompleted).Count(&c)
		return c == n
	}, 3*time.Second, 10*time.Millisecond)
}

type fakeSearcher struct {
	ids []string
	err error
}

func (s fakeSearcher) Find(ctx context.Context, userID, keyword string, limit int) ([]string, error) {
	return s.ids, s.err
}

func TestListGenerations(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	a, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "Lofi rain study", Duration: 30})
	require.NoError(t, err)
	b, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "Trap anthem loud", Duration: 30})
	require.NoError(t, err)

	all, err := f.studio.ListGenerations(ctx, f.sess, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := f.studio.ListGenerations(ctx, f.sess, "LOFI", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	f.studio.search = fakeSearcher{ids: []string{b.ID}}
	got, err = f.studio.ListGenerations(ctx, f.sess, "anthem", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	// 索引命中但标题与模型名都不包含 q 的记录被剔除
	f.studio.search = fakeSearcher{ids: []string{a.ID, b.ID}}
	got, err = f.studio.ListGenerations(ctx, f.sess, "anthem", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	// 索引出错时退回数据库过滤
	f.studio.search = fakeSearcher{err: apperrors.New("index closed")}
	got, err = f.studio.ListGenerations(ctx, f.sess, "trap", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)
}

func TestListGenerationsIndexMatchesDatabase(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	m, err := f.studio.CreateVoiceModel(ctx, f.sess, "Velvet Tenor")
	require.NoError(t, err)
	ocean, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "Ocean Dreams rising", Duration: 30})
	require.NoError(t, err)
	lofi, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "Lofi Night drive with synth pads", Duration: 30, ModelID: m.ID})
	require.NoError(t, err)

	idx, err := search.Open(search.Config{})
	require.NoError(t, err)
	defer idx.Close()
	for _, g := range []*models.Generation{ocean, lofi} {
		name := ""
		if g.ModelID != nil {
			name = m.Name
		}
		require.NoError(t, idx.Put(ctx, search.GenerationDoc{
			ID: g.ID, UserID: g.UserID, Title: g.Title, ModelName: name,
			Status: string(g.Status), CreatedAt: g.CreatedAt,
		}))
	}

	cases := []struct {
		q    string
		want []string
	}{
		{"ream", []string{ocean.ID}},    // 词中子串
		{"NIGHT DR", []string{lofi.ID}}, // 跨词、大小写
		{"lvet", []string{lofi.ID}},     // 模型名
		{"synth", nil},                  // 仅出现在提示词中
	}
	for _, tc := range cases {
		f.studio.search = nil
		fromDB, err := f.studio.ListGenerations(ctx, f.sess, tc.q, 0)
		require.NoError(t, err)

		f.studio.search = idx
		fromIndex, err := f.studio.ListGenerations(ctx, f.sess, tc.q, 0)
		require.NoError(t, err)

		assert.Equal(t, tc.want, generationIDs(fromDB), "database q=%q", tc.q)
		assert.Equal(t, tc.want, generationIDs(fromIndex), "index q=%q", tc.q)
	}
}

func generationIDs(gens []models.Generation) []string {
	var ids []string
	for _, g := range gens {
		ids = append(ids, g.ID)
	}
	return ids
}

func TestProfileCacheInvalidation(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	p, err := f.studio.Profile(ctx, f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Test Artist", p.FullName)

	name := "  Renamed  "
	p, err = f.studio.UpdateProfile(ctx, f.sess.UserID, &name, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.FullName)

	p, err = f.studio.Profile(ctx, f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.FullName)
}

type countingObserver struct{ hits, misses int }

func (o *countingObserver) RecordCacheHit(string)  { o.hits++ }
func (o *countingObserver) RecordCacheMiss(string) { o.misses++ }

func TestProfileCacheObserved(t *testing.T) {
	obs := &countingObserver{}
	f := newFixture(t, 100, WithCacheObserver(obs))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.studio.Profile(ctx, f.sess.UserID)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, obs.misses)
	assert.Equal(t, 2, obs.hits)
}

func TestDashboardAndOptions(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "track", Duration: 30})
		require.NoError(t, err)
	}
	_, err := f.studio.CreateVoiceModel(ctx, f.sess, "Aria")
	require.NoError(t, err)

	d, err := f.studio.Dashboard(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, int64(7), d.Generations)
	assert.Equal(t, int64(1), d.VoiceModels)
	assert.Len(t, d.Recent, RecentCount)
	assert.Equal(t, 1000-7*models.CostStandard, d.Credits)

	o := f.studio.Options()
	assert.Equal(t, []int{30, 60, 90, 120}, o.Durations)
	assert.Equal(t, 1000, o.StartingCredits)
	assert.Equal(t, 0, o.CompletionSeconds)
}

func TestResumeReschedulesProcessing(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	g, err := f.studio.Compose(ctx, f.sess, ComposeInput{Prompt: "survives restart", Duration: 30})
	require.NoError(t, err)

	// 模拟重启：旧 tracker 停止，新 tracker 接管
	f.tracker.Stop()
	tr := lifecycle.New(f.db, lifecycle.WithDelay(testDelay), lifecycle.WithSignals(f.sig))
	defer tr.Stop()
	st := New(f.db, tr, Config{}, WithSignals(f.sig))

	n, err := st.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool {
		return f.status(t, g.ID) == models.GenerationCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBeatKey(t *testing.T) {
	k := BeatKey("u1", `C:\music\My Beat.MP3`)
	assert.True(t, strings.HasPrefix(k, "beats/u1/"))
	assert.True(t, strings.HasSuffix(k, ".mp3"))
	assert.NotContains(t, k, "My Beat")

	k = BeatKey("u1", "noext")
	assert.Len(t, k, len("beats/u1/")+36)
}

package models

import (
	"math/rand"
	"strings"
	"testing"

	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := util.InitDatabase("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func newTestUser(t *testing.T, db *gorm.DB, credits int) *User {
	t.Helper()
	u, p, err := CreateUser(db, uuid.NewString()+"@example.com", "secret123", "Test User", credits)
	require.NoError(t, err)
	require.Equal(t, credits, p.Credits)
	return u
}

func newProcessing(t *testing.T, db *gorm.DB, userID string) *Generation {
	t.Helper()
	g := &Generation{
		ID:       uuid.NewString(),
		UserID:   userID,
		Prompt:   "dark trap beat with choir",
		Title:    DeriveTitle("dark trap beat with choir"),
		Status:   GenerationProcessing,
		Duration: 60,
		Waveform: GenerateWaveform(rand.New(rand.NewSource(1))),
		Cost:     CostStandard,
	}
	require.NoError(t, CreateGeneration(db, g))
	return g
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "dark trap beat", DeriveTitle("dark trap beat with choir"))
	assert.Equal(t, "lofi", DeriveTitle("  lofi  "))
	assert.Equal(t, DefaultTitle, DeriveTitle("   "))
}

func TestValidatePromptAndDuration(t *testing.T) {
	p, err := ValidatePrompt("  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", p)

	_, err = ValidatePrompt("   ")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidPrompt))
	_, err = ValidatePrompt(strings.Repeat("a", MaxPromptLength+1))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidPrompt))
	_, err = ValidatePrompt(strings.Repeat("音", MaxPromptLength))
	assert.NoError(t, err)

	for _, d := range AllowedDurations {
		assert.True(t, ValidDuration(d))
	}
	assert.False(t, ValidDuration(45))
	assert.False(t, ValidDuration(0))
}

func TestGenerateWaveform(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		w := GenerateWaveform(r)
		require.Len(t, w, WaveformLength)
		for _, v := range w {
			assert.GreaterOrEqual(t, v, WaveformMin)
			assert.Less(t, v, WaveformMax)
		}
	}
	assert.Equal(t, 40, CostFor(false))
	assert.Equal(t, 60, CostFor(true))
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	_, _, err := CreateUser(db, "Singer@Example.com", "pw123456", "Singer", 100)
	require.NoError(t, err)

	_, _, err = CreateUser(db, "singer@example.com ", "pw123456", "Other", 100)
	assert.True(t, apperrors.Is(err, apperrors.ErrEmailTaken))

	u, err := Authenticate(db, "SINGER@example.com", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, "singer@example.com", u.Email)

	_, err = Authenticate(db, "singer@example.com", "wrong")
	assert.True(t, apperrors.Is(err, apperrors.ErrBadCredentials))
	_, err = Authenticate(db, "nobody@example.com", "pw123456")
	assert.True(t, apperrors.Is(err, apperrors.ErrBadCredentials))
}

func TestDeductCredits(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, 100)

	bal, err := DeductCredits(db, u.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, 60, bal)

	bal, err = DeductCredits(db, u.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, 0, bal)

	bal, err = DeductCredits(db, u.ID, 40)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientCredits))
	assert.Equal(t, 0, bal)

	_, err = DeductCredits(db, "missing", 40)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestUpdateProfile(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, 100)
	before, err := GetProfile(db, u.ID)
	require.NoError(t, err)

	name := "DJ Nova"
	p, err := UpdateProfile(db, u.ID, &name, nil)
	require.NoError(t, err)
	assert.Equal(t, "DJ Nova", p.FullName)
	assert.Equal(t, TierStarter, p.SubscriptionTier)
	assert.False(t, p.UpdatedAt.Before(before.UpdatedAt))

	_, err = UpdateProfile(db, "missing", &name, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestCompleteGenerationIsGuarded(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, 100)
	g := newProcessing(t, db, u.ID)

	ok, err := CompleteGeneration(db, g.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// 第二次写入不生效
	ok, err = CompleteGeneration(db, g.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// 终态不能回到 Failed
	ok, err = TransitionGeneration(db, g.ID, GenerationFailed)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = TransitionGeneration(db, g.ID, GenerationProcessing)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidStatus))

	got, err := GetGeneration(db, u.ID, g.ID)
	require.NoError(t, err)
	assert.Equal(t, GenerationCompleted, got.Status)
	assert.Len(t, got.Waveform, WaveformLength)
	assert.Empty(t, got.AudioURL)
}

func TestFailedTransitionIsLegal(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, 100)
	g := newProcessing(t, db, u.ID)

	ok, err := TransitionGeneration(db, g.ID, GenerationFailed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CompleteGeneration(db, g.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompleteAfterDeleteWritesNothing(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, 100)
	g := newProcessing(t, db, u.ID)

	deleted, err := DeleteGeneration(db, u.ID, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ID, deleted.ID)

	ok, err := CompleteGeneration(db, g.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	var n int64
	db.Model(&Generation{}).Where("id = ?", g.ID).Count(&n)
	assert.Zero(t, n)

	_, err = DeleteGeneration(db, u.ID, g.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestOwnerScoping(t *testing.T) {
	db := newTestDB(t)
	owner := newTestUser(t, db, 100)
	other := newTestUser(t, db, 100)
	g := newProcessing(t, db, owner.ID)

	_, err := GetGeneration(db, other.ID, g.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	_, err = DeleteGeneration(db, other.ID, g.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	m, err := CreateVoiceModel(db, owner.ID, "Velvet")
	require.NoError(t, err)
	_, err = GetVoiceModel(db, other.ID, m.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrModelNotFound))
}

func TestVoiceModels(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, 100)

	_, err := CreateVoiceModel(db, u.ID, "  ")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidName))
	_, err = CreateVoiceModel(db, u.ID, strings.Repeat("x", MaxVoiceNameLength+1))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidName))

	m, err := CreateVoiceModel(db, u.ID, "Velvet Tenor")
	require.NoError(t, err)
	assert.Equal(t, VoiceModelTraining, m.Status)
	assert.Equal(t, DefaultVoiceQuality, m.Quality)
	assert.Equal(t, DefaultVoiceGradient, m.ColorGradient)
	_, err = CreateVoiceModel(db, u.ID, "Raspy Alto")
	require.NoError(t, err)

	all, err := ListVoiceModels(db, u.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := ListVoiceModels(db, u.ID, "velvet")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Velvet Tenor", found[0].Name)

	n, err := CountVoiceModels(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestListGenerationsFiltersByTitleAndModel(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, 100)
	m, err := CreateVoiceModel(db, u.ID, "Velvet Tenor")
	require.NoError(t, err)

	a := newProcessing(t, db, u.ID)
	b := &Generation{
		ID: uuid.NewString(), UserID: u.ID, ModelID: &m.ID,
		Prompt: "sunny reggae", Title: "sunny reggae", Status: GenerationProcessing,
		Duration: 30, Waveform: make([]int, WaveformLength), Cost: CostStandard,
	}
	require.NoError(t, CreateGeneration(db, b))

	all, err := ListGenerations(db, u.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	byModel, err := ListGenerations(db, u.ID, "VELVET", 0)
	require.NoError(t, err)
	require.Len(t, byModel, 1)
	assert.Equal(t, b.ID, byModel[0].ID)
	assert.Equal(t, "Velvet Tenor", byModel[0].ModelName)

	byTitle, err := ListGenerations(db, u.ID, "trap", 0)
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, a.ID, byTitle[0].ID)

	limited, err := ListGenerations(db, u.ID, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	ordered, err := GetGenerationsByIDs(db, u.ID, []string{b.ID, a.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, b.ID, ordered[0].ID)

	processing, err := ListProcessing(db)
	require.NoError(t, err)
	require.Len(t, processing, 2)
	names := map[string]string{}
	for _, g := range processing {
		names[g.ID] = g.ModelName
	}
	assert.Equal(t, "Velvet Tenor", names[b.ID])
	assert.Equal(t, "", names[a.ID])
}

package studio

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"path"
	"strings"
	"sync"
	"time"

	"VocalForge/internal/lifecycle"
	"VocalForge/internal/models"
	"VocalForge/pkg/cache"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/logger"
	"VocalForge/pkg/stores"
	"VocalForge/pkg/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// MaxBeatSize 伴奏文件上限
	MaxBeatSize       int64 = 50 << 20
	DefaultProfileTTL       = 5 * time.Minute
	RecentCount             = 5
)

// Searcher 生成记录全文检索，返回按相关顺序排列的 id
type Searcher interface {
	Find(ctx context.Context, userID, keyword string, limit int) ([]string, error)
}

type Config struct {
	StartingCredits int
	MaxBeatSize     int64
	ProfileTTL      time.Duration
}

// CacheObserver 记录缓存命中情况
type CacheObserver interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
}

// Studio 组合积分、生成记录与状态跟踪
type Studio struct {
	db      *gorm.DB
	tracker *lifecycle.Tracker
	store   stores.Store
	cache   cache.Cache
	search  Searcher
	obs     CacheObserver
	sig     *util.Signals
	cfg     Config

	rndMu sync.Mutex
	rnd   *rand.Rand
}

type Option func(*Studio)

func WithStore(s stores.Store) Option { return func(st *Studio) { st.store = s } }

func WithCache(c cache.Cache) Option { return func(st *Studio) { st.cache = c } }

func WithSearcher(s Searcher) Option { return func(st *Studio) { st.search = s } }

func WithCacheObserver(o CacheObserver) Option { return func(st *Studio) { st.obs = o } }

func WithSignals(sig *util.Signals) Option { return func(st *Studio) { st.sig = sig } }

// WithSeed 固定波形随机源
func WithSeed(seed int64) Option {
	return func(st *Studio) { st.rnd = rand.New(rand.NewSource(seed)) }
}

func New(db *gorm.DB, tracker *lifecycle.Tracker, cfg Config, opts ...Option) *Studio {
	if cfg.MaxBeatSize <= 0 {
		cfg.MaxBeatSize = MaxBeatSize
	}
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = DefaultProfileTTL
	}
	st := &Studio{
		db:      db,
		tracker: tracker,
		cfg:     cfg,
		sig:     util.Sig(),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(st)
	}
	if st.cache == nil {
		st.cache = cache.NewLocalCache(cache.DefaultLocalConfig())
	}
	return st
}

// BeatLimit 生效的伴奏大小上限
func (st *Studio) BeatLimit() int64 { return st.cfg.MaxBeatSize }

// Store 伴奏存储，未配置时为 nil
func (st *Studio) Store() stores.Store { return st.store }

// Beat 上传的伴奏文件
type Beat struct {
	Filename    string
	Size        int64
	ContentType string
	Body        io.Reader
}

type ComposeInput struct {
	Prompt   string
	Duration int
	ModelID  string
	Beat     *Beat
}

// Compose 校验、扣费、落库并交给 tracker。余额不足时不产生任何写入
func (st *Studio) Compose(ctx context.Context, sess *models.Session, in ComposeInput) (*models.Generation, error) {
	prompt, err := models.ValidatePrompt(in.Prompt)
	if err != nil {
		return nil, err
	}
	if !models.ValidDuration(in.Duration) {
		return nil, apperrors.ErrInvalidDuration
	}

	var modelID *string
	modelName := ""
	if id := strings.TrimSpace(in.ModelID); id != "" {
		vm, err := models.GetVoiceModel(st.db, sess.UserID, id)
		if err != nil {
			return nil, err
		}
		modelID, modelName = &vm.ID, vm.Name
	}

	hasBeat := in.Beat != nil
	if hasBeat && in.Beat.Size > st.cfg.MaxBeatSize {
		return nil, apperrors.ErrBeatTooLarge
	}
	cost := models.CostFor(hasBeat)

	profile, err := models.GetProfile(st.db, sess.UserID)
	if err != nil {
		return nil, err
	}
	if profile.Credits < cost {
		return nil, apperrors.ErrInsufficientCredits.WithContext("user_id", sess.UserID)
	}

	var beatKey, beatURL string
	if hasBeat {
		beatKey, err = st.uploadBeat(ctx, sess.UserID, in.Beat)
		if err != nil {
			return nil, err
		}
		beatURL = st.store.PublicURL(beatKey)
	}

	balance, err := models.DeductCredits(st.db, sess.UserID, cost)
	if err != nil {
		st.removeBeat(ctx, beatKey)
		return nil, err
	}
	st.invalidateProfile(ctx, sess.UserID)

	g := &models.Generation{
		ID:        uuid.NewString(),
		UserID:    sess.UserID,
		ModelID:   modelID,
		ModelName: modelName,
		Title:     models.DeriveTitle(prompt),
		Prompt:    prompt,
		Status:    models.GenerationProcessing,
		Duration:  in.Duration,
		Waveform:  st.waveform(),
		BeatURL:   beatURL,
		BeatKey:   beatKey,
		Cost:      cost,
	}
	if err := models.CreateGeneration(st.db, g); err != nil {
		logger.Error("credits debited without generation",
			zap.String("user_id", sess.UserID),
			zap.Int("cost", cost),
			zap.Int("balance", balance),
			zap.Error(err),
		)
		return nil, apperrors.ErrWriteFailed.Because(err)
	}

	if _, err := st.tracker.Submit(g); err != nil {
		logger.Error("schedule generation failed", zap.String("generation_id", g.ID), zap.Error(err))
	}
	logger.Info("generation submitted",
		zap.String("generation_id", g.ID),
		zap.String("user_id", sess.UserID),
		zap.Int("cost", cost),
		zap.Int("balance", balance),
	)
	created := *g
	st.sig.Emit(models.SigGenerationCreated, &created)
	return g, nil
}

func (st *Studio) waveform() []int {
	st.rndMu.Lock()
	defer st.rndMu.Unlock()
	return models.GenerateWaveform(st.rnd)
}

// BeatKey beats/<userId>/<uuid><ext>
func BeatKey(userID, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	return "beats/" + userID + "/" + uuid.NewString() + ext
}

func (st *Studio) uploadBeat(ctx context.Context, userID string, b *Beat) (string, error) {
	if st.store == nil {
		return "", apperrors.ErrWriteFailed.Because(apperrors.New("beat storage is not configured"))
	}
	key := BeatKey(userID, b.Filename)
	ct := b.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	// 多读一个字节用于发现声明大小与实际不符
	body := io.LimitReader(b.Body, st.cfg.MaxBeatSize+1)
	if err := st.store.Write(ctx, key, body, b.Size, ct); err != nil {
		return "", apperrors.ErrWriteFailed.Because(err)
	}
	return key, nil
}

func (st *Studio) removeBeat(ctx context.Context, key string) {
	if key == "" || st.store == nil {
		return
	}
	if err := st.store.Delete(ctx, key); err != nil {
		logger.Warn("remove beat failed", zap.String("key", key), zap.Error(err))
	}
}

// GetGeneration 仅返回本人的记录
func (st *Studio) GetGeneration(ctx context.Context, sess *models.Session, id string) (*models.Generation, error) {
	return models.GetGeneration(st.db.WithContext(ctx), sess.UserID, id)
}

// DeleteGeneration 先删除再取消计时，晚到的计时因条件更新而不产生写入
func (st *Studio) DeleteGeneration(ctx context.Context, sess *models.Session, id string) (*models.Generation, error) {
	g, err := models.DeleteGeneration(st.db.WithContext(ctx), sess.UserID, id)
	if err != nil {
		return nil, err
	}
	st.tracker.Cancel(g.ID)
	st.removeBeat(ctx, g.BeatKey)
	logger.Info("generation deleted", zap.String("generation_id", g.ID), zap.String("user_id", sess.UserID))
	st.sig.Emit(models.SigGenerationDeleted, g)
	return g, nil
}

// ListGenerations 有检索索引时用索引匹配 q，索引出错时退回数据库过滤
func (st *Studio) ListGenerations(ctx context.Context, sess *models.Session, q string, limit int) ([]models.Generation, error) {
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	q = strings.TrimSpace(q)
	if q != "" && st.search != nil {
		ids, err := st.search.Find(ctx, sess.UserID, q, limit)
		if err == nil {
			return st.matching(ctx, sess.UserID, ids, q)
		}
		logger.Warn("generation search failed, filtering in database", zap.Error(err))
	}
	return models.ListGenerations(st.db.WithContext(ctx), sess.UserID, q, limit)
}

// matching 按数据库中的标题与模型名复核索引结果
func (st *Studio) matching(ctx context.Context, userID string, ids []string, q string) ([]models.Generation, error) {
	rows, err := models.GetGenerationsByIDs(st.db.WithContext(ctx), userID, ids)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, g := range rows {
		if g.Matches(q) {
			out = append(out, g)
		}
	}
	return out, nil
}

// Resume 启动时恢复仍在处理中的记录
func (st *Studio) Resume(ctx context.Context) (int, error) {
	rows, err := models.ListProcessing(st.db.WithContext(ctx))
	if err != nil {
		return 0, err
	}
	return st.tracker.Resume(rows), nil
}

// Register 创建账号并发放初始积分
func (st *Studio) Register(ctx context.Context, email, password, fullName string) (*models.User, *models.Profile, error) {
	u, p, err := models.CreateUser(st.db.WithContext(ctx), email, password, strings.TrimSpace(fullName), st.cfg.StartingCredits)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("user registered", zap.String("user_id", u.ID))
	st.sig.Emit(models.SigUserCreate, u, p)
	return u, p, nil
}

func (st *Studio) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	return models.Authenticate(st.db.WithContext(ctx), email, password)
}

func profileKey(userID string) string { return "profile:" + userID }

// Profile 优先读缓存，缓存中存放 JSON
func (st *Studio) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	key := profileKey(userID)
	if v, ok := st.cache.Get(ctx, key); ok {
		if s, ok := v.(string); ok {
			var p models.Profile
			if err := json.Unmarshal([]byte(s), &p); err == nil {
				st.observe(true)
				return &p, nil
			}
		}
	}
	st.observe(false)
	p, err := models.GetProfile(st.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := st.cache.Set(ctx, key, string(b), st.cfg.ProfileTTL); err != nil {
			logger.Debug("cache profile failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return p, nil
}

func (st *Studio) observe(hit bool) {
	if st.obs == nil {
		return
	}
	if hit {
		st.obs.RecordCacheHit("profile")
	} else {
		st.obs.RecordCacheMiss("profile")
	}
}

// UpdateProfile 只更新传入的字段
func (st *Studio) UpdateProfile(ctx context.Context, userID string, fullName, avatarURL *string) (*models.Profile, error) {
	if fullName != nil {
		v := strings.TrimSpace(*fullName)
		fullName = &v
	}
	if avatarURL != nil {
		v := strings.TrimSpace(*avatarURL)
		avatarURL = &v
	}
	p, err := models.UpdateProfile(st.db.WithContext(ctx), userID, fullName, avatarURL)
	if err != nil {
		return nil, err
	}
	st.invalidateProfile(ctx, userID)
	return p, nil
}

func (st *Studio) invalidateProfile(ctx context.Context, userID string) {
	if err := st.cache.Delete(ctx, profileKey(userID)); err != nil {
		logger.Warn("invalidate profile cache failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Dashboard 首页汇总
type Dashboard struct {
	Credits          int                     `json:"credits"`
	SubscriptionTier models.SubscriptionTier `json:"subscriptionTier"`
	VoiceModels      int64                   `json:"voiceModels"`
	Generations      int64                   `json:"generations"`
	Recent           []models.Generation     `json:"recent"`
}

func (st *Studio) Dashboard(ctx context.Context, sess *models.Session) (*Dashboard, error) {
	p, err := st.Profile(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	db := st.db.WithContext(ctx)
	vm, err := models.CountVoiceModels(db, sess.UserID)
	if err != nil {
		return nil, err
	}
	gc, err := models.CountGenerations(db, sess.UserID)
	if err != nil {
		return nil, err
	}
	recent, err := models.RecentGenerations(db, sess.UserID, RecentCount)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []models.Generation{}
	}
	return &Dashboard{
		Credits:          p.Credits,
		SubscriptionTier: p.SubscriptionTier,
		VoiceModels:      vm,
		Generations:      gc,
		Recent:           recent,
	}, nil
}

func (st *Studio) CreateVoiceModel(ctx context.Context, sess *models.Session, name string) (*models.VoiceModel, error) {
	return models.CreateVoiceModel(st.db.WithContext(ctx), sess.UserID, name)
}

func (st *Studio) ListVoiceModels(ctx context.Context, sess *models.Session, q string) ([]models.VoiceModel, error) {
	return models.ListVoiceModels(st.db.WithContext(ctx), sess.UserID, q)
}

func (st *Studio) GetVoiceModel(ctx context.Context, sess *models.Session, id string) (*models.VoiceModel, error) {
	return models.GetVoiceModel(st.db.WithContext(ctx), sess.UserID, id)
}

// Options 作曲页可选项
type Options struct {
	Durations         []int `json:"durations"`
	CostStandard      int   `json:"costStandard"`
	CostWithBeat      int   `json:"costWithBeat"`
	MaxPromptLength   int   `json:"maxPromptLength"`
	MaxBeatBytes      int64 `json:"maxBeatBytes"`
	StartingCredits   int   `json:"startingCredits"`
	CompletionSeconds int   `json:"completionSeconds"`
}

func (st *Studio) Options() Options {
	return Options{
		Durations:         append([]int(nil), models.AllowedDurations...),
		CostStandard:      models.CostStandard,
		CostWithBeat:      models.CostWithBeat,
		MaxPromptLength:   models.MaxPromptLength,
		MaxBeatBytes:      st.cfg.MaxBeatSize,
		StartingCredits:   st.cfg.StartingCredits,
		CompletionSeconds: int(st.tracker.Delay() / time.Second),
	}
}

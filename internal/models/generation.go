package models

import (
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "VocalForge/pkg/errors"

	"gorm.io/gorm"
)

type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "Pending"
	GenerationProcessing GenerationStatus = "Processing"
	GenerationCompleted  GenerationStatus = "Completed"
	GenerationFailed     GenerationStatus = "Failed"
)

const (
	WaveformLength   = 15
	WaveformMin      = 20
	WaveformMax      = 90 // 不含
	MaxPromptLength  = 500
	CostStandard     = 40
	CostWithBeat     = 60
	DefaultTitle     = "New Studio Track"
	titleWords       = 3
	DefaultListLimit = 50
)

// AllowedDurations 可选时长（秒）
var AllowedDurations = []int{30, 60, 90, 120}

// Generation 一次生成请求及其结果
type Generation struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id"`
	UserID    string           `gorm:"size:36;index" json:"userId"`
	ModelID   *string          `gorm:"size:36;index" json:"modelId"`
	ModelName string           `gorm:"-" json:"modelName,omitempty"`
	Title     string           `gorm:"size:128" json:"title"`
	Prompt    string           `gorm:"type:text" json:"prompt"`
	Status    GenerationStatus `gorm:"size:16;index" json:"status"`
	Duration  int              `json:"duration"`
	Waveform  []int            `gorm:"serializer:json" json:"waveform"`
	AudioURL  string           `gorm:"size:1024" json:"audioUrl"`
	BeatURL   string           `gorm:"size:1024" json:"beatUrl,omitempty"`
	BeatKey   string           `gorm:"size:512" json:"-"`
	Cost      int              `json:"cost"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ValidatePrompt 去除首尾空白后校验长度
func ValidatePrompt(prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if n := utf8.RuneCountInString(prompt); n == 0 || n > MaxPromptLength {
		return "", apperrors.ErrInvalidPrompt
	}
	return prompt, nil
}

func ValidDuration(d int) bool {
	for _, v := range AllowedDurations {
		if v == d {
			return true
		}
	}
	return false
}

// DeriveTitle 取提示词前三个词作为标题
func DeriveTitle(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) == 0 {
		return DefaultTitle
	}
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	return strings.Join(words, " ")
}

// GenerateWaveform 生成 15 个 [20, 90) 的随机幅值，与时长无关
func GenerateWaveform(r *rand.Rand) []int {
	out := make([]int, WaveformLength)
	for i := range out {
		out[i] = WaveformMin + r.Intn(WaveformMax-WaveformMin)
	}
	return out
}

func CostFor(hasBeat bool) int {
	if hasBeat {
		return CostWithBeat
	}
	return CostStandard
}

func CreateGeneration(db *gorm.DB, g *Generation) error {
	return db.Create(g).Error
}

// canTransition 只允许 Processing 进入终态
func canTransition(from, to GenerationStatus) bool {
	return from == GenerationProcessing && (to == GenerationCompleted || to == GenerationFailed)
}

// TransitionGeneration 带条件的状态更新，返回是否有行被修改。
// 记录已删除或已是终态时不写入。
func TransitionGeneration(db *gorm.DB, id string, to GenerationStatus) (bool, error) {
	if !canTransition(GenerationProcessing, to) {
		return false, apperrors.ErrInvalidStatus
	}
	res := db.Model(&Generation{}).
		Where("id = ? AND status = ?", id, GenerationProcessing).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func CompleteGeneration(db *gorm.DB, id string) (bool, error) {
	return TransitionGeneration(db, id, GenerationCompleted)
}

func GetGeneration(db *gorm.DB, userID, id string) (*Generation, error) {
	var g Generation
	err := db.Where("id = ? AND user_id = ?", id, userID).Take(&g).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := attachModelNames(db, userID, []*Generation{&g}); err != nil {
		return nil, err
	}
	return &g, nil
}

// DeleteGeneration 硬删除，返回被删除的记录
func DeleteGeneration(db *gorm.DB, userID, id string) (*Generation, error) {
	var g Generation
	err := db.Where("id = ? AND user_id = ?", id, userID).Take(&g).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res := db.Where("id = ? AND user_id = ?", id, userID).Delete(&Generation{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrNotFound
	}
	return &g, nil
}

// ListGenerations 按创建时间倒序，附带模型名称；q 不区分大小写匹配标题或模型名
func ListGenerations(db *gorm.DB, userID, q string, limit int) ([]Generation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q = strings.ToLower(strings.TrimSpace(q))

	tx := db.Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if q == "" {
		tx = tx.Limit(limit)
	}
	var rows []Generation
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	ptrs := make([]*Generation, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	if err := attachModelNames(db, userID, ptrs); err != nil {
		return nil, err
	}
	if q == "" {
		return rows, nil
	}

	out := make([]Generation, 0, len(rows))
	for _, g := range rows {
		if g.Matches(q) {
			out = append(out, g)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Matches 标题或模型名包含 q，不区分大小写
func (g *Generation) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	return strings.Contains(strings.ToLower(g.Title), q) || strings.Contains(strings.ToLower(g.ModelName), q)
}

// GetGenerationsByIDs 按 ids 的顺序返回属于该用户的记录
func GetGenerationsByIDs(db *gorm.DB, userID string, ids []string) ([]Generation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []Generation
	if err := db.Where("user_id = ? AND id IN ?", userID, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*Generation, len(rows))
	ptrs := make([]*Generation, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
		ptrs[i] = &rows[i]
	}
	if err := attachModelNames(db, userID, ptrs); err != nil {
		return nil, err
	}
	out := make([]Generation, 0, len(rows))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			out = append(out, *g)
		}
	}
	return out, nil
}

func RecentGenerations(db *gorm.DB, userID string, n int) ([]Generation, error) {
	return ListGenerations(db, userID, "", n)
}

func CountGenerations(db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.Model(&Generation{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// ListProcessing 全部仍在处理中的记录，启动时恢复计时用
// ListProcessing 仍在处理中的记录（含模型名称），启动恢复用
func ListProcessing(db *gorm.DB) ([]Generation, error) {
	var rows []Generation
	if err := db.Where("status = ?", GenerationProcessing).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	if err := attachModelNamesByUser(db, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func attachModelNames(db *gorm.DB, userID string, gens []*Generation) error {
	seen := map[string]bool{}
	var ids []string
	for _, g := range gens {
		if g.ModelID != nil && !seen[*g.ModelID] {
			seen[*g.ModelID] = true
			ids = append(ids, *g.ModelID)
		}
	}
	names, err := VoiceModelNames(db, userID, ids)
	if err != nil {
		return err
	}
	for _, g := range gens {
		if g.ModelID != nil {
			g.ModelName = names[*g.ModelID]
		}
	}
	return nil
}

// AllGenerations 全部记录（含模型名称），重建检索索引用
func AllGenerations(db *gorm.DB) ([]Generation, error) {
	var rows []Generation
	if err := db.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	if err := attachModelNamesByUser(db, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// attachModelNamesByUser 记录可能属于不同用户，按用户分组查询模型名
func attachModelNamesByUser(db *gorm.DB, rows []Generation) error {
	byUser := map[string][]*Generation{}
	for i := range rows {
		byUser[rows[i].UserID] = append(byUser[rows[i].UserID], &rows[i])
	}
	for uid, gens := range byUser {
		if err := attachModelNames(db, uid, gens); err != nil {
			return err
		}
	}
	return nil
}

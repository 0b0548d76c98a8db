package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	s, err := NewI18nSupport("en")
	require.NoError(t, err)

	assert.Equal(t, "Not enough credits for this generation", s.T("en", "insufficient_credits", nil))
	assert.Equal(t, "积分不足，无法生成", s.T("zh", "insufficient_credits", nil))
	assert.Equal(t, "Welcome, Ada", s.T("en", "welcome", map[string]interface{}{"Name": "Ada"}))
	assert.Equal(t, "no_such_key", s.T("en", "no_such_key", nil))
	assert.ElementsMatch(t, []string{"en", "zh"}, s.Languages())
}

func TestMatch(t *testing.T) {
	s, err := NewI18nSupport("en")
	require.NoError(t, err)

	assert.Equal(t, "zh", s.Match("zh-CN"))
	assert.Equal(t, "zh", s.Match("", "zh-TW,zh;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", s.Match("fr"))
	assert.Equal(t, "en", s.Match())
}

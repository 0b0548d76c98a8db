package i18n

import (
	"embed"
	"encoding/json"
	"path"

	"VocalForge/pkg/logger"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// I18nSupport 国际化支持结构体
type I18nSupport struct {
	bundle  *i18n.Bundle
	matcher language.Matcher
	tags    []language.Tag
}

// NewI18nSupport 初始化国际化支持，语言文件随二进制内嵌
func NewI18nSupport(defaultLang string) (*I18nSupport, error) {
	defaultTag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, err
	}
	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := path.Join("locales", e.Name())
		buf, err := localeFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(buf, name); err != nil {
			return nil, err
		}
	}

	// 默认语言放在首位，匹配失败时回退到它
	tags := []language.Tag{defaultTag}
	for _, t := range bundle.LanguageTags() {
		if t != defaultTag {
			tags = append(tags, t)
		}
	}
	return &I18nSupport{
		bundle:  bundle,
		matcher: language.NewMatcher(tags),
		tags:    tags,
	}, nil
}

// T 获取翻译文本，未找到时返回 key
func (i *I18nSupport) T(languageTag, key string, templateData map[string]interface{}) string {
	localizer := i18n.NewLocalizer(i.bundle, languageTag)

	translation, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: templateData,
	})
	if err != nil {
		logger.Debug("translation missing", zap.String("key", key), zap.String("lang", languageTag), zap.Error(err))
		return key
	}
	return translation
}

// Match 根据 query 参数与 Accept-Language 选出支持的语言
func (i *I18nSupport) Match(preferred ...string) string {
	var wanted []language.Tag
	for _, p := range preferred {
		if p == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		wanted = append(wanted, tags...)
	}
	_, idx, _ := i.matcher.Match(wanted...)
	base, _ := i.tags[idx].Base()
	return base.String()
}

// Languages 已加载的语言
func (i *I18nSupport) Languages() []string {
	out := make([]string, 0, len(i.tags))
	for _, t := range i.tags {
		out = append(out, t.String())
	}
	return out
}

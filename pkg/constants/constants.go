package constants

// gin.Context 中使用的键
const (
	DbField      = "_vocalforge_db"
	UserField    = "_vocalforge_user"
	SessionField = "_vocalforge_session"
	LangField    = "lang"
	I18nField    = "_vocalforge_i18n"
)

// session 中使用的键
const (
	SessionUserID = "user_id"
	SessionEmail  = "email"
)

const DefaultLang = "en"

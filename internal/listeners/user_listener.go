package listeners

import (
	"VocalForge/internal/models"
	"VocalForge/pkg/logger"
	"VocalForge/pkg/util"

	"go.uber.org/zap"
)

func InitUserListeners(sig *util.Signals) {
	sig.Connect(models.SigUserCreate, func(sender any, params ...any) {
		user, ok := sender.(*models.User)
		if !ok {
			return
		}
		credits := 0
		if len(params) > 0 {
			if p, ok := params[0].(*models.Profile); ok {
				credits = p.Credits
			}
		}
		logger.Info("welcome new user", zap.String("user_id", user.ID), zap.Int("starting_credits", credits))
	})
}

package snowflake

import (
	"context"

	"go.uber.org/zap"

	"github.com/gerhard-ee/snowclient/pkg/notify"
)

// narrator sends progress to the log and to the notifier
type narrator struct {
	logger   *zap.Logger
	notifier notify.Notifier
}

func (n narrator) progress(ctx context.Context, text string, fields ...zap.Field) {
	n.logger.Info(text, fields...)
	n.notifier.PostMessage(ctx, text, true)
}

// announce posts a message that is kept in the channel
func (n narrator) announce(ctx context.Context, text string, fields ...zap.Field) {
	n.logger.Info(text, fields...)
	n.notifier.PostMessage(ctx, text, false)
}

func (n narrator) failure(ctx context.Context, err error, fields ...zap.Field) {
	n.logger.Error(err.Error(), append(fields, zap.Error(err))...)
	n.notifier.PostError(ctx, err.Error())
}

func targetFields(t Target) []zap.Field {
	return []zap.Field{
		zap.String("database", t.Database),
		zap.String("schema", t.Schema),
		zap.String("table", t.Table),
	}
}

package storage

import (
	"context"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"beame2e/internal/ctxkeys"
	"beame2e/internal/logger"
)

// slowQuery 超过该耗时的语句按警告输出
const slowQuery = 500 * time.Millisecond

// gormLogger 将 GORM 日志转发到项目日志器，并附带测试用例追踪 ID
type gormLogger struct {
	log   logger.Logger
	level gormlogger.LogLevel
}

func newGormLogger(l logger.Logger) *gormLogger {
	return &gormLogger{log: l, level: gormlogger.Warn}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(msg, "traceId", ctxkeys.TraceID(ctx), "data", data)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(msg, "traceId", ctxkeys.TraceID(ctx), "data", data)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(msg, "traceId", ctxkeys.TraceID(ctx), "data", data)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	kv := []any{"traceId", ctxkeys.TraceID(ctx), "sql", sql, "rows", rows, "elapsed", elapsed}

	switch {
	case err != nil && err != gormlogger.ErrRecordNotFound && l.level >= gormlogger.Error:
		l.log.Err(err, "会话存储语句失败", kv...)
	case elapsed > slowQuery && l.level >= gormlogger.Warn:
		l.log.Warn("会话存储慢查询", kv...)
	case l.level >= gormlogger.Info:
		l.log.Debug("会话存储语句", kv...)
	}
}

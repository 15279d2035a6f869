package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// LockWaitThreshold flags row-locking statements that waited longer than a plain slow query.
	LockWaitThreshold time.Duration
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:             gormlogger.Warn,
		SlowThreshold:     200 * time.Millisecond,
		LockWaitThreshold: 50 * time.Millisecond,
	}
}

// GormLogger routes GORM output through the context-enriched zap logger.
// Bound parameters are never logged; amounts and owner ids stay out of log storage.
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	lockThreshold time.Duration
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{
		level:         cfg.Level,
		slowThreshold: cfg.SlowThreshold,
		lockThreshold: cfg.LockWaitThreshold,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		FromContext(ctx).Info(msg, gormFields(data)...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		FromContext(ctx).Warn(msg, gormFields(data)...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		FromContext(ctx).Error(msg, gormFields(data)...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	stmt := describeStatement(sql)

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.write(ctx, zapcore.ErrorLevel, sql, stmt, rows, elapsed, err)
	case l.level >= gormlogger.Warn && l.isSlow(stmt, elapsed):
		l.write(ctx, zapcore.WarnLevel, sql, stmt, rows, elapsed, nil)
	case l.level >= gormlogger.Info:
		l.write(ctx, zapcore.DebugLevel, sql, stmt, rows, elapsed, nil)
	}
}

// ParamsFilter drops bound values so only the statement shape reaches the log.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) isSlow(stmt statement, elapsed time.Duration) bool {
	if stmt.locking && l.lockThreshold > 0 && elapsed > l.lockThreshold {
		return true
	}
	return l.slowThreshold > 0 && elapsed > l.slowThreshold
}

func (l *GormLogger) write(ctx context.Context, level zapcore.Level, sql string, stmt statement, rows int64, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", stmt.operation),
		zap.Bool("row_lock", stmt.locking),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if ce := FromContext(ctx).Check(level, "gorm.query"); ce != nil {
		ce.Write(fields...)
	}
}

func gormFields(data []interface{}) []zap.Field {
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	return fields
}

type statement struct {
	operation string
	locking   bool
}

func describeStatement(sql string) statement {
	normalized := strings.ToUpper(strings.TrimSpace(sql))
	stmt := statement{operation: "UNKNOWN"}
	if normalized == "" {
		return stmt
	}
scan:
	for _, token := range strings.Fields(normalized) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "SET", "SAVEPOINT":
			stmt.operation = token
			break scan
		}
	}
	stmt.locking = strings.Contains(normalized, "FOR UPDATE")
	return stmt
}

var _ gormlogger.Interface = (*GormLogger)(nil)

package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig 日志配置接口，由 config.LogConfig 实现
type LogConfig interface {
	GetLevel() string
	GetOutput() string
	GetFile() string
}

// Logger printf 风格的 zap 日志器
type Logger struct {
	zapLogger *zap.Logger
	// direct 为 true 时由调用方直接调用方法，不经过包级函数
	direct bool
}

// 日志文件轮转参数
const (
	rotateMaxSizeMB  = 100
	rotateMaxBackups = 3
	rotateMaxAgeDays = 28
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(newWithSyncer(zapcore.InfoLevel, zapcore.Lock(os.Stdout)))
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05"))
	}
	cfg.CallerKey = "caller"
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.LevelKey = "level"
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.MessageKey = "message"
	return cfg
}

func newWithSyncer(level zapcore.Level, ws zapcore.WriteSyncer) *Logger {
	encoder := zapcore.NewJSONEncoder(encoderConfig())
	if level == zapcore.DebugLevel {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	core := zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(level))
	return &Logger{zapLogger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))}
}

// NewWithFileRotation 创建写入文件并按大小轮转的日志器
func NewWithFileRotation(level zapcore.Level, logFile string) (*Logger, error) {
	if logFile == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	return newWithSyncer(level, zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    rotateMaxSizeMB,
		MaxBackups: rotateMaxBackups,
		MaxAge:     rotateMaxAgeDays,
		Compress:   true,
	})), nil
}

// Init 根据配置初始化默认日志器
func Init(cfg LogConfig) error {
	level := ParseLevel(cfg.GetLevel())

	var l *Logger
	switch strings.ToLower(cfg.GetOutput()) {
	case "file":
		var err error
		if l, err = NewWithFileRotation(level, cfg.GetFile()); err != nil {
			return err
		}
	case "stderr":
		l = newWithSyncer(level, zapcore.Lock(os.Stderr))
	default:
		l = newWithSyncer(level, zapcore.Lock(os.Stdout))
	}

	SetDefaultLogger(l)
	return nil
}

// ParseLevel 解析日志级别，无法识别时为 info
func ParseLevel(level string) zapcore.Level {
	if strings.EqualFold(level, "warning") {
		return zapcore.WarnLevel
	}
	parsed, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.zapLogger.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.zapLogger.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.zapLogger.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.zapLogger.Error(fmt.Sprintf(format, args...))
}

// Fatal 记录后退出进程
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.zapLogger.Fatal(fmt.Sprintf(format, args...))
}

// Sync 刷新缓冲
func (l *Logger) Sync() {
	_ = l.zapLogger.Sync()
}

// With 返回附带结构化字段的子日志器
func (l *Logger) With(fields ...zap.Field) *Logger {
	z := l.zapLogger
	if !l.direct {
		z = z.WithOptions(zap.AddCallerSkip(-1))
	}
	return &Logger{zapLogger: z.With(fields...), direct: true}
}

// SetDefaultLogger 替换默认日志器，旧的会先刷新
func SetDefaultLogger(l *Logger) {
	if old := defaultLogger.Swap(l); old != nil {
		old.Sync()
	}
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Load().Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.Load().Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Load().Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.Load().Error(format, args...)
}

func Fatal(format string, args ...interface{}) {
	defaultLogger.Load().Fatal(format, args...)
}

func Sync() {
	defaultLogger.Load().Sync()
}

func With(fields ...zap.Field) *Logger {
	return defaultLogger.Load().With(fields...)
}

package log

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	serviceName = "travel-concierge"
	logFileName = "concierge.log"
)

// 未调用 Init 之前使用 no-op logger，测试和工具代码可以直接记录日志
var sugar = zap.NewNop().Sugar()

// Init 按配置构建 zap logger 并替换全局 logger。
// format 为 console 时输出彩色的开发格式，否则输出 JSON。
func Init(level, format, outputPath string) {
	logger, err := newConfig(level, format, outputPath).Build(zap.Fields(zap.String("service", serviceName)))
	if err != nil {
		panic(err)
	}
	Use(logger)
}

// Use 替换全局 logger，测试中可以传入 observer。
func Use(logger *zap.Logger) {
	sugar = logger.Sugar()
}

func newConfig(level, format, outputPath string) zap.Config {
	atomic := zap.NewAtomicLevel()
	if err := atomic.UnmarshalText([]byte(level)); err != nil {
		atomic.SetLevel(zap.InfoLevel)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = atomic

	cfg.OutputPaths = []string{"stdout"}
	if outputPath != "" {
		_ = os.MkdirAll(outputPath, os.ModePerm)
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(outputPath, logFileName))
	}
	return cfg
}

func Info(msg string) {
	sugar.Info(msg)
}

func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 记录带键值对的 info 日志。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

// Error 记录 error 日志，err 放在 "error" 字段中。
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

// Fatal 记录日志后退出进程。
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 刷新缓冲的日志，main 退出前调用。
func Sync() {
	_ = sugar.Sync()
}

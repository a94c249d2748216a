package common

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/mattn/go-colorable"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LogFormat [时间] [等级]: 消息
type LogFormat struct {
	EnableColor bool
}

const (
	colorCodePanic = "\x1b[1;31m"
	colorCodeFatal = "\x1b[1;31m"
	colorCodeError = "\x1b[31m"
	colorCodeWarn  = "\x1b[33m"
	colorCodeInfo  = "\x1b[37m"
	colorCodeDebug = "\x1b[32m"
	colorReset     = "\x1b[0m"
)

// Format implements logrus.Formatter
func (f LogFormat) Format(entry *log.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if f.EnableColor {
		buf.WriteString(levelColor(entry.Level))
	}
	buf.WriteByte('[')
	buf.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
	buf.WriteString("] [")
	buf.WriteString(strings.ToUpper(entry.Level.String()))
	buf.WriteString("]: ")
	buf.WriteString(entry.Message)
	for k, v := range entry.Data {
		buf.WriteByte(' ')
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(fmt.Sprint(v))
	}
	if f.EnableColor {
		buf.WriteString(colorReset)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func levelColor(level log.Level) string {
	switch level {
	case log.PanicLevel:
		return colorCodePanic
	case log.FatalLevel:
		return colorCodeFatal
	case log.ErrorLevel:
		return colorCodeError
	case log.WarnLevel:
		return colorCodeWarn
	case log.DebugLevel, log.TraceLevel:
		return colorCodeDebug
	default:
		return colorCodeInfo
	}
}

// LocalHook 将日志额外写入本地文件
type LocalHook struct {
	levels    []log.Level
	formatter log.Formatter
	writer    io.Writer
}

// Levels impl logrus.Hook
func (h *LocalHook) Levels() []log.Level {
	return h.levels
}

// Fire impl logrus.Hook
func (h *LocalHook) Fire(entry *log.Entry) error {
	b, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

// GetLogLevel 解析日志等级，无法识别时使用 info
func GetLogLevel(level string) log.Level {
	l, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return l
}

// InitLogger 配置控制台与按天切分的文件日志
func InitLogger(c *Config) error {
	level := GetLogLevel(c.Output.LogLevel)
	log.SetLevel(level)
	log.SetOutput(colorable.NewColorableStdout())
	log.SetFormatter(LogFormat{EnableColor: c.Output.Color})

	if c.Output.LogDir == "" {
		return nil
	}
	opts := []rotatelogs.Option{
		rotatelogs.WithRotationTime(24 * time.Hour),
		rotatelogs.WithLinkName(filepath.Join(c.Output.LogDir, "latest.log")),
	}
	if c.Output.LogAging > 0 {
		opts = append(opts, rotatelogs.WithMaxAge(time.Duration(c.Output.LogAging)*24*time.Hour))
	}
	w, err := rotatelogs.New(filepath.Join(c.Output.LogDir, "%Y-%m-%d.log"), opts...)
	if err != nil {
		return errors.Wrap(err, "初始化日志文件失败")
	}
	levels := make([]log.Level, 0, len(log.AllLevels))
	for _, l := range log.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}
	log.AddHook(&LocalHook{levels: levels, formatter: LogFormat{}, writer: w})
	return nil
}

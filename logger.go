package main

import (
	"fmt"
	"github.com/fansqz/inspector-bridge/config"
	"github.com/sirupsen/logrus"
	"os"
	"path/filepath"
)

var logFileHandle *os.File

// SetupLogger 设置日志级别和输出，没有配置文件时输出到标准错误
func SetupLogger(c config.LogConfig) error {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)
	if c.File == "" {
		return nil
	}

	// 目录不存在时创建
	if err = os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFileHandle, err = os.OpenFile(c.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(logFileHandle)
	return nil
}

func CloseLogger() {
	if logFileHandle != nil {
		_ = logFileHandle.Close()
	}
}

// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/a2akit/pkg/config"
	"github.com/kadirpekel/a2akit/pkg/logger"
)

const (
	LogLevelEnvVar  = "LOG_LEVEL"
	LogFileEnvVar   = "LOG_FILE"
	LogFormatEnvVar = "LOG_FORMAT"

	DefaultLogLevel  = "info"
	DefaultLogFormat = logger.FormatSimple
)

// logSettings is the resolved logger configuration.
type logSettings struct {
	level, file, format string
}

// resolveLogSettings applies the priority CLI flags > env vars > config
// file > defaults. cfg may be nil before the config is loaded.
func resolveLogSettings(cli *CLI, cfg *config.LoggerConfig, getenv func(string) string) logSettings {
	var fromCfg config.LoggerConfig
	if cfg != nil {
		fromCfg = *cfg
	}
	return logSettings{
		level:  firstSet(cli.LogLevel, getenv(LogLevelEnvVar), fromCfg.Level, DefaultLogLevel),
		file:   firstSet(cli.LogFile, getenv(LogFileEnvVar), fromCfg.File),
		format: firstSet(cli.LogFormat, getenv(LogFormatEnvVar), fromCfg.Format, DefaultLogFormat),
	}
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// initLogger (re)initializes the process logger. It is called once at
// startup and again once the config file is known.
func (cli *CLI) initLogger(cfg *config.LoggerConfig) error {
	s := resolveLogSettings(cli, cfg, os.Getenv)
	if !logger.ValidLevel(s.level) {
		return fmt.Errorf("invalid log level: %q", s.level)
	}

	var out io.Writer = os.Stderr
	var cleanup func()
	if s.file != "" {
		file, closeFn, err := logger.OpenLogFile(s.file)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out, cleanup = file, closeFn
	}

	logger.Init(logger.ParseLevel(s.level), out, s.format)
	cli.closeLog()
	cli.logCleanup = cleanup
	return nil
}

func (cli *CLI) closeLog() {
	if cli.logCleanup != nil {
		cli.logCleanup()
		cli.logCleanup = nil
	}
}

// onConfigChange follows logger level changes in a watched config unless
// the level is pinned on the command line.
func (cli *CLI) onConfigChange(cfg *config.Config) {
	if cli.LogLevel != "" {
		return
	}
	level := logger.ParseLevel(cfg.Logger.Level)
	if level != logger.Level() {
		logger.SetLevel(level)
		logger.GetLogger().Info("Log level changed", "level", level.String())
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	plume "github.com/plumesocial/plume-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// getClient creates a Plume client authenticated with the stored token.
func getClient() *plume.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "Not logged in. Run 'plume login <username>' first.")
		os.Exit(1)
	}

	var opts []plume.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, plume.WithBaseURL(cfg.Default.BaseURL))
	}
	opts = append(opts, plume.WithLogger(getLogger(cfg)))

	return plume.NewClient(cfg.Auth.Token, opts...)
}

// getAnonClient creates an unauthenticated client for public reads.
func getAnonClient() *plume.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	var opts []plume.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, plume.WithBaseURL(cfg.Default.BaseURL))
	}
	return plume.NewClient("", opts...)
}

// getLogger builds a file logger with rotation. Console output stays clean
// for command results.
func getLogger(cfg *Config) *zap.Logger {
	logFile := cfg.Default.LogFile
	if logFile == "" {
		dir, err := configDir()
		if err != nil {
			return zap.NewNop()
		}
		logFile = filepath.Join(dir, "plume.log")
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	})
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), writer, zap.InfoLevel)
	return zap.New(core)
}

// printJSON pretty-prints a value to stdout.
func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to format output: %v\n", err)
		return
	}
	fmt.Println(string(out))
}

// printResult prints a Result's data, or its error.
func printResult(result *plume.Result) {
	if !result.OK {
		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %s\n", result.Error.Code, result.Error.Message)
		} else {
			fmt.Fprintln(os.Stderr, "Error: request failed")
		}
		os.Exit(1)
	}
	if result.Data != nil {
		var v any
		if err := json.Unmarshal(result.Data, &v); err == nil {
			printJSON(v)
			return
		}
		fmt.Println(string(result.Data))
	}
}

// Package config loads the TOML configuration described in spec.md §6,
// including the file-fallback chain and the literal "$ENVVAR" substitution
// pass confirmed against the original implementation's config loader.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/facile-ops/queuerunner/internal/domain"
)

// RawQueue mirrors the [[rabbit.queues]] TOML schema. Scalar fields accept
// either their native type or a string representation — viper's
// WeaklyTypedInput decoding handles the coercion, the Go-idiomatic
// equivalent of the source's bool_or_string/i32_or_string deserializers.
type RawQueue struct {
	ID             int32  `mapstructure:"id"`
	QueueName      string `mapstructure:"queue_name"`
	ConsumerName   string `mapstructure:"consumer_name"`
	Command        string `mapstructure:"command"`
	CommandTimeout *uint64 `mapstructure:"command_timeout"`
	Base64         bool    `mapstructure:"base64"`
	Count          int32   `mapstructure:"count"`
	NackCode       *int32  `mapstructure:"nack_code"`
	PrefetchCount  *uint16 `mapstructure:"prefetch_count"`
	RetryWait      uint64  `mapstructure:"retry_wait"`
	RetryMode      string  `mapstructure:"retry_mode"`
	StartHour      *string `mapstructure:"start_hour"`
	EndHour        *string `mapstructure:"end_hour"`
	Enabled        bool    `mapstructure:"enabled"`
}

type RawRabbit struct {
	Host          string     `mapstructure:"host"`
	Port          int        `mapstructure:"port"`
	Username      string     `mapstructure:"username"`
	Password      string     `mapstructure:"password"`
	Vhost         string     `mapstructure:"vhost"`
	QueuePrefix   string     `mapstructure:"queue_prefix"`
	Reconnections int32      `mapstructure:"reconnections"`
	Queues        []RawQueue `mapstructure:"queues"`
}

type RawDatabase struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     *int   `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Retries  *int32 `mapstructure:"retries"`
}

// Config is the fully decoded configuration file.
type Config struct {
	Rabbit   RawRabbit
	Database RawDatabase
}

// QueueDefinitions converts the raw TOML queue entries into domain types,
// parsing the "HH:MM" hour-window bounds into minutes-since-midnight.
func (c Config) QueueDefinitions() ([]domain.QueueDefinition, error) {
	defs := make([]domain.QueueDefinition, 0, len(c.Rabbit.Queues))
	for _, q := range c.Rabbit.Queues {
		start, err := parseHourMinute(q.StartHour)
		if err != nil {
			return nil, fmt.Errorf("config: queue %d start_hour: %w", q.ID, err)
		}
		end, err := parseHourMinute(q.EndHour)
		if err != nil {
			return nil, fmt.Errorf("config: queue %d end_hour: %w", q.ID, err)
		}
		defs = append(defs, domain.QueueDefinition{
			ID:              q.ID,
			QueueName:       q.QueueName,
			ConsumerName:    q.ConsumerName,
			Command:         q.Command,
			CommandTimeout:  q.CommandTimeout,
			Base64:          q.Base64,
			StartMinute:     start,
			EndMinute:       end,
			Count:           q.Count,
			NackCode:        q.NackCode,
			PrefetchCount:   q.PrefetchCount,
			RetryWaitSecond: q.RetryWait,
			RetryMode:       domain.ParseRetryMode(q.RetryMode),
			Enabled:         q.Enabled,
		})
	}
	return defs, nil
}

// parseHourMinute turns an "HH:MM" string into minutes-since-midnight.
func parseHourMinute(s *string) (*int, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	parts := strings.SplitN(*s, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("expected HH:MM, got %q", *s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, err
	}
	minute := h*60 + m
	return &minute, nil
}

// Load resolves the configuration file via the fallback chain
// <path>/config.toml, <path>/config_<env>.toml, <path>/config_dev.toml,
// substitutes every literal "$ENVVAR" occurrence with the corresponding
// process environment value, and decodes the result.
func Load(env, path string) (*Config, error) {
	file, err := resolveConfigFile(env, path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", file, err)
	}

	substituted := substituteEnvVars(string(raw))

	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader([]byte(substituted))); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", file, err)
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", file, err)
	}

	return &cfg, nil
}

func resolveConfigFile(env, path string) (string, error) {
	candidates := []string{
		filepath.Join(path, "config.toml"),
		filepath.Join(path, fmt.Sprintf("config_%s.toml", env)),
		filepath.Join(path, "config_dev.toml"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("config: no configuration file found among %v", candidates)
}

// substituteEnvVars replaces every quoted literal "$NAME" occurrence with
// "<value>" for every NAME present in the process environment, mirroring
// the original loader's pass over env::vars() before the TOML parse.
func substituteEnvVars(content string) string {
	for _, kv := range os.Environ() {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		key, value := kv[:idx], kv[idx+1:]
		content = strings.ReplaceAll(content, fmt.Sprintf("\"$%s\"", key), fmt.Sprintf("%q", value))
	}
	return content
}

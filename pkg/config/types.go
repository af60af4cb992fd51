package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent timespace configuration stored as
// config.toml in the .timespace/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Stream      StreamConfig      `toml:"stream"`
	Chat        ChatConfig        `toml:"chat"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// StreamConfig holds the Stream Source location and the query parameter
// names the server expects.
type StreamConfig struct {
	// Target is the base URL of the stream endpoint, e.g.
	// "http://127.0.0.1:8000/stream".
	Target       string `toml:"target,omitempty"`
	MessageParam string `toml:"message_param,omitempty"`
	ThreadParam  string `toml:"thread_param,omitempty"`
}

// ChatConfig holds settings for the interactive chat command.
type ChatConfig struct {
	Markdown bool   `toml:"markdown"`
	LogFile  string `toml:"log_file,omitempty"`
}

// EventStreamConfig configures mirroring received payloads to a broker.
type EventStreamConfig struct {
	Provider     string `toml:"provider,omitempty"`
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"stream.target": {
		get: func(c *Config) string { return c.Stream.Target },
		set: func(c *Config, v string) error { c.Stream.Target = v; return nil },
	},
	"stream.message_param": {
		get: func(c *Config) string { return c.Stream.MessageParam },
		set: func(c *Config, v string) error { c.Stream.MessageParam = v; return nil },
	},
	"stream.thread_param": {
		get: func(c *Config) string { return c.Stream.ThreadParam },
		set: func(c *Config, v string) error { c.Stream.ThreadParam = v; return nil },
	},
	"chat.markdown": {
		get: func(c *Config) string { return strconv.FormatBool(c.Chat.Markdown) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for chat.markdown: %w", err)
			}
			c.Chat.Markdown = b
			return nil
		},
	},
	"chat.log_file": {
		get: func(c *Config) string { return c.Chat.LogFile },
		set: func(c *Config, v string) error { c.Chat.LogFile = v; return nil },
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventStreamNone, EventStreamKafka:
				c.EventStream.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for eventstream.provider: %q (available: %s, %s)",
					v, EventStreamNone, EventStreamKafka)
			}
		},
	},
	"eventstream.kafka_brokers": {
		get: func(c *Config) string { return c.EventStream.KafkaBrokers },
		set: func(c *Config, v string) error { c.EventStream.KafkaBrokers = v; return nil },
	},
	"eventstream.kafka_topic": {
		get: func(c *Config) string { return c.EventStream.KafkaTopic },
		set: func(c *Config, v string) error { c.EventStream.KafkaTopic = v; return nil },
	},
}

package config

const (
	defaultStreamTarget = "http://127.0.0.1:8000/stream"
	defaultMessageParam = "message"
	defaultThreadParam  = "thread_id"

	defaultChatLogFile = "chat.log"

	defaultKafkaTopic = "timespace.payloads"
)

// Event stream providers.
const (
	EventStreamNone  = "none"
	EventStreamKafka = "kafka"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Stream: StreamConfig{
			Target:       defaultStreamTarget,
			MessageParam: defaultMessageParam,
			ThreadParam:  defaultThreadParam,
		},
		Chat: ChatConfig{
			Markdown: true,
			LogFile:  defaultChatLogFile,
		},
		EventStream: EventStreamConfig{
			Provider:   EventStreamNone,
			KafkaTopic: defaultKafkaTopic,
		},
	}
}

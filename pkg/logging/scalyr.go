package logging

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var bufferPool = buffer.NewPool()

// redactedKeys are field names whose values never reach the log sink
var redactedKeys = map[string]bool{
	"authorization": true,
	"token":         true,
	"device_token":  true,
	"jwt":           true,
}

// ScalyrEncoder writes one flat JSON object per entry in the shape Scalyr parses.
// Fields attached with Logger.With are kept on the encoder and merged into every entry.
type ScalyrEncoder struct {
	*zapcore.MapObjectEncoder
	config zapcore.EncoderConfig
}

// NewScalyrEncoder creates a new Scalyr-compatible encoder
func NewScalyrEncoder(config zapcore.EncoderConfig) zapcore.Encoder {
	return &ScalyrEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		config:           config,
	}
}

// Clone copies the encoder together with its context fields
func (e *ScalyrEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}
	return &ScalyrEncoder{MapObjectEncoder: clone, config: e.config}
}

// EncodeEntry encodes a log entry in Scalyr-compatible format
func (e *ScalyrEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	entryFields := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(entryFields)
	}

	logObj := make(map[string]interface{}, len(e.Fields)+len(entryFields.Fields)+8)
	for _, src := range []map[string]interface{}{e.Fields, entryFields.Fields} {
		for k, v := range src {
			logObj[k] = scalyrValue(k, v)
		}
	}

	logObj["timestamp"] = entry.Time.UTC().Format(time.RFC3339Nano)
	logObj["level"] = entry.Level.String()
	logObj["message"] = entry.Message
	if entry.LoggerName != "" {
		logObj["logger"] = entry.LoggerName
	}
	if entry.Caller.Defined {
		logObj["file"] = entry.Caller.TrimmedPath()
		logObj["line"] = entry.Caller.Line
		logObj["function"] = entry.Caller.Function
	}
	if entry.Stack != "" {
		logObj["stack"] = entry.Stack
	}

	buf := bufferPool.Get()
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(logObj); err != nil {
		buf.Free()
		return nil, err
	}
	return buf, nil
}

// scalyrValue renders durations and times as strings and masks credentials
func scalyrValue(key string, v interface{}) interface{} {
	if redactedKeys[strings.ToLower(key)] {
		return "[redacted]"
	}
	switch val := v.(type) {
	case time.Duration:
		return val.String()
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

package types

// ---- Service state (retained) ----

type ParamsState struct {
	Level  string `json:"level"`  // "idle", "ready", "error", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}

// ---- Configuration supplied on "config/params" and "config/heartbeat" ----

type ParamsConfig struct {
	QueueCapacity   int  `yaml:"queue_capacity" json:"queue_capacity"`
	AutoStart       bool `yaml:"auto_start" json:"auto_start"`
	StatsIntervalMS int  `yaml:"stats_interval_ms" json:"stats_interval_ms"`
	FlushTimeoutMS  int  `yaml:"flush_timeout_ms" json:"flush_timeout_ms"`
}

type HeartbeatConfig struct {
	IntervalS int `yaml:"interval_s" json:"interval_s"`
}

// ---- Parameter payloads ----

// ParamValue is published retained on "params/value/<name>" and returned
// by "params/get/<name>". Data holds ElementSize bytes, little-endian for
// numeric parameters.
type ParamValue struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Data  []byte `json:"data"`
	// Pending is set while the value is queued but not yet committed.
	Pending bool  `json:"pending,omitempty"`
	TS      int64 `json:"ts_ms"`
}

// Uint returns Data as a little-endian unsigned integer (up to 4 bytes).
func (v ParamValue) Uint() uint32 {
	var x uint32
	for i := len(v.Data) - 1; i >= 0 && i < 4; i-- {
		x = x<<8 | uint32(v.Data[i])
	}
	return x
}

// ParamSet is the request payload on "params/set/<name>". Numeric payloads
// (uint8, uint16, int) are also accepted for 1- and 2-byte parameters.
type ParamSet struct {
	Data []byte `json:"data"`
}

type ParamSetAck struct {
	OK bool `json:"ok"`
	// Queued is false when the value already matched and nothing was written.
	Queued bool   `json:"queued"`
	Error  string `json:"error,omitempty"`
}

// ParamsStats reports the deferred writer.
type ParamsStats struct {
	Queued       uint32 `json:"queued"`
	Skipped      uint32 `json:"skipped"`
	Dropped      uint32 `json:"dropped"`
	Committed    uint32 `json:"committed"`
	Failed       uint32 `json:"failed"`
	BytesWritten uint32 `json:"bytes_written"`
	WriteErrors  uint32 `json:"write_errors"`
	Pending      int    `json:"pending"`
	Busy         bool   `json:"busy"`
}

// Heartbeat is published on "heartbeat" every interval with the last
// writer stats seen on "params/stats".
type Heartbeat struct {
	Seq    uint32      `json:"seq"`
	TS     int64       `json:"ts_ms"`
	Params ParamsStats `json:"params"`
}

// ParamInfo describes one table entry; "params/list" replies []ParamInfo.
type ParamInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Size  int    `json:"size"`
	Count int    `json:"count"`
	Base  int    `json:"base"`
}

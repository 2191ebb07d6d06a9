// Package params exposes an nvstore.Store on the bus.
//
//	params/value/<name>  retained ParamValue, after start and every accepted set
//	params/set/<name>    request ParamSet (or uint8/uint16/int), reply ParamSetAck
//	params/get/<name>    request, reply ParamValue or ParamSetAck on error
//	params/list          request, reply []ParamInfo
//	params/flush         request, reply ParamsStats once the queue is drained
//	params/stats         retained ParamsStats, every stats interval
//	params/state         retained ParamsState
package params

//go:generate go run ../../cmd/paramgen gen -i layout.yaml -o layout_gen.go -p params

import (
	"context"
	"time"

	"eeparam-go/bus"
	"eeparam-go/errcode"
	"eeparam-go/nvstore"
	"eeparam-go/types"
	"eeparam-go/x/timex"
)

const (
	defaultStatsInterval = 5 * time.Second
	defaultFlushTimeout  = 2 * time.Second
)

var (
	topicConfig = bus.T("config", "params")
	topicSet    = bus.T("params", "set", "+")
	topicGet    = bus.T("params", "get", "+")
	topicList   = bus.T("params", "list")
	topicFlush  = bus.T("params", "flush")
	topicStats  = bus.T("params", "stats")
	topicState  = bus.T("params", "state")
	topicValue  = bus.T("params", "value")
)

type Service struct {
	st   *nvstore.Store
	conn *bus.Connection

	autoStart     bool
	statsInterval time.Duration
	flushTimeout  time.Duration

	// shown[i] is the Pending flag last published for parameter i.
	shown []bool
}

// New binds the service to st. cfg supplies the initial settings; a later
// "config/params" message replaces them.
func New(st *nvstore.Store, cfg types.ParamsConfig) *Service {
	s := &Service{st: st, shown: make([]bool, st.Table().Len())}
	s.apply(cfg)
	return s
}

func (s *Service) apply(cfg types.ParamsConfig) {
	s.autoStart = cfg.AutoStart
	s.statsInterval = timex.Ms(cfg.StatsIntervalMS, defaultStatsInterval)
	s.flushTimeout = timex.Ms(cfg.FlushTimeoutMS, defaultFlushTimeout)
	if cfg.QueueCapacity > 0 && cfg.QueueCapacity != s.st.QueueCap() {
		println("Warn: params: queue_capacity", cfg.QueueCapacity, "applies at next start; running with", s.st.QueueCap())
	}
}

// Start runs the service loop until ctx is done.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	s.conn = conn
	go s.loop(ctx)
}

func (s *Service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	setSub := s.conn.Subscribe(topicSet)
	getSub := s.conn.Subscribe(topicGet)
	listSub := s.conn.Subscribe(topicList)
	flushSub := s.conn.Subscribe(topicFlush)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(setSub)
	defer s.conn.Unsubscribe(getSub)
	defer s.conn.Unsubscribe(listSub)
	defer s.conn.Unsubscribe(flushSub)

	s.publishState("idle", "loading", nil)
	for i := 0; i < s.st.Table().Len(); i++ {
		s.publishValue(i)
	}
	s.publishStats()
	s.publishState("ready", "running", nil)

	tick := time.NewTicker(s.statsInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			cfg, ok := msg.Payload.(types.ParamsConfig)
			if !ok {
				s.publishState("error", "config_decode_failed", nil)
				continue
			}
			s.apply(cfg)
			tick.Reset(s.statsInterval)
			s.publishState("ready", "configured", nil)

		case msg := <-setSub.Channel():
			s.handleSet(msg)

		case msg := <-getSub.Channel():
			s.handleGet(msg)

		case msg := <-listSub.Channel():
			s.conn.Reply(msg, s.list(), false)

		case msg := <-flushSub.Channel():
			s.handleFlush(ctx, msg)

		case <-tick.C:
			s.refreshCommitted()
			s.publishStats()
		}
	}
}

// ---- request handlers ----

// paramOf resolves params/<verb>/<name>.
func (s *Service) paramOf(msg *bus.Message) (int, nvstore.Descriptor, error) {
	if msg.Topic.Len() != 3 {
		return 0, nvstore.Descriptor{}, errcode.InvalidTopic
	}
	name, _ := msg.Topic.At(2).(string)
	i, ok := s.st.Table().Lookup(name)
	if !ok {
		return 0, nvstore.Descriptor{}, errcode.UnknownParam
	}
	d, _ := s.st.Table().Describe(i)
	return i, d, nil
}

func (s *Service) handleSet(msg *bus.Message) {
	i, d, err := s.paramOf(msg)
	if err != nil {
		s.replyErr(msg, err)
		return
	}
	data, err := encodeValue(d, msg.Payload)
	if err != nil {
		s.replyErr(msg, err)
		return
	}
	before := s.st.Stats().Queued
	if err := s.st.RequestWrite(i, data); err != nil {
		if errcode.Of(err) == errcode.QueueFull {
			println("Warn: params: queue full, dropped write to", d.Name)
		}
		s.replyErr(msg, err)
		return
	}
	queued := s.st.Stats().Queued != before
	if queued && s.autoStart {
		s.st.StartWriter()
	}
	s.publishValue(i)
	s.conn.Reply(msg, types.ParamSetAck{OK: true, Queued: queued}, false)
}

func (s *Service) handleGet(msg *bus.Message) {
	i, _, err := s.paramOf(msg)
	if err != nil {
		s.replyErr(msg, err)
		return
	}
	v, err := s.value(i)
	if err != nil {
		s.replyErr(msg, err)
		return
	}
	s.conn.Reply(msg, v, false)
}

func (s *Service) handleFlush(ctx context.Context, msg *bus.Message) {
	fctx, cancel := context.WithTimeout(ctx, s.flushTimeout)
	err := s.st.Flush(fctx)
	cancel()
	s.refreshCommitted()
	s.publishStats()
	if err != nil {
		println("Warn: params: flush:", err.Error())
		s.replyErr(msg, err)
		return
	}
	s.conn.Reply(msg, s.stats(), false)
}

func (s *Service) list() []types.ParamInfo {
	t := s.st.Table()
	out := make([]types.ParamInfo, 0, t.Len())
	for i, d := range t {
		out = append(out, types.ParamInfo{
			Index: i,
			Name:  d.Name,
			Size:  int(d.ElementSize),
			Count: int(d.SlotCount),
			Base:  int(d.Base),
		})
	}
	return out
}

// ---- publishing ----

func (s *Service) value(i int) (types.ParamValue, error) {
	d, err := s.st.Table().Describe(i)
	if err != nil {
		return types.ParamValue{}, err
	}
	buf := make([]byte, d.ElementSize)
	if _, err := s.st.Block(i, buf); err != nil {
		return types.ParamValue{}, err
	}
	return types.ParamValue{
		Name:    d.Name,
		Index:   i,
		Data:    buf,
		Pending: s.st.Pending(i),
		TS:      timex.NowMs(),
	}, nil
}

func (s *Service) publishValue(i int) {
	v, err := s.value(i)
	if err != nil {
		println("Error: params: read", i, err.Error())
		s.publishState("error", "read_failed", err)
		return
	}
	s.shown[i] = v.Pending
	s.pubRet(topicValue.Append(v.Name), v)
}

// refreshCommitted republishes values whose queued write has since landed.
func (s *Service) refreshCommitted() {
	for i, was := range s.shown {
		if was && !s.st.Pending(i) {
			s.publishValue(i)
		}
	}
}

func (s *Service) stats() types.ParamsStats {
	st := s.st.Stats()
	return types.ParamsStats{
		Queued:       st.Queued,
		Skipped:      st.Skipped,
		Dropped:      st.Dropped,
		Committed:    st.Committed,
		Failed:       st.Failed,
		BytesWritten: st.BytesWritten,
		WriteErrors:  st.WriteErrors,
		Pending:      st.Pending,
		Busy:         st.Busy,
	}
}

func (s *Service) publishStats() { s.pubRet(topicStats, s.stats()) }

func (s *Service) publishState(level, status string, err error) {
	if err != nil {
		status += ": " + err.Error()
	}
	s.pubRet(topicState, types.ParamsState{Level: level, Status: status, TS: timex.NowMs()})
}

func (s *Service) replyErr(req *bus.Message, err error) {
	s.conn.Reply(req, types.ParamSetAck{OK: false, Error: string(errcode.Of(err))}, false)
}

func (s *Service) pubRet(t bus.Topic, p any) {
	s.conn.Publish(s.conn.NewMessage(t, p, true))
}

package heartbeat

import (
	"context"
	"time"

	"eeparam-go/bus"
	"eeparam-go/types"
	"eeparam-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicParamsStats     = bus.T("params", "stats")
	topicHeartbeat       = bus.T("heartbeat")
)

type Service struct {
	// Interval is used until a config message sets one. Default 1s.
	Interval time.Duration
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	statsSub := conn.Subscribe(topicParamsStats)
	defer conn.Unsubscribe(statsSub)

	iv := s.Interval
	if iv <= 0 {
		iv = time.Second
	}
	tick := time.NewTicker(iv)
	defer tick.Stop()

	var (
		seq  uint32
		last types.ParamsStats
	)

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case <-tick.C:
			seq++
			println("Info: heartbeat", seq, "committed", last.Committed, "pending", last.Pending)
			conn.Publish(conn.NewMessage(topicHeartbeat, types.Heartbeat{
				Seq: seq, TS: timex.NowMs(), Params: last,
			}, false))
		case msg := <-statsSub.Channel():
			if st, ok := msg.Payload.(types.ParamsStats); ok {
				last = st
			}
		case msg := <-cfgSub.Channel():
			if c, ok := msg.Payload.(types.HeartbeatConfig); ok && c.IntervalS > 0 {
				tick.Reset(time.Duration(c.IntervalS) * time.Second)
				println("Info: heartbeat interval set to", c.IntervalS, "seconds")
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

// Package console is a line-oriented shell over the params bus topics.
//
//	> set lcd_light 7
//	ok
//	> set device_name "pico 001"
//	ok
//	> get bat_min_v
//	bat_min_v = 3300 (0x0ce4)
package console

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/google/shlex"

	"eeparam-go/bus"
	"eeparam-go/errcode"
	"eeparam-go/types"
	"eeparam-go/x/conv"
	"eeparam-go/x/strconvx"
)

const defaultTimeout = 3 * time.Second

// Dumper gives raw read access to the medium for the dump command.
type Dumper interface {
	ReadCell(addr uint16) (byte, error)
	Size() int
}

type Console struct {
	conn *bus.Connection
	out  io.Writer
	dump Dumper

	// Prompt is written before each line read by Run.
	Prompt string
	// Timeout bounds each bus request. Default 3s.
	Timeout time.Duration
}

// New returns a console writing to out. dump may be nil.
func New(conn *bus.Connection, out io.Writer, dump Dumper) *Console {
	return &Console{conn: conn, out: out, dump: dump, Prompt: "> ", Timeout: defaultTimeout}
}

type command struct {
	usage string
	run   func(c *Console, ctx context.Context, args []string)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":  {"help", (*Console).help},
		"list":  {"list", (*Console).list},
		"get":   {"get <name>", (*Console).get},
		"set":   {"set <name> <value> | set <name> <b0> <b1> ... | set <name> \"text\"", (*Console).set},
		"flush": {"flush", (*Console).flush},
		"stats": {"stats", (*Console).stats},
		"dump":  {"dump <addr> <len>", (*Console).dumpCells},
	}
}

var helpOrder = []string{"help", "list", "get", "set", "flush", "stats", "dump"}

// Run reads commands from in until EOF or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Split(scanLines)
	for {
		c.write(c.Prompt)
		if !sc.Scan() {
			return sc.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Exec(ctx, sc.Text())
	}
}

// scanLines splits on \n, \r or \r\n; serial terminals send a bare \r.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	for i, b := range data {
		if b != '\n' && b != '\r' {
			continue
		}
		adv := i + 1
		if b == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			adv++
		}
		return adv, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Exec runs one command line.
func (c *Console) Exec(ctx context.Context, line string) {
	args, err := shlex.Split(line)
	if err != nil {
		c.line("error: " + err.Error())
		return
	}
	if len(args) == 0 {
		return
	}
	cmd, ok := commands[args[0]]
	if !ok {
		c.line("error: unknown command \"" + args[0] + "\" (try help)")
		return
	}
	cmd.run(c, ctx, args[1:])
}

// ---- commands ----

func (c *Console) help(_ context.Context, _ []string) {
	for _, name := range helpOrder {
		c.line("  " + commands[name].usage)
	}
}

func (c *Console) list(ctx context.Context, _ []string) {
	p, ok := c.request(ctx, bus.T("params", "list"), nil)
	if !ok {
		return
	}
	infos, ok := p.([]types.ParamInfo)
	if !ok {
		c.replyError(p)
		return
	}
	for _, in := range infos {
		c.line(strconvx.Itoa(in.Index) + " " + in.Name +
			" size=" + strconvx.Itoa(in.Size) +
			" slots=" + strconvx.Itoa(in.Count) +
			" base=" + strconvx.Itoa(in.Base))
	}
}

func (c *Console) get(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.usage("get")
		return
	}
	p, ok := c.request(ctx, bus.T("params", "get", args[0]), nil)
	if !ok {
		return
	}
	v, ok := p.(types.ParamValue)
	if !ok {
		c.replyError(p)
		return
	}
	c.line(formatValue(v))
}

func (c *Console) set(ctx context.Context, args []string) {
	if len(args) < 2 {
		c.usage("set")
		return
	}
	size, ok := c.sizeOf(ctx, args[0])
	if !ok {
		return
	}
	data, err := parseValue(size, args[1:])
	if err != nil {
		c.line("error: " + err.Error())
		return
	}
	p, ok := c.request(ctx, bus.T("params", "set", args[0]), types.ParamSet{Data: data})
	if !ok {
		return
	}
	a, ok := p.(types.ParamSetAck)
	switch {
	case !ok || !a.OK:
		c.replyError(p)
	case !a.Queued:
		c.line("ok (unchanged)")
	default:
		c.line("ok")
	}
}

func (c *Console) flush(ctx context.Context, _ []string) {
	p, ok := c.request(ctx, bus.T("params", "flush"), nil)
	if !ok {
		return
	}
	st, ok := p.(types.ParamsStats)
	if !ok {
		c.replyError(p)
		return
	}
	c.line("flushed: committed=" + strconvx.FormatUint(uint64(st.Committed), 10) +
		" bytes=" + strconvx.FormatUint(uint64(st.BytesWritten), 10))
}

func (c *Console) stats(ctx context.Context, _ []string) {
	sub := c.conn.Subscribe(bus.T("params", "stats"))
	defer c.conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		if st, ok := m.Payload.(types.ParamsStats); ok {
			c.line(formatStats(st))
			return
		}
		c.line("error: malformed stats")
	case <-time.After(c.timeout()):
		c.line("error: no stats published")
	case <-ctx.Done():
	}
}

func (c *Console) dumpCells(_ context.Context, args []string) {
	if c.dump == nil {
		c.line("error: dump not available")
		return
	}
	if len(args) != 2 {
		c.usage("dump")
		return
	}
	addr, err1 := strconvx.ParseUint(args[0], 0, 16)
	n, err2 := strconvx.ParseUint(args[1], 0, 16)
	if err1 != nil || err2 != nil {
		c.usage("dump")
		return
	}
	if int(addr)+int(n) > c.dump.Size() {
		c.line("error: range exceeds medium of " + strconvx.Itoa(c.dump.Size()) + " bytes")
		return
	}
	row := make([]byte, 0, 16)
	var out []byte
	for i := 0; i < int(n); i++ {
		b, err := c.dump.ReadCell(uint16(int(addr) + i))
		if err != nil {
			c.line("error: " + err.Error())
			return
		}
		row = append(row, b)
		if len(row) == 16 || i == int(n)-1 {
			out = conv.AppendDumpLine(out[:0], uint16(int(addr)+i+1-len(row)), row)
			c.write(string(out))
			row = row[:0]
		}
	}
}

// ---- helpers ----

// sizeOf asks the service for the element size of name.
func (c *Console) sizeOf(ctx context.Context, name string) (int, bool) {
	p, ok := c.request(ctx, bus.T("params", "get", name), nil)
	if !ok {
		return 0, false
	}
	v, ok := p.(types.ParamValue)
	if !ok {
		c.replyError(p)
		return 0, false
	}
	return len(v.Data), true
}

func (c *Console) request(ctx context.Context, topic bus.Topic, payload any) (any, bool) {
	rctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	rep, err := c.conn.RequestWait(rctx, c.conn.NewMessage(topic, payload, false))
	if err != nil {
		c.line("error: " + string(errcode.Timeout))
		return nil, false
	}
	return rep.Payload, true
}

func (c *Console) replyError(p any) {
	if a, ok := p.(types.ParamSetAck); ok && a.Error != "" {
		c.line("error: " + a.Error)
		return
	}
	c.line("error: unexpected reply")
}

func (c *Console) usage(name string) { c.line("usage: " + commands[name].usage) }

func (c *Console) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func (c *Console) line(s string) { c.write(s + "\n") }

func (c *Console) write(s string) { _, _ = io.WriteString(c.out, s) }

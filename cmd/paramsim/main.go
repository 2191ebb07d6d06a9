// Command paramsim runs the parameter store on a simulated EEPROM with a
// console on stdin. The medium image is loaded from and saved to a file so
// values survive restarts.
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"eeparam-go/bus"
	"eeparam-go/drivers/simeeprom"
	"eeparam-go/nvstore"
	"eeparam-go/services/config"
	"eeparam-go/services/console"
	"eeparam-go/services/heartbeat"
	"eeparam-go/services/params"
	"eeparam-go/types"
	"eeparam-go/x/mathx"
)

var opts struct {
	image     string
	device    string
	latency   time.Duration
	endurance uint32
}

var rootCmd = &cobra.Command{
	Use:          "paramsim",
	Short:        "Run the parameter store on a simulated EEPROM",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return run(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.image, "image", "eeprom.bin", "medium image file; created on exit if missing")
	f.StringVar(&opts.device, "device", "host", "embedded config to use")
	f.DurationVar(&opts.latency, "latency", time.Millisecond, "simulated time per byte write")
	f.Uint32Var(&opts.endurance, "endurance", 0, "writes per cell before it wears out (0: unlimited)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run serves the console on in/out until in ends or ctx is done, then
// flushes queued writes and saves the image.
func run(ctx context.Context, in io.Reader, out io.Writer) error {
	raw, ok := config.EmbeddedConfigLookup(opts.device)
	if !ok {
		return errors.New("no embedded config for device " + opts.device)
	}
	cfg, err := config.Load(raw)
	if err != nil {
		return err
	}
	pc, _ := cfg["params"].(types.ParamsConfig)
	prompt := "> "
	if c, ok := cfg["console"].(map[string]any); ok {
		if p, ok := c["prompt"].(string); ok {
			prompt = p
		}
	}

	m := simeeprom.New(params.MediumSize,
		simeeprom.WithLatency(opts.latency),
		simeeprom.WithEndurance(opts.endurance))
	if img, err := os.ReadFile(opts.image); err == nil {
		if err := m.Load(img); err != nil {
			return err
		}
		log.Printf("loaded %s", opts.image)
	} else if !os.IsNotExist(err) {
		return err
	}

	st, err := nvstore.New(m, params.Layout,
		nvstore.WithQueueCapacity(mathx.Clamp(mathx.OrDefault(pc.QueueCapacity, nvstore.DefaultQueueCapacity), 1, 255)))
	if err != nil {
		return err
	}

	// The medium outlives ctx so the exit flush still gets ready notifications.
	mctx, mcancel := context.WithCancel(context.Background())
	defer mcancel()
	go m.Run(mctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := bus.NewBus(16)
	config.NewConfigService().Start(context.WithValue(runCtx, config.CtxDeviceKey, opts.device), b.NewConnection("config"))
	params.New(st, pc).Start(runCtx, b.NewConnection("params"))
	_ = (&heartbeat.Service{}).Start(runCtx, b.NewConnection("heartbeat"))
	if err := waitReady(runCtx, b.NewConnection("paramsim"), 2*time.Second); err != nil {
		return err
	}

	con := console.New(b.NewConnection("console"), out, m)
	con.Prompt = prompt
	done := make(chan error, 1)
	go func() { done <- con.Run(runCtx, in) }()

	select {
	case err = <-done:
	case <-ctx.Done():
	}
	cancel()

	fctx, fcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer fcancel()
	if ferr := st.Flush(fctx); ferr != nil {
		log.Printf("flush on exit: %v", ferr)
	}
	if werr := os.WriteFile(opts.image, m.Image(), 0o644); werr != nil {
		return werr
	}
	log.Printf("saved %s (max cell wear %d)", opts.image, m.MaxWear())
	return err
}

// waitReady blocks until the params service reports ready, so console
// requests are not published before it subscribes.
func waitReady(ctx context.Context, conn *bus.Connection, timeout time.Duration) error {
	sub := conn.Subscribe(bus.T("params", "state"))
	defer conn.Unsubscribe(sub)
	deadline := time.After(timeout)
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.ParamsState); ok && st.Level == "ready" {
				return nil
			}
		case <-deadline:
			return errors.New("params service not ready")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

//go:build rp2040 || rp2350

// Command pico-params runs the parameter store on an AT24C32 on I2C0
// (GP4 SDA, GP5 SCL) with the console on UART0 (GP0 TX, GP1 RX).
package main

import (
	"context"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"eeparam-go/bus"
	"eeparam-go/drivers/at24async"
	"eeparam-go/nvstore"
	"eeparam-go/services/config"
	"eeparam-go/services/console"
	"eeparam-go/services/heartbeat"
	"eeparam-go/services/params"
	"eeparam-go/types"
)

const device = "pico"

// uartReader adapts the UART's context-aware receive to io.Reader.
type uartReader struct {
	ctx context.Context
	u   *uartx.UART
}

func (r uartReader) Read(p []byte) (int, error) { return r.u.RecvSomeContext(r.ctx, p) }

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("Info: boot")

	ctx := context.Background()

	raw, _ := config.EmbeddedConfigLookup(device)
	cfg, err := config.Load(raw)
	if err != nil {
		println("Error: config:", err.Error())
	}
	pc, _ := cfg["params"].(types.ParamsConfig)

	if err := machine.I2C0.Configure(machine.I2CConfig{
		SDA:       machine.GP4,
		SCL:       machine.GP5,
		Frequency: 400 * machine.KHz,
	}); err != nil {
		println("Error: i2c0:", err.Error())
		return
	}
	eeprom := at24async.New(machine.I2C0, at24async.Config{Size: 4096})
	eeprom.Start(ctx)

	opts := []nvstore.Option{}
	if pc.QueueCapacity > 0 {
		opts = append(opts, nvstore.WithQueueCapacity(pc.QueueCapacity))
	}
	st, err := nvstore.New(eeprom, params.Layout, opts...)
	if err != nil {
		println("Error: nvstore:", err.Error())
		return
	}

	b := bus.NewBus(8)
	config.NewConfigService().Start(context.WithValue(ctx, config.CtxDeviceKey, device), b.NewConnection("config"))
	params.New(st, pc).Start(ctx, b.NewConnection("params"))
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))

	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	con := console.New(b.NewConnection("console"), u, eeprom)
	if p, ok := cfg["console"].(map[string]any); ok {
		if s, ok := p["prompt"].(string); ok {
			con.Prompt = s
		}
	}
	for {
		if err := con.Run(ctx, uartReader{ctx: ctx, u: u}); err != nil {
			println("Warn: console:", err.Error())
			time.Sleep(100 * time.Millisecond)
		}
	}
}

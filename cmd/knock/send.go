package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/mattjoyce/knock/internal/config"
	"github.com/mattjoyce/knock/internal/protocol"
)

const defaultSendTimeout = 5 * time.Second

// clientFlags are shared by send and shutdown.
type clientFlags struct {
	addr       string
	configPath string
	timeout    time.Duration
}

func (c *clientFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.addr, "addr", "", "Dispatcher address host:port (default: bind_address from config)")
	fs.StringVar(&c.configPath, "config", "", "Config file or directory used to look up bind_address")
	fs.DurationVar(&c.timeout, "timeout", defaultSendTimeout, "Dial/write timeout")
}

// target returns --addr, or the bind_address of the config.
func (c *clientFlags) target() (string, error) {
	if c.addr != "" {
		return c.addr, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return "", fmt.Errorf("no --addr given and config unavailable: %w", err)
	}
	return cfg.BindAddress, nil
}

func runSend(args []string) int {
	var cf clientFlags
	var command, value int
	var raw string

	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	cf.register(fs)
	fs.IntVar(&command, "command", -1, "Command code 0-255")
	fs.IntVar(&value, "value", 0, "Value/index 0-255")
	fs.StringVar(&raw, "raw", "", "Raw frame bytes in hex (1-8 bytes)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	var payload []byte
	switch {
	case raw != "" && command >= 0:
		fmt.Fprintln(os.Stderr, "Error: use either --raw or --command/--value, not both")
		return 1
	case raw != "":
		b, err := protocol.ParseHex(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --raw: %v\n", err)
			return 1
		}
		payload = b
	case command >= 0:
		if command > 255 || value < 0 || value > 255 {
			fmt.Fprintln(os.Stderr, "Error: --command and --value must be in 0-255")
			return 1
		}
		frame := protocol.Encode(protocol.Message{Command: byte(command), Value: byte(value)})
		payload = frame[:]
	default:
		fmt.Fprintln(os.Stderr, "Usage: knock send [--addr HOST:PORT] --command N --value N | --raw HEX")
		return 1
	}

	addr, err := cf.target()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := sendFrame(addr, payload, cf.timeout); err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		return 1
	}
	fmt.Printf("Sent % x to %s\n", payload, addr)
	return 0
}

func runShutdown(args []string) int {
	var cf clientFlags
	fs := flag.NewFlagSet("shutdown", flag.ContinueOnError)
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	addr, err := cf.target()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	frame := protocol.Encode(protocol.Message{Command: protocol.CommandShutdown})
	if err := sendFrame(addr, frame[:], cf.timeout); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown failed: %v\n", err)
		return 1
	}
	fmt.Printf("Shutdown requested at %s\n", addr)
	return 0
}

// sendFrame writes payload on a fresh connection and closes it. The
// dispatcher never replies.
func sendFrame(addr string, payload []byte, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write %s: %w", addr, err)
	}
	return nil
}

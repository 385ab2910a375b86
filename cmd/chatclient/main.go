package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/parley/chat-client/internal/client"
	"github.com/parley/chat-client/internal/metrics"
	"github.com/parley/chat-client/internal/session"
	"github.com/parley/chat-client/internal/transport"
)

func main() {
	serverURL := "ws://localhost:3001/ws"
	if v := os.Getenv("SERVER_URL"); v != "" {
		serverURL = v
	}
	transportKind := "ws"
	if v := os.Getenv("TRANSPORT"); v != "" {
		transportKind = v
	}
	metricsAddr := os.Getenv("METRICS_ADDR")

	config := client.DefaultConfig()
	if v := os.Getenv("REGISTER_FLOW_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RegisterFlowDelay = d
		}
	}
	if v := os.Getenv("LOGIN_JOIN_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.LoginJoinDelay = d
		}
	}

	var tr transport.Transport
	switch transportKind {
	case "ws":
		tr = transport.NewWS(serverURL)
	case "nats":
		natsConfig := transport.DefaultNATSConfig()
		if v := os.Getenv("NATS_URL"); v != "" {
			natsConfig.URL = v
		}
		tr = transport.NewNATS(natsConfig)
	default:
		log.Fatalf("unknown TRANSPORT %q (want ws or nats)", transportKind)
	}

	log.Printf("Parley chat client starting")
	log.Printf("  transport:           %s", transportKind)
	log.Printf("  server_url:          %s", serverURL)
	log.Printf("  register_flow_delay: %s", config.RegisterFlowDelay)
	log.Printf("  login_join_delay:    %s", config.LoginJoinDelay)
	if metricsAddr != "" {
		log.Printf("  metrics_addr:        %s", metricsAddr)
	}

	printer := &printer{}
	config.OnChange = printer.onChange

	c := client.New(tr, config)
	printer.client = c

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Retry policy lives here, outside the core: the supervisor only ever
	// dials when told to.
	go superviseConnection(ctx, c)

	go readCommands(ctx, c, cancel)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	if err := c.Close(); err != nil {
		log.Printf("close: %v", err)
	}
}

// superviseConnection dials with exponential backoff and redials whenever
// the connection drops.
func superviseConnection(ctx context.Context, c *client.Client) {
	backoff := time.Second
	for ctx.Err() == nil {
		if err := c.Connect(ctx); err != nil {
			log.Printf("connect failed: %v (retrying in %s)", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		// Wait for the connection acknowledgement, then for the drop.
		deadline := time.Now().Add(10 * time.Second)
		for !c.Connected() && time.Now().Before(deadline) && ctx.Err() == nil {
			time.Sleep(100 * time.Millisecond)
		}
		for c.Connected() && ctx.Err() == nil {
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// readCommands runs the stdin loop. Slash commands drive auth; anything else
// is sent as a chat message.
func readCommands(ctx context.Context, c *client.Client, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			c.UpdateComposition(line)
			if err := c.Send(); err != nil {
				fmt.Printf("! %v\n", err)
			}
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/register":
			if len(fields) < 3 {
				fmt.Println("usage: /register <username> <password> [display name]")
				continue
			}
			name := strings.Join(fields[3:], " ")
			if err := c.SubmitRegister(fields[1], fields[2], name); err != nil {
				fmt.Printf("! %v\n", err)
			}
		case "/login":
			if len(fields) != 3 {
				fmt.Println("usage: /login <username> <password>")
				continue
			}
			if err := c.SubmitLogin(fields[1], fields[2]); err != nil {
				fmt.Printf("! %v\n", err)
			}
		case "/flow":
			if len(fields) == 2 && fields[1] == "register" {
				c.SetFlow(session.FlowRegister)
			} else {
				c.SetFlow(session.FlowLogin)
			}
		case "/who":
			snap := c.Snapshot()
			fmt.Printf("online (%d):\n", len(snap.Users))
			for _, u := range snap.Users {
				you := ""
				if u.ID == snap.OwnID {
					you = " (you)"
				}
				fmt.Printf("  %s%s\n", u.Name, you)
			}
		case "/quit":
			cancel()
			return
		default:
			fmt.Printf("unknown command %s\n", fields[0])
		}
	}
	cancel()
}

// printer renders state changes incrementally: new messages as they append,
// plus session notices, errors, and typing-indicator changes.
type printer struct {
	client *client.Client

	mu         sync.Mutex
	printed    int
	lastNotice string
	lastError  string
	lastTyping string
}

func (p *printer) onChange() {
	if p.client == nil {
		return
	}
	snap := p.client.Snapshot()

	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Session.Notice != "" && snap.Session.Notice != p.lastNotice {
		fmt.Printf("* %s\n", snap.Session.Notice)
	}
	p.lastNotice = snap.Session.Notice

	if snap.Session.Error != "" && snap.Session.Error != p.lastError {
		fmt.Printf("! %s\n", snap.Session.Error)
	}
	p.lastError = snap.Session.Error

	msgs := snap.Messages
	if p.printed > len(msgs) {
		p.printed = 0 // log was re-based by a fresh history snapshot
	}
	for _, m := range msgs[p.printed:] {
		author := m.UserName
		if m.UserID == snap.OwnID {
			author = "you"
		}
		ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
		fmt.Printf("[%s] %s: %s\n", ts, author, m.Text)
	}
	p.printed = len(msgs)

	typing := ""
	switch n := len(snap.Typing); {
	case n == 1:
		typing = snap.Typing[0].Name + " is typing..."
	case n > 1:
		typing = fmt.Sprintf("%d people are typing...", n)
	}
	if typing != "" && typing != p.lastTyping {
		fmt.Printf("* %s\n", typing)
	}
	p.lastTyping = typing
}

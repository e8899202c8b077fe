// Command peer plays in a shared session from the terminal.
//
// Each stdin line is a key (h j k l, space, p, ArrowLeft...) or one of the
// words pay, reset and quit. Several single-letter keys may share a line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DoyleJ11/tetris-together/internal/config"
	"github.com/DoyleJ11/tetris-together/internal/input"
	"github.com/DoyleJ11/tetris-together/internal/logging"
	"github.com/DoyleJ11/tetris-together/internal/payment"
	"github.com/DoyleJ11/tetris-together/internal/player"
	"github.com/DoyleJ11/tetris-together/internal/wsclient"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const renderEvery = 100 * time.Millisecond

var errQuit = errors.New("quit")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "peer:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotenv(); err != nil {
		return err
	}
	cfg, err := config.LoadPeer()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := cfg.Session
	if code == "" {
		if code, err = createSession(ctx, cfg.ServerURL); err != nil {
			return err
		}
		fmt.Printf("created session %s\n", code)
	}

	client, err := wsclient.Dial(ctx, cfg.ServerURL, code, cfg.Name, log)
	if err != nil {
		return err
	}

	account := cfg.Account
	if account == "" {
		account = "local-" + cfg.Name
	}
	gate := payment.NewMemory(cfg.EntryFee, cfg.ConfirmDelay, log)
	defer gate.Close()

	p := player.New(ctx, player.Options{
		Adapter:      client,
		Gate:         gate,
		Log:          log,
		PollInterval: cfg.Tick,
		PeerID:       client.LocalID(),
		Name:         cfg.Name,
		Account:      account,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := client.Run(gctx); err != nil {
			return err
		}
		fmt.Println("relay closed the connection")
		return errQuit
	})
	g.Go(func() error { return render(gctx, p) })
	g.Go(func() error { return readKeys(gctx, p, lines(os.Stdin)) })

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		err = nil
	}
	return multierr.Combine(err, p.Close(), client.Close())
}

// lines feeds stdin to the key loop. The goroutine ends with the process.
func lines(f *os.File) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

func readKeys(ctx context.Context, p *player.Player, in <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-in:
			if !ok {
				return errQuit
			}
			if err := handleLine(ctx, p, line); err != nil {
				return err
			}
		}
	}
}

func handleLine(ctx context.Context, p *player.Player, line string) error {
	switch strings.TrimSpace(line) {
	case "quit", "q":
		return errQuit
	case "pay":
		reply := make(chan error, 1)
		if err := p.Send(ctx, player.EnterGame{Reply: reply}); err != nil {
			return err
		}
		report("pay", <-reply)
		return nil
	case "reset":
		reply := make(chan error, 1)
		if err := p.Send(ctx, player.Reset{Reply: reply}); err != nil {
			return err
		}
		report("reset", <-reply)
		return nil
	}

	if cmd, ok := input.Command(line); ok {
		return p.Send(ctx, player.Input{Cmd: cmd})
	}
	for _, r := range line {
		cmd, ok := input.Command(string(r))
		if !ok {
			continue
		}
		if err := p.Send(ctx, player.Input{Cmd: cmd}); err != nil {
			return err
		}
	}
	return nil
}

func report(what string, err error) {
	switch {
	case err == nil:
		fmt.Printf("%s: ok\n", what)
	case errors.Is(err, player.ErrNotPaid):
		fmt.Printf("%s: pay the entry fee first\n", what)
	case errors.Is(err, payment.ErrPending):
		fmt.Printf("%s: payment still confirming\n", what)
	default:
		fmt.Printf("%s: %v\n", what, err)
	}
}

// render redraws whenever the view text changes.
func render(ctx context.Context, p *player.Player) error {
	t := time.NewTicker(renderEvery)
	defer t.Stop()
	var last string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			v, err := p.View(ctx)
			if err != nil {
				return err
			}
			if text := v.Text(); text != last {
				last = text
				fmt.Print("\033[H\033[2J", text)
			}
		}
	}
}

// createSession asks the relay for a fresh code over plain HTTP.
func createSession(ctx context.Context, wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws") + "/sessions"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create session: %s", resp.Status)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return body.Code, nil
}

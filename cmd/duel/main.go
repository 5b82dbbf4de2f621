// Command duel plays one game against a partner from the terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/duel/internal/api"
	"github.com/DoyleJ11/duel/internal/config"
	"github.com/DoyleJ11/duel/internal/conn"
	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/lifecycle"
	"github.com/DoyleJ11/duel/internal/logging"
)

const help = `commands:
  place ROW COL   tic-tac-toe
  drop COL        connect four
  set WORD        word duel, as setter
  guess WORD      word duel, as guesser
  forfeit | again | refresh | history [PAGE] | stats | quit`

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	partner := flag.String("partner", "", "player to play against")
	kind := flag.String("game", string(game.KindTicTacToe), "game kind: tictactoe, connectfour or wordduel")
	flag.StringVar(&cfg.ServiceURL, "service", cfg.ServiceURL, "game service base URL")
	flag.StringVar(&cfg.Self, "as", cfg.Self, "your player id")
	flag.Parse()

	k, err := game.ParseKind(*kind)
	if err != nil || *partner == "" || cfg.Self == "" {
		fmt.Fprintln(os.Stderr, "usage: duel -as PLAYER -partner PLAYER [-game KIND]")
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, *partner, k, log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Client, partner string, kind game.Kind, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	wsURL, err := websocketURL(cfg.ServiceURL)
	if err != nil {
		return err
	}
	client := api.NewClient(cfg.ServiceURL, cfg.Token, nil)
	dial := lifecycle.WebsocketDialer(conn.Options{
		URL:          wsURL,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, cfg.Token, log)

	ctl := lifecycle.New(lifecycle.Config{
		Self:         cfg.Self,
		Partner:      partner,
		Kind:         kind,
		TurnDuration: cfg.TurnDuration,
		TickInterval: cfg.TickInterval,
	}, dial, client, log)
	defer ctl.Close()

	go render(ctl.Views(), cfg.Self)

	if err := ctl.Activate(ctx); err != nil {
		return fmt.Errorf("could not start: %w", err)
	}
	fmt.Println(help)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if cmd.kind == cmdQuit {
				return nil
			}
			if err := execute(ctx, ctl, client, kind, cmd); err != nil {
				fmt.Println("error:", err)
			}
		}
	}
}

func execute(ctx context.Context, ctl *lifecycle.Controller, client *api.Client, kind game.Kind, cmd command) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cmd.kind {
	case cmdMove:
		return ctl.Submit(ctx, cmd.move)
	case cmdWord:
		ctl.SetDraft(cmd.word)
		return ctl.SubmitDraft(ctx, cmd.move.Type)
	case cmdForfeit:
		return ctl.Forfeit(ctx)
	case cmdAgain:
		return ctl.PlayAgain(ctx)
	case cmdRefresh:
		return ctl.Refresh(ctx)
	case cmdHistory:
		page, err := client.History(ctx, kind, cmd.page, 10)
		if err != nil {
			return err
		}
		for _, s := range page.Sessions {
			fmt.Printf("%s  %-9s  %s\n", s.CreatedAt.Format(time.DateTime), s.Status, outcome(s))
		}
		if page.NextPage > 0 {
			fmt.Printf("more: history %d\n", page.NextPage)
		}
	case cmdStats:
		st, err := client.Stats(ctx, kind)
		if err != nil {
			return err
		}
		fmt.Printf("played %d  won %d  lost %d  drawn %d  streak %d (best %d)\n",
			st.Played, st.Wins, st.Losses, st.Draws, st.CurrentStreak, st.BestStreak)
	}
	return nil
}

func render(views <-chan lifecycle.View, self string) {
	for v := range views {
		fmt.Print(describe(v, self))
	}
}

func describe(v lifecycle.View, self string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s]", v.Phase)
	if v.Stale {
		b.WriteString(" (connection lost: refresh)")
	}
	b.WriteByte('\n')
	if s := v.Session; s != nil {
		b.WriteString(game.Describe(s))
		left := fmt.Sprintf("%ds/%ds left", int(v.Remaining.Seconds()), int(v.Turn.Seconds()))
		if v.TimeUp {
			left = "time is up, waiting for the service"
		}
		switch {
		case s.Status == game.StatusActive && s.CurrentTurn == self:
			fmt.Fprintf(&b, "your turn, %s\n", left)
		case s.Status == game.StatusActive:
			fmt.Fprintf(&b, "%s to play, %s\n", s.CurrentTurn, left)
		case s.Status.Terminal():
			b.WriteString(outcome(s) + "\n")
		}
	}
	if v.Notice != nil {
		fmt.Fprintf(&b, "rejected: %v\n", v.Notice)
	}
	if v.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", v.Err)
	}
	return b.String()
}

func outcome(s *game.Session) string {
	switch {
	case s.IsDraw:
		return "draw"
	case s.Winner != "" && s.ForfeitedBy != "":
		return fmt.Sprintf("%s wins, %s forfeited", s.Winner, s.ForfeitedBy)
	case s.Winner != "":
		return s.Winner + " wins"
	case s.ForfeitedBy != "":
		return s.ForfeitedBy + " left before the start"
	}
	return ""
}

// websocketURL maps the service base URL onto its /ws endpoint.
func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("service url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("service url must be http(s) or ws(s)")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

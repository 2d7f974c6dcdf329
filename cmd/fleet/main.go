// Command fleet is the player client: it keeps board secrets locally and
// plays games against a battlechain node.
//
//	fleet keygen  [-key player.key]
//	fleet open
//	fleet create  -bet 100 -fleet H005H104H203H303H402
//	fleet join    -game 1 -bet 100 -fleet V005V114V223V333V442
//	fleet fire    -game 1 -row 3 -col 4
//	fleet confirm -game 1
//	fleet quit    -game 1
//	fleet close   -game 1
//	fleet view    -game 1 [-follow]
//	fleet games
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tolelom/battlechain/client"
	"github.com/tolelom/battlechain/config"
	"github.com/tolelom/battlechain/internal/logger"
	"github.com/tolelom/battlechain/player"
	"github.com/tolelom/battlechain/projector"
	"github.com/tolelom/battlechain/secrets"
	"github.com/tolelom/battlechain/wallet"
)

const (
	envRPCURL   = "BATTLECHAIN_RPC_URL"
	envRPCToken = "BATTLECHAIN_RPC_TOKEN"
	envPassword = "BATTLECHAIN_PASSWORD"
	envRedisURL = "BATTLECHAIN_REDIS_URL"
)

// options are the flags every subcommand accepts.
type options struct {
	rpcURL     string
	token      string
	keyPath    string
	secretsDir string
	redisURL   string
	fee        uint64
	timeout    time.Duration
	logLevel   string

	gameID uint64
	bet    uint64
	fleet  string
	row    int
	col    int
	follow bool
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.rpcURL, "rpc", envOr(envRPCURL, "http://localhost:8545/"), "node RPC URL")
	fs.StringVar(&o.token, "token", os.Getenv(envRPCToken), "RPC bearer token")
	fs.StringVar(&o.keyPath, "key", "player.key", "path to keystore file")
	fs.StringVar(&o.secretsDir, "secrets", "fleet-secrets", "directory of the local secret store")
	fs.StringVar(&o.redisURL, "redis", os.Getenv(envRedisURL), "keep secrets in redis instead (redis://...)")
	fs.Uint64Var(&o.fee, "fee", 0, "fee per transaction")
	fs.DurationVar(&o.timeout, "timeout", time.Minute, "how long to wait for inclusion")
	fs.StringVar(&o.logLevel, "log", "warn", "log level")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type command struct {
	usage string
	flags func(fs *flag.FlagSet, o *options)
	run   func(ctx context.Context, e *env, o *options) error
}

func gameFlag(fs *flag.FlagSet, o *options) {
	fs.Uint64Var(&o.gameID, "game", 0, "game ID")
}

func stakeFlags(fs *flag.FlagSet, o *options) {
	fs.Uint64Var(&o.bet, "bet", 0, "stake escrowed by the game")
	fs.StringVar(&o.fleet, "fleet", "", "ship placement, 5 ships of 4 chars such as H005H104H203H303H402")
}

var commands = map[string]command{
	"keygen":  {usage: "create a player key", run: nil},
	"open":    {usage: "list games waiting for an opponent", run: runOpen},
	"games":   {usage: "list games with local secrets", run: runGames},
	"create":  {usage: "open a new game", flags: stakeFlags, run: runCreate},
	"join":    {usage: "join an open game", flags: func(fs *flag.FlagSet, o *options) { gameFlag(fs, o); stakeFlags(fs, o) }, run: runJoin},
	"fire":    {usage: "reveal the last shot at you and fire", flags: fireFlags, run: runFire},
	"confirm": {usage: "reveal your board to claim the win", flags: gameFlag, run: runConfirm},
	"quit":    {usage: "abandon a game or claim it on timeout", flags: gameFlag, run: runQuit},
	"close":   {usage: "withdraw a game nobody joined", flags: gameFlag, run: runClose},
	"view":    {usage: "show a game", flags: viewFlags, run: runView},
}

func fireFlags(fs *flag.FlagSet, o *options) {
	gameFlag(fs, o)
	fs.IntVar(&o.row, "row", -1, "target row 0-7")
	fs.IntVar(&o.col, "col", -1, "target column 0-7")
}

func viewFlags(fs *flag.FlagSet, o *options) {
	gameFlag(fs, o)
	fs.BoolVar(&o.follow, "follow", false, "keep printing as the game advances")
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: fleet <command> [flags]")
	for _, name := range []string{"keygen", "open", "games", "create", "join", "fire", "confirm", "quit", "close", "view"} {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].usage)
	}
}

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("missing command")
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", name)
	}

	var o options
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	o.register(fs)
	if cmd.flags != nil {
		cmd.flags(fs, &o)
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	logger.InitWriter(os.Stderr, o.logLevel, false)

	password := os.Getenv(envPassword)
	if name == "keygen" {
		return runKeygen(out, &o, password)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if !o.follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	e, err := open(ctx, &o, password, out)
	if err != nil {
		return err
	}
	defer e.close()
	return cmd.run(ctx, e, &o)
}

func runKeygen(out io.Writer, o *options, password string) error {
	if _, err := os.Stat(o.keyPath); err == nil {
		return fmt.Errorf("%s already exists", o.keyPath)
	}
	w, err := wallet.Generate()
	if err != nil {
		return err
	}
	if err := wallet.SaveKey(o.keyPath, password, w.PrivKey()); err != nil {
		return err
	}
	fmt.Fprintf(out, "address: %s\nsaved to: %s\n", w.PubKey(), o.keyPath)
	return nil
}

// env is an opened player session.
type env struct {
	player *player.Player
	store  secrets.Store
	out    io.Writer
}

func (e *env) close() { _ = e.store.Close() }

func open(ctx context.Context, o *options, password string, out io.Writer) (*env, error) {
	priv, err := wallet.LoadKey(o.keyPath, password)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", o.keyPath, err)
	}
	w := wallet.New(priv)

	var store secrets.Store
	if o.redisURL != "" {
		store, err = secrets.DialRedisStore(ctx, o.redisURL, password)
	} else {
		store, err = secrets.OpenLevelStore(o.secretsDir, password)
	}
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}

	var copts []client.Option
	if o.token != "" {
		copts = append(copts, client.WithToken(o.token))
	}
	p, err := player.New(ctx, w, client.New(o.rpcURL, copts...), store, player.WithFee(o.fee))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &env{player: p, store: store, out: out}, nil
}

func requireGame(o *options) error {
	if o.gameID == 0 {
		return errors.New("-game is required")
	}
	return nil
}

func runOpen(ctx context.Context, e *env, _ *options) error {
	games, err := e.player.OpenGames(ctx)
	if err != nil {
		return err
	}
	if len(games) == 0 {
		fmt.Fprintln(e.out, "no open games")
		return nil
	}
	for _, g := range games {
		fmt.Fprintf(e.out, "game %d  bet %d  challenger %s\n", g.GameID, g.BetAmount, g.Challenger)
	}
	return nil
}

func runGames(ctx context.Context, e *env, _ *options) error {
	ids, err := e.player.Games(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(e.out, id)
	}
	return nil
}

func runCreate(ctx context.Context, e *env, o *options) error {
	s, err := e.player.NewSecrets(o.fleet)
	if err != nil {
		return err
	}
	id, err := e.player.CreateGame(ctx, s, o.bet)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "created game %d\n", id)
	return nil
}

func runJoin(ctx context.Context, e *env, o *options) error {
	if err := requireGame(o); err != nil {
		return err
	}
	s, err := e.player.NewSecrets(o.fleet)
	if err != nil {
		return err
	}
	if err := e.player.JoinGame(ctx, o.gameID, s, o.bet); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "joined game %d, you fire first\n", o.gameID)
	return nil
}

func runFire(ctx context.Context, e *env, o *options) error {
	if err := requireGame(o); err != nil {
		return err
	}
	v, err := e.player.LaunchTorpedo(ctx, o.gameID, o.row, o.col)
	if err != nil {
		return err
	}
	return render(e.out, v)
}

func runConfirm(ctx context.Context, e *env, o *options) error {
	if err := requireGame(o); err != nil {
		return err
	}
	v, err := e.player.ConfirmLegitWin(ctx, o.gameID)
	if err != nil {
		return err
	}
	return render(e.out, v)
}

func runQuit(ctx context.Context, e *env, o *options) error {
	if err := requireGame(o); err != nil {
		return err
	}
	v, err := e.player.QuitGame(ctx, o.gameID)
	if err != nil {
		return err
	}
	return render(e.out, v)
}

func runClose(ctx context.Context, e *env, o *options) error {
	if err := requireGame(o); err != nil {
		return err
	}
	v, err := e.player.CloseGame(ctx, o.gameID)
	if err != nil {
		return err
	}
	return render(e.out, v)
}

func runView(ctx context.Context, e *env, o *options) error {
	if err := requireGame(o); err != nil {
		return err
	}
	if !o.follow {
		v, err := e.player.View(ctx, o.gameID)
		if err != nil {
			return err
		}
		return render(e.out, v)
	}
	err := e.player.Follow(ctx, o.gameID, func(v *projector.View) error {
		fmt.Fprintln(e.out)
		return render(e.out, v)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

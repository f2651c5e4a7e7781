// Command tixscan is the gate-side scanner CLI: it pulls signed manifests,
// validates and checks in tickets (online or offline), and reconciles the
// offline queue with the gate server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/tixgate/tixgate/internal/device/client"
	"github.com/tixgate/tixgate/internal/device/gate"
	"github.com/tixgate/tixgate/internal/device/local"
	"github.com/tixgate/tixgate/internal/device/reconcile"
	"github.com/tixgate/tixgate/internal/manifest"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "tixscan")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tixscan")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.Create(tokenPath())
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

func saveDeviceID(id string) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	return os.WriteFile(filepath.Join(cfgDir(), "device_id"), []byte(strings.TrimSpace(id)), 0o600)
}

func loadDeviceID() (string, error) {
	b, err := os.ReadFile(filepath.Join(cfgDir(), "device_id"))
	if err != nil {
		return "", errors.New("no device id saved (login required)")
	}
	return strings.TrimSpace(string(b)), nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func mustUUID(s, what string) u.UUID {
	id, err := u.FromString(s)
	if err != nil {
		fail(fmt.Errorf("bad %s: %w", what, err))
	}
	return id
}

func usage() {
	fmt.Fprintf(os.Stderr, `tixscan CLI
Usage:
  tixscan -addr URL [-db file] [-manifest-pub hex] <cmd> [args]

Commands:
  version
  login    -device <id> -key <device key>          (saves token)
  pull     -event <uuid>                           (fetch + cache manifest)
  scan     -event <uuid> -code <ticket code>       (validate + check in)
  sync                                             (drain offline queue)
  pending                                          (queue summary)
  stats    -event <uuid>                           (check-in progress)
`)
	os.Exit(2)
}

// ---- device wiring ----

type device struct {
	gate  *gate.Gate
	close func()
}

// openDevice wires the offline stack: SQLite state, the worker goroutine that
// owns it, and the gate front-end over the authenticated client.
func openDevice(ctx context.Context, addr, dbPath, pubHex string, timeout time.Duration, log *zap.Logger) (*device, error) {
	tok, err := loadToken()
	if err != nil {
		return nil, err
	}
	deviceID, err := loadDeviceID()
	if err != nil {
		return nil, err
	}
	pub, err := manifest.ParsePublicKey(pubHex)
	if err != nil {
		return nil, err
	}

	db, err := local.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	cl := client.New(addr, timeout)
	cl.SetToken(tok)

	store := local.NewStore(db, manifest.NewVerifier(pub))
	queue := local.NewQueue(db, deviceID, 5)
	rec := reconcile.New(queue, cl, log)
	worker := gate.NewWorker(store, queue, rec, log, 2*time.Minute)

	runCtx, cancel := context.WithCancel(ctx)
	go worker.Run(runCtx)

	return &device{
		gate:  gate.New(cl, worker, log),
		close: func() { cancel(); _ = db.Close() },
	}, nil
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands over the device stack.
func main() {
	// global flags
	addr := flag.String("addr", "http://localhost:8080", "gate server URL")
	dbPath := flag.String("db", filepath.Join(cfgDir(), "device.db"), "device database file")
	pubHex := flag.String("manifest-pub", os.Getenv("TIXSCAN_MANIFEST_PUB"), "hex Ed25519 manifest public key")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("tixscan %s (%s)\n", version, buildDate)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		deviceID := fs.String("device", "", "device id")
		key := fs.String("key", "", "device key")
		_ = fs.Parse(flag.Args()[1:])
		if *deviceID == "" || *key == "" {
			fmt.Fprintln(os.Stderr, "need -device and -key")
			os.Exit(1)
		}

		cl := client.New(*addr, *timeout)
		tok, err := cl.Login(ctx, *deviceID, *key)
		if err != nil {
			fail(err)
		}
		if err := saveToken(tok.AccessToken, tok.ExpiresAt); err != nil {
			fail(err)
		}
		if err := saveDeviceID(*deviceID); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "pull":
		fs := flag.NewFlagSet("pull", flag.ExitOnError)
		event := fs.String("event", "", "event id (uuid)")
		_ = fs.Parse(flag.Args()[1:])
		if *event == "" {
			fmt.Fprintln(os.Stderr, "need -event")
			os.Exit(1)
		}

		dev, err := openDevice(ctx, *addr, *dbPath, *pubHex, *timeout, logger)
		if err != nil {
			fail(err)
		}
		defer dev.close()

		if err := dev.gate.PullManifest(ctx, mustUUID(*event, "event id")); err != nil {
			fail(err)
		}
		fmt.Println("manifest cached")

	case "scan":
		fs := flag.NewFlagSet("scan", flag.ExitOnError)
		event := fs.String("event", "", "event id (uuid)")
		code := fs.String("code", "", "ticket code")
		_ = fs.Parse(flag.Args()[1:])
		if *event == "" || *code == "" {
			fmt.Fprintln(os.Stderr, "need -event and -code")
			os.Exit(1)
		}

		dev, err := openDevice(ctx, *addr, *dbPath, *pubHex, *timeout, logger)
		if err != nil {
			fail(err)
		}
		defer dev.close()

		res, err := dev.gate.CheckIn(ctx, mustUUID(*event, "event id"), *code, time.Now())
		if err != nil {
			fail(err)
		}
		printJSON(res)
		if res.Outcome == "rejected" {
			os.Exit(1)
		}

	case "sync":
		dev, err := openDevice(ctx, *addr, *dbPath, *pubHex, *timeout, logger)
		if err != nil {
			fail(err)
		}
		defer dev.close()

		rep, err := dev.gate.Sync(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(rep)
		if !rep.Done() {
			os.Exit(1)
		}

	case "pending":
		dev, err := openDevice(ctx, *addr, *dbPath, *pubHex, *timeout, logger)
		if err != nil {
			fail(err)
		}
		defer dev.close()

		c, err := dev.gate.Pending(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(c)

	case "stats":
		fs := flag.NewFlagSet("stats", flag.ExitOnError)
		event := fs.String("event", "", "event id (uuid)")
		_ = fs.Parse(flag.Args()[1:])
		if *event == "" {
			fmt.Fprintln(os.Stderr, "need -event")
			os.Exit(1)
		}

		tok, err := loadToken()
		if err != nil {
			fail(err)
		}
		cl := client.New(*addr, *timeout)
		cl.SetToken(tok)

		st, err := cl.Stats(ctx, mustUUID(*event, "event id"))
		if err != nil {
			fail(err)
		}
		printJSON(st)

	default:
		usage()
	}
}

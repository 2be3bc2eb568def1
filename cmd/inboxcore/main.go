// Command inboxcore runs the InboxModel controller as a standalone
// daemon: start connects to the viewer's relays and ingests until
// interrupted; keygen provisions a fresh identity; dump prints a
// summary of what is currently persisted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/corvidlabs/inboxcore/internal/config"
	"github.com/corvidlabs/inboxcore/internal/cryptocap"
	"github.com/corvidlabs/inboxcore/internal/inbox"
	"github.com/corvidlabs/inboxcore/internal/keystore"
	"github.com/corvidlabs/inboxcore/internal/logging"
	"github.com/corvidlabs/inboxcore/internal/store"
)

func main() {
	configFlag := flag.String("config", "", "path to config file")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || *debugFlag

	log := logging.New(logging.Config{Debug: cfg.Debug})

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: inboxcore [-config path] [-debug] <start|keygen|dump>")
		os.Exit(1)
	}

	var cmdErr error
	switch args[0] {
	case "keygen":
		cmdErr = runKeygen(cfg)
	case "start":
		cmdErr = runStart(cfg, log)
	case "dump":
		cmdErr = runDump(cfg, log)
	default:
		cmdErr = fmt.Errorf("unknown command %q", args[0])
	}
	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func runKeygen(cfg config.Config) error {
	if cfg.PrivateKeyFile == "" {
		return fmt.Errorf("private_key_file not set in config")
	}
	_, nsec, npub, err := keystore.Generate()
	if err != nil {
		return err
	}
	if err := keystore.WriteKeyFile(cfg.PrivateKeyFile, nsec); err != nil {
		return err
	}
	fmt.Printf("wrote %s\nnpub: %s\n", cfg.PrivateKeyFile, npub)
	return nil
}

func openStore(cfg config.Config, crypto cryptocap.Crypto, viewer keystore.Keys) (*store.EventStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.OpenBolt(filepath.Join(cfg.DataDir, "inboxcore.db"))
	if err != nil {
		return nil, err
	}
	return store.New(db, crypto, viewer.PubKey, viewer.PrivateKeyHex)
}

func runStart(cfg config.Config, log zerolog.Logger) error {
	keys := keystore.FileOrEnv{PrivateKeyFile: cfg.PrivateKeyFile, EnvVar: "INBOXCORE_PRIVATE_KEY"}
	loaded, err := keys.Load()
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}
	log.Info().Str("npub", loaded.PublicKeyHex).Msg("identity loaded")

	crypto := cryptocap.Schnorr{}
	es, err := openStore(cfg, crypto, loaded)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer es.Close()

	ctrl := inbox.New(keys, es, crypto, inbox.Config{
		DefaultRelays: cfg.Relays,
		ConnectWait:   cfg.ConnectWait(),
		MaxFanOut:     cfg.MaxFanOut,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	log.Info().Msg("inbox model started, awaiting first connection")
	if !ctrl.AwaitAtLeastOneConnected(ctx) {
		log.Warn().Msg("no relay reached Connected within the connect wait; continuing to retry in the background")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case <-ctrl.Done():
		log.Error().Err(ctrl.Err()).Msg("inbox model halted itself")
	}
	ctrl.Stop()
	return ctrl.Err()
}

func runDump(cfg config.Config, log zerolog.Logger) error {
	keys := keystore.FileOrEnv{PrivateKeyFile: cfg.PrivateKeyFile, EnvVar: "INBOXCORE_PRIVATE_KEY"}
	loaded, err := keys.Load()
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}
	crypto := cryptocap.Schnorr{}
	es, err := openStore(cfg, crypto, loaded)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer es.Close()

	profile, updatedAt, err := es.GetProfile(loaded.PubKey)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	follows, err := es.GetFollows(loaded.PubKey)
	if err != nil {
		return fmt.Errorf("get follows: %w", err)
	}
	generalRelays, err := es.GetGeneralRelays(loaded.PubKey)
	if err != nil {
		return fmt.Errorf("get relays: %w", err)
	}
	dmRelays, err := es.GetDMRelays(loaded.PubKey)
	if err != nil {
		return fmt.Errorf("get dm relays: %w", err)
	}
	posts, err := es.GetTimelineIDs(store.TimelinePost, loaded.PubKey, 20)
	if err != nil {
		return fmt.Errorf("get timeline: %w", err)
	}

	fmt.Printf("viewer: %s (%s)\n", profile.Name, loaded.PublicKeyHex)
	fmt.Printf("profile last updated: %d\n", updatedAt)
	fmt.Printf("follows: %d\n", len(follows))
	fmt.Printf("general relays: %d, dm relays: %d\n", len(generalRelays), len(dmRelays))
	fmt.Printf("recent posts (up to 20): %d\n", len(posts))
	for _, id := range posts {
		fmt.Printf(" %s\n", id)
	}
	return nil
}

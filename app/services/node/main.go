package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/forkchain/app/services/node/handlers"
	"github.com/ardanlabs/forkchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/forkchain/foundation/blockchain/network"
	"github.com/ardanlabs/forkchain/foundation/blockchain/network/gossip"
	"github.com/ardanlabs/forkchain/foundation/blockchain/network/httpnet"
	"github.com/ardanlabs/forkchain/foundation/blockchain/peer"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/forkchain/foundation/blockchain/worker"
	"github.com/ardanlabs/forkchain/foundation/events"
	"github.com/ardanlabs/forkchain/foundation/logger"
	"github.com/ardanlabs/forkchain/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		State struct {
			Beneficiary     string        `conf:"default:bill"`
			GenesisPath     string        `conf:"default:zblock/genesis.json"`
			Store           string        `conf:"default:disk"`
			DBPath          string        `conf:"default:zblock/data"`
			MaxValueSize    int           `conf:"default:1048576"`
			SelectStrategy  string        `conf:"default:feerate"`
			Engine          string        `conf:"default:pow"`
			ForkChoice      string        `conf:"default:work"`
			MempoolCapacity int           `conf:"default:4096"`
			MaxOrphans      int           `conf:"default:256"`
			OrphanTimeout   time.Duration `conf:"default:10m"`
			MaxPending      int           `conf:"default:1024"`
			PendingTimeout  time.Duration `conf:"default:10m"`
			Mining          bool          `conf:"default:true"`
			MineEmpty       bool          `conf:"default:false"`
			UpdateInterval  time.Duration `conf:"default:1m"`
		}
		Network struct {
			Kind         string   `conf:"default:http"`
			KnownPeers   []string `conf:"default:0.0.0.0:9080;0.0.0.0:9180"`
			GossipListen []string `conf:"default:/ip4/0.0.0.0/tcp/4001"`
			GossipPeers  []string
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "forkchain node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for account addresses.
	// The names come from the file names in the zblock/accounts folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	// Logging the accounts for documentation in the logs.
	for account, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "account", account)
	}

	// =========================================================================
	// Blockchain Support

	// Need to load the private key file for the configured beneficiary so the
	// account can get credited with fees and rewards. The same key seals
	// blocks when running the authority engine.
	privateKey, err := crypto.LoadECDSA(nameservice.KeyPath(cfg.NameService.Folder, cfg.State.Beneficiary))
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}

	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	// A peer set is a collection of known nodes in the network so transactions
	// and blocks can be shared.
	peerSet := peer.NewPeerSet()
	for _, host := range cfg.Network.KnownPeers {
		peerSet.Add(peer.New(host))
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. For now, these raw messages are sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := evts.Handler(func(s string) {
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
	})

	kv, err := openStore(cfg.State.Store, cfg.State.DBPath, cfg.State.MaxValueSize)
	if err != nil {
		return err
	}

	authorities, err := gen.AuthorityIDs()
	if err != nil {
		return fmt.Errorf("unable to read authorities: %w", err)
	}

	engine, err := consensus.NewEngine(cfg.State.Engine, consensus.Config{
		Difficulty:  gen.Difficulty,
		Authorities: authorities,
		SealKey:     privateKey,
	})
	if err != nil {
		kv.Close()
		return err
	}

	forkChoice, err := consensus.RetrieveForkChoice(cfg.State.ForkChoice)
	if err != nil {
		kv.Close()
		return err
	}

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	st, err := state.New(state.Config{
		BeneficiaryID:   database.PublicKeyToAccountID(privateKey.PublicKey),
		Host:            cfg.Web.PrivateHost,
		Storage:         kv,
		Genesis:         gen,
		SelectStrategy:  cfg.State.SelectStrategy,
		Engine:          engine,
		ForkChoice:      forkChoice,
		MempoolCapacity: cfg.State.MempoolCapacity,
		MaxOrphans:      cfg.State.MaxOrphans,
		OrphanTimeout:   cfg.State.OrphanTimeout,
		MaxPending:      cfg.State.MaxPending,
		PendingTimeout:  cfg.State.PendingTimeout,
		MineEmpty:       cfg.State.MineEmpty,
		KnownPeers:      peerSet,
		EvHandler:       ev,
	})
	if err != nil {
		kv.Close()
		return err
	}
	defer st.Shutdown()

	// The network value is how this node shares transactions and blocks
	// with its peers.
	net, err := openNetwork(cfg.Network.Kind, cfg.Web.PrivateHost, peerSet, cfg.Network.GossipListen, cfg.Network.GossipPeers, ev)
	if err != nil {
		return err
	}

	// The worker package implements the different workflows such as mining,
	// transaction peer sharing, and peer updates. The worker will register
	// itself with the state.
	if _, err := worker.Run(st, net, worker.Config{
		Mining:         cfg.State.Mining,
		UpdateInterval: cfg.State.UpdateInterval,
		EvHandler:      ev,
	}); err != nil {
		net.Close()
		return fmt.Errorf("unable to start worker: %w", err)
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		NS:       ns,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
	})

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// openStore constructs the configured store backend.
func openStore(kind string, path string, maxValueSize int) (storage.KV, error) {
	switch kind {
	case "memory":
		return memory.New(memory.WithMaxValueSize(maxValueSize)), nil

	case "disk":
		d, err := disk.Open(path, disk.WithMaxValueSize(maxValueSize))
		if err != nil {
			return nil, fmt.Errorf("unable to open store: %w", err)
		}
		return d, nil
	}

	return nil, fmt.Errorf("store %q does not exist", kind)
}

// openNetwork constructs the configured network transport.
func openNetwork(kind string, host string, peerSet *peer.PeerSet, listen []string, peers []string, ev network.EventHandler) (network.Network, error) {
	switch kind {
	case network.KindHTTP:
		return httpnet.New(httpnet.Config{
			Host:       host,
			KnownPeers: peerSet,
			EvHandler:  ev,
		}), nil

	case network.KindGossip:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		g, err := gossip.New(ctx, gossip.Config{
			ListenAddrs: listen,
			Peers:       peers,
			EvHandler:   ev,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to start gossip host: %w", err)
		}

		for _, addr := range g.Addrs() {
			ev("node: gossip: listening on %s", addr)
		}
		return g, nil
	}

	return nil, fmt.Errorf("network %q does not exist", kind)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ammawel/cul_bridge/pkg/api"
	"github.com/ammawel/cul_bridge/pkg/bridge"
	"github.com/ammawel/cul_bridge/pkg/config"
	"github.com/ammawel/cul_bridge/pkg/mqttbridge"
	"github.com/ammawel/cul_bridge/pkg/objectdb"
	"github.com/ammawel/cul_bridge/pkg/objects"
	"github.com/ammawel/cul_bridge/pkg/pathing"
	"github.com/ammawel/cul_bridge/pkg/retention"
	"github.com/ammawel/cul_bridge/pkg/session"
	"github.com/ammawel/cul_bridge/pkg/statebus"
)

var (
	serveSerialDevice string
	serveTCPAddress   string
	serveListenPort   int
	serveMemory       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the CUL and serve the API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveSerialDevice, "port", "p", "", "Serial device (switches to serial mode)")
	serveCmd.Flags().StringVar(&serveTCPAddress, "tcp", "", "host:port of a network CUL (switches to tcp mode)")
	serveCmd.Flags().IntVar(&serveListenPort, "listen-port", 0, "HTTP listen port")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Keep objects in memory only")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.BridgeConfig, error) {
	if err := pathing.EnsureDirs(); err != nil {
		return nil, err
	}
	if configPath != "" {
		return config.LoadBridgeConfigFile(configPath)
	}
	if err := config.LoadBridgeConfig(); err != nil {
		return nil, err
	}
	return config.ActiveBridgeConfig, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel == "" {
		setupLogging(cfg.LogLevel)
	}
	switch {
	case serveTCPAddress != "":
		cfg.ConnectionMode, cfg.TCPAddress = "tcp", serveTCPAddress
	case serveSerialDevice != "":
		cfg.ConnectionMode, cfg.SerialDevice = "serial", serveSerialDevice
	}
	if serveListenPort != 0 {
		cfg.ListenPort = serveListenPort
	}

	// Configuration errors stop here, before any connection attempt.
	dialer, err := cfg.Dialer()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		inner  objects.Store
		db     *objectdb.DB
		rawLog bridge.TelegramLog
	)
	if serveMemory {
		inner = objects.NewMemoryStore()
	} else {
		db, err = objectdb.Open(cfg.ObjectDbPath())
		if err != nil {
			return fmt.Errorf("failed to open object store: %w", err)
		}
		defer db.Close()
		inner, rawLog = db, db
	}

	bus := statebus.New()
	store := statebus.NewStore(inner, bus)
	roles := bridge.LoadRoles(ctx, store, cfg.RolesPath())

	sess := session.New(dialer, cfg.SessionConfig())
	b := bridge.New(sess, store, roles, rawLog)
	if err := b.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize objects: %w", err)
	}

	server := api.New(b, store, bus)
	if db != nil {
		server.WithTelegrams(db)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(ctx) })
	g.Go(func() error { return server.Run(ctx, cfg.ListenAddr()) })
	if cfg.MQTTEnabled {
		mq := mqttbridge.New(mqttbridge.Config{
			Broker:      cfg.MQTTBroker,
			User:        cfg.MQTTUser,
			Pass:        cfg.MQTTPass,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, bus, b)
		g.Go(func() error { return mq.Run(ctx) })
	}
	if db != nil {
		g.Go(func() error {
			return retention.Run(ctx, db, cfg.RawRetention(), retention.DefaultInterval)
		})
	}

	log.Infof("CUL bridge started on %s", dialer)
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("CUL bridge stopped")
	return nil
}

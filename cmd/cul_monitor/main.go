// Command cul_monitor prints the live state changes of a running cul_bridge.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/ammawel/cul_bridge/pkg/config"
	"github.com/ammawel/cul_bridge/pkg/monitor"
	"github.com/ammawel/cul_bridge/pkg/pathing"
	"github.com/ammawel/cul_bridge/pkg/statebus"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	if err := pathing.EnsureDirs(); err != nil {
		log.Warnf("Could not create config directory: %v", err)
	}
	host, tls := "localhost:9040", false
	if err := config.LoadMonitorConfig(); err != nil {
		log.Warnf("Failed to load monitor config, using defaults: %v", err)
		if v := os.Getenv("CUL_BRIDGE_HOST"); v != "" {
			host = v
		}
	} else {
		host, tls = config.ActiveMonitorConfig.BridgeHost, config.ActiveMonitorConfig.TLSEnabled
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := monitor.Listen(ctx, monitor.FeedURL(host, tls), handleChange); err != nil {
		log.Fatal(err)
	}
}

func handleChange(c statebus.Change) {
	b, err := json.Marshal(c)
	if err != nil {
		return
	}
	fmt.Println(string(b))
}

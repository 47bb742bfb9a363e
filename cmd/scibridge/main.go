package main

import (
	"flag"
	"log"
	"os"

	"github.com/connectex/ftclick.go/pkg/bridge/mqtt"
	fx "github.com/connectex/ftclick.go/pkg/framework"
	"github.com/connectex/ftclick.go/pkg/link"
	"github.com/connectex/ftclick.go/pkg/monitor"
)

var (
	mqttURL       string
	statsInterval = mqtt.DefaultStatsInterval
)

func init() {
	if val := os.Getenv("FTCLICK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL, e.g. mqtt://localhost:1883/ftclick/.")
	flag.DurationVar(&statsInterval, "stats-interval", statsInterval, "Interval of publishing driver statistics.")
	link.SetupFlags()
	monitor.SetupFlags()
}

func run() error {
	ep, err := link.Default().NewEndpoint(nil)
	if err != nil {
		return err
	}
	defer ep.Close()
	loop := link.Default().NewLoop().Add(ep)

	if mqttURL != "" {
		q, err := mqtt.NewQueueFromURL(mqttURL)
		if err != nil {
			return err
		}
		if token := q.Connect(); token.Wait() && token.Error() != nil {
			return token.Error()
		}
		defer q.Close()
		b := mqtt.NewBridge(q, ep)
		b.StatsInterval = statsInterval
		loop.AddRunnable(fx.NamedRun("mqtt", b))
	}
	if conf := monitor.Default(); conf.Addr != "" {
		loop.Add(conf.NewHub(ep))
	}

	return fx.NewRunner().HandleSignals().Go(fx.NamedRun("link", loop)).Wait()
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalln(err)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/plantio/irrigation-engine/internal/simulator"
	"github.com/plantio/irrigation-engine/pkg/mqttbus"
)

func main() {
	zones := flag.String("zones", "zone-1,zone-2", "comma-separated zone ids to simulate")
	host := flag.String("mqtt-host", "localhost", "MQTT broker host")
	port := flag.Int("mqtt-port", 1883, "MQTT broker port")
	user := flag.String("mqtt-user", "mqtt_user", "MQTT user")
	pass := flag.String("mqtt-password", "mqtt_pwd", "MQTT password")
	interval := flag.Duration("interval", 10*time.Second, "publish interval")
	lat := flag.Float64("lat", 41.51109, "latitude for the moisture seed")
	lon := flag.Float64("lon", 12.37007, "longitude for the moisture seed")
	baseTemp := flag.Float64("base-temp", 22.0, "base temperature °C")
	rainChance := flag.Float64("rain-chance", 0.05, "probability per tick of the rain state flipping")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &mqttbus.Config{
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *pass,
		ClientID: fmt.Sprintf("zone-simulator-%d", os.Getpid()),
	}
	client, err := mqttbus.NewConn(cfg, ctx)
	if err != nil {
		log.Fatal(err)
	}

	halfLife := 2 * time.Hour
	decayPerMin := math.Log(2) / halfLife.Minutes()

	for _, zoneID := range strings.Split(*zones, ",") {
		zoneID = strings.TrimSpace(zoneID)
		if zoneID == "" {
			continue
		}
		gen := simulator.NewDataGenerator(decayPerMin, *baseTemp)
		gen.SeedFromSoilGrids(ctx, *lat, *lon)
		publisher := mqttbus.NewPublisher(client, "sensor/data/"+zoneID)
		consumer := mqttbus.NewConsumer(client, "event/stateChange/"+zoneID, nil)
		sim := simulator.NewZoneSimulator(zoneID, consumer, publisher, gen)
		go sim.Start(ctx, *interval)
		log.Printf("simulator: zone %s running", zoneID)
	}

	rain := simulator.NewRainReporter(mqttbus.NewPublisher(client, "sensor/rain"), *rainChance)
	go rain.Start(ctx, *interval)

	<-ctx.Done()
	mqttbus.CloseConn(client)
}

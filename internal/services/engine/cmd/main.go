package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/joho/godotenv"

	"github.com/plantio/irrigation-engine/internal/services/dispatcher"
	"github.com/plantio/irrigation-engine/internal/services/engine"
	"github.com/plantio/irrigation-engine/internal/services/eventlog"
	"github.com/plantio/irrigation-engine/internal/services/notifier"
	"github.com/plantio/irrigation-engine/internal/services/schedules"
	"github.com/plantio/irrigation-engine/internal/services/sensorfeed"
	"github.com/plantio/irrigation-engine/internal/services/zonecontrol"
	"github.com/plantio/irrigation-engine/pkg/mqttbus"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(env("TZ_LOCATION", "Local"))
	if err != nil {
		log.Fatalf("bad TZ_LOCATION: %v", err)
	}

	// --- MQTT ---
	mqCfg := &mqttbus.Config{
		Host:     env("MQTT_HOST", "localhost"),
		Port:     envInt("MQTT_PORT", 1883),
		User:     env("MQTT_USER", "mqtt_user"),
		Password: env("MQTT_PASSWORD", "mqtt_pwd"),
		ClientID: fmt.Sprintf("irrigation-engine-%s", env("HOSTNAME", "local")),
	}
	mqClient, err := mqttbus.NewConn(mqCfg, ctx)
	if err != nil {
		log.Fatalf("mqtt connect failed: %v", err)
	}
	publisherFactory := mqttbus.NewPublisherFactory(mqClient)

	// --- Zones ---
	zonesPath := env("ZONES_CONFIG_PATH", "/app/config/zones.json")
	zones, err := engine.LoadZones(zonesPath)
	if err != nil {
		log.Fatalf("zones config: %v", err)
	}
	registry := zonecontrol.NewRegistry(zones)

	// --- Event log, optionally mirrored to InfluxDB ---
	var sink *eventlog.Sink
	var history *eventlog.HistoryQuerier
	var observers []eventlog.Observer
	if url := env("INFLUX_URL", ""); url != "" {
		influxClient := influxdb2.NewClient(url, env("INFLUX_TOKEN", ""))
		defer influxClient.Close()
		org := env("INFLUX_ORG", "org")
		bucket := env("INFLUX_BUCKET", "irrigation-events")
		sink = eventlog.NewSink(influxClient, org, bucket)
		defer sink.Flush()
		history = eventlog.NewHistoryQuerier(influxClient, org, bucket)
		observers = append(observers, sink.Observe)
	}
	events := eventlog.NewLog(eventlog.NewMemoryStore(), observers...)

	// --- Notifications ---
	sinks := notifier.Multi{
		notifier.NewMQTTNotifier(publisherFactory, env("NOTIFY_TOPIC_TMPL", "event/notification/{type}")),
	}
	if sink != nil {
		sinks = append(sinks, notifier.Func(sink.WriteNotification))
	}

	// --- Zone controller ---
	var driver zonecontrol.ValveDriver = zonecontrol.NewMQTTDriver(publisherFactory, env("VALVE_TOPIC_TMPL", "event/stateChange/{zone}"))
	driver = zonecontrol.NewBreakerDriver(driver)
	ioTimeout := time.Duration(envInt("VALVE_IO_TIMEOUT_SEC", 5)) * time.Second
	controller := zonecontrol.NewController(registry, driver, events, sinks, ioTimeout)

	// --- Sensor feed ---
	maxAge := time.Duration(envInt("SENSOR_MAX_AGE_MIN", 15)) * time.Minute
	feed := sensorfeed.New(registry, maxAge)
	feedConsumer := mqttbus.NewMultiConsumer(mqClient, []string{
		env("SENSOR_DATA_TOPIC", "sensor/data/#"),
		env("SENSOR_RAIN_TOPIC", "sensor/rain"),
	}, feed.HandleMessage)
	go feedConsumer.ConsumeMessage(ctx)

	// --- Schedules and dispatcher ---
	store := schedules.NewMemoryStore()
	scheduleSvc := schedules.NewService(store, events, loc)
	disp := dispatcher.New(store, events, controller, feed, sinks, loc)
	controller.OnZoneClosed(disp.ZoneClosed)
	scheduleSvc.OnChanged(disp.ScheduleChanged)
	go disp.Run(ctx)

	// --- Manual control, over HTTP and the command topic ---
	manual := dispatcher.NewManual(registry, controller)
	cmdConsumer := mqttbus.NewConsumer(mqClient, env("MANUAL_COMMAND_TOPIC", "command/manual"), manual.HandleCommand)
	go cmdConsumer.ConsumeMessage(ctx)

	// --- HTTP ---
	eng := &engine.Engine{
		Registry:   registry,
		Controller: controller,
		Schedules:  scheduleSvc,
		Dispatcher: disp,
		Manual:     manual,
		Events:     events,
		History:    history,
		Healthy: func() error {
			if !mqClient.IsConnected() {
				return errors.New("mqtt disconnected")
			}
			if sink != nil && sink.LastErrorAge() < time.Minute {
				return errors.New("influx sink failing")
			}
			return nil
		},
	}
	srv := &http.Server{
		Addr:              ":" + env("PORT", "8080"),
		Handler:           engine.NewHTTPMux(eng),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("engine HTTP listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	stop()

	controller.StopAll()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	mqttbus.CloseConn(mqClient)
	log.Println("engine: shutdown complete")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zwangde/pulsed-power-ml/internal/aggregator"
	"github.com/zwangde/pulsed-power-ml/internal/api"
	"github.com/zwangde/pulsed-power-ml/internal/database"
	"github.com/zwangde/pulsed-power-ml/internal/ml"
	"github.com/zwangde/pulsed-power-ml/internal/mqtt"
	"github.com/zwangde/pulsed-power-ml/internal/nilm"
	"github.com/zwangde/pulsed-power-ml/internal/services"
	"github.com/zwangde/pulsed-power-ml/pkg/config"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.ConfigureLogging(); err != nil {
		log.Fatalf("Invalid logging configuration: %v", err)
	}

	log.Println("Starting NILM Service...")

	// === Load reference model ===
	model, err := ml.LoadModel(cfg.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}

	detectorConfig, err := cfg.DetectorConfig(model)
	if err != nil {
		log.Fatalf("Invalid detector configuration: %v", err)
	}

	location, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid usage configuration: %v", err)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Initialize ClickHouse database ===
	db, err := database.NewClickHouseDB(ctx, database.Options{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePass,
	})
	if err != nil {
		log.Fatalf("Failed to initialize ClickHouse: %v", err)
	}
	defer db.Close()

	// === Initialize NILM Service ===
	// The service owns both channels: data points in, state snapshots out
	log.Println("Initializing NILM service...")
	serviceConfig := services.DefaultNILMServiceConfig()
	serviceConfig.SnapshotInterval = cfg.SnapshotInterval

	usage := aggregator.NewUsageAggregator(aggregator.UsageConfig{
		MaxGap:   cfg.UsageMaxGap,
		Location: location,
	})

	factory := func(sensorID string) (*nilm.Detector, error) {
		return nilm.NewDetector(detectorConfig, log.WithField("sensor", sensorID))
	}

	nilmService := services.NewNILMService(db, factory, model.Names(), usage, serviceConfig)

	// === Initialize MQTT Client ===
	log.Println("Connecting to MQTT broker...")
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	})
	if err != nil {
		log.Fatalf("Failed to initialize MQTT client: %v", err)
	}
	defer mqttClient.Close()

	// === Initialize MQTT Publisher ===
	log.Println("Setting up MQTT publisher...")
	publisher := mqtt.NewPublisher(
		mqttClient.GetNativeClient(),
		mqtt.PublisherConfig{
			StateTopic: cfg.MQTTTopicState,
			Retain:     cfg.MQTTRetainState,
		},
		nilmService.StateChan,
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		publisher.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		nilmService.Start(ctx)
	}()

	// === Initialize MQTT Subscriber ===
	log.Println("Setting up MQTT subscriber...")
	subscriber := mqtt.NewSubscriber(
		mqttClient.GetNativeClient(),
		mqtt.SubscriberConfig{
			DataPointTopic: cfg.MQTTTopicDataPoint,
			ResetTopic:     cfg.MQTTTopicReset,
			DataPointSize:  detectorConfig.DataPointSize(),
		},
		nilmService.DataPointChan,
	)

	if err := subscriber.SubscribeAll(); err != nil {
		log.Fatalf("Failed to subscribe to MQTT topics: %v", err)
	}
	mqttClient.OnReconnect(subscriber.Resubscribe)

	// === Initialize HTTP API ===
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewRouter(nilmService, db, model.Appliances, 10*time.Second),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP API listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// === Log startup info ===
	log.Println("=== NILM Service is running ===")
	log.Printf("Model: %q, %d appliances, %d training samples",
		model.Version, len(model.Appliances), len(model.Features))
	log.Printf("Detector: W=%d, step=%d, threshold=%.1f dB, %s spectrum of %d bins, validation=%t",
		detectorConfig.WindowSize, detectorConfig.StepSize, detectorConfig.SwitchThreshold,
		detectorConfig.SpectrumType, detectorConfig.SpectrumLength, detectorConfig.PhysicalValidation)
	log.Printf("MQTT Topics:")
	log.Printf("  - Data points: %s", cfg.MQTTTopicDataPoint)
	log.Printf("  - Reset:       %s", cfg.MQTTTopicReset)
	log.Printf("  - State:       %s", cfg.MQTTTopicState)
	log.Println("Press Ctrl+C to exit...")

	// === Wait for interrupt signal ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// === Graceful shutdown ===
	log.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server forced to shutdown: %v", err)
	}

	cancel()
	wg.Wait()

	log.Println("Shutdown complete. Goodbye!")
}

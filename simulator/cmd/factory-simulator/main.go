package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqpcommon "github.com/SherlockH0olms/Intellica/common/amqp"
	"github.com/SherlockH0olms/Intellica/common/logger"
	mqttcommon "github.com/SherlockH0olms/Intellica/common/mqtt"
	"github.com/SherlockH0olms/Intellica/simulator/internal/config"
	"github.com/SherlockH0olms/Intellica/simulator/internal/machine"
	"github.com/SherlockH0olms/Intellica/simulator/internal/metrics"
	"github.com/SherlockH0olms/Intellica/simulator/internal/service"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		log.Printf("Failed to load config: %v", err)
		return 2
	}

	logger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "factory-simulator")
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("Starting factory-simulator",
		zap.String("version", version),
		zap.String("transport", cfg.Simulator.Transport),
		zap.String("mqtt_broker", cfg.MQTT.BrokerURL()),
	)

	machines, err := machine.Build(cfg.Simulator.Machines, machine.Options{Seed: cfg.Simulator.Seed})
	if err != nil {
		logger.Error("Invalid machine configuration", zap.Error(err))
		return 2
	}
	if cfg.Simulator.Machines > len(machines) {
		logger.Warn("Requested more machines than available types, truncating",
			zap.Int("requested", cfg.Simulator.Machines),
			zap.Int("available", len(machines)),
		)
	}
	for _, m := range machines {
		logger.Info("Machine registered", zap.String("machine_id", m.ID()), zap.String("machine_type", string(m.Type())))
	}

	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg)
	var metricsServer *metrics.Server
	if cfg.Metrics.Addr != "" {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, reg, logger)
		metricsServer.Start()
	}

	onConnect := func(code byte, reason string) {
		if code == 0 {
			recorder.SetConnected(true)
			logger.Info("Connected to broker", zap.Uint8("return_code", code))
			return
		}
		logger.Error("Broker refused connection", zap.Uint8("return_code", code), zap.String("reason", reason))
	}
	onDisconnect := func(err error) {
		recorder.SetConnected(false)
		if err != nil {
			logger.Warn("Disconnected from broker", zap.Error(err))
			return
		}
		logger.Info("Disconnected from broker")
	}

	transport, err := newTransport(cfg, onConnect, onDisconnect, logger)
	if err != nil {
		logger.Error("Invalid transport configuration", zap.Error(err))
		return 2
	}

	sim := service.NewFactorySimulator(transport, machines, service.Options{
		OnPublishError: cfg.Simulator.OnPublishError,
		Metrics:        recorder,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := 0
	if err := sim.Connect(ctx); err != nil {
		logger.Error("Failed to connect to broker", zap.Error(err))
		code = 1
	} else if err := sim.Run(ctx, cfg.RunDuration, cfg.TickInterval); err != nil {
		logger.Error("Simulation failed", zap.Error(err))
		code = 1
	}
	sim.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown", zap.Error(err))
		}
		cancel()
	}

	logger.Info("Service stopped", zap.Int("exit_code", code))
	return code
}

func newTransport(cfg *config.Config, onConnect func(byte, string), onDisconnect func(error), logger *zap.Logger) (service.Transport, error) {
	switch cfg.Simulator.Transport {
	case config.TransportMQTT:
		return mqttcommon.NewClient(&cfg.MQTT, mqttcommon.Options{
			ConnectWait:    cfg.Simulator.ConnectWait,
			PublishTimeout: cfg.Simulator.PublishTimeout,
			OnConnect:      onConnect,
			OnDisconnect:   onDisconnect,
		}, logger), nil
	case config.TransportAMQP:
		return amqpcommon.NewPublisher(&cfg.AMQP, amqpcommon.Options{
			ConnectWait:    cfg.Simulator.ConnectWait,
			PublishTimeout: cfg.Simulator.PublishTimeout,
			KeepAlive:      cfg.MQTT.KeepAlive,
			OnConnect:      onConnect,
			OnDisconnect:   onDisconnect,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Simulator.Transport)
	}
}

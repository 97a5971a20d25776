package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fako1024/btj7c"
	"github.com/fako1024/btj7c/internal/config"
	"github.com/fako1024/btj7c/internal/recorder"
	"github.com/fako1024/btj7c/internal/store"
)

func main() {

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %s\n", err)
		os.Exit(1)
	}

	logger := btj7c.NewDefaultLogger(cfg.Debug)

	tester, err := btj7c.New(testerOptions(cfg, logger)...)
	if err != nil {
		logger.Fatalf("failed to initialize tester device: %s", err)
	}

	// Attach the persistence sinks before starting, so they see the stream
	// from the very first frame
	if cfg.CSVPath != "" {
		rec, err := recorder.New(cfg.CSVPath)
		if err != nil {
			logger.Fatalf("failed to open CSV file: %s", err)
		}
		defer rec.Close()
		logger.Infof("saving data to %s", cfg.CSVPath)

		sub, _ := tester.Subscribe()
		go func() {
			for ev := range sub.Events() {
				if ev.Measurement == nil {
					continue
				}
				if err := rec.Record(*ev.Measurement); err != nil {
					logger.Errorf("failed to write CSV record: %s", err)
				}
			}
		}()
	}

	if cfg.Database != "" {
		repo, err := store.NewRepository(cfg.Database)
		if err != nil {
			logger.Fatalf("failed to open measurement archive: %s", err)
		}
		defer repo.Close()
		logger.Infof("archiving data to %s", cfg.Database)

		sub, _ := tester.Subscribe()
		go func() {
			for ev := range sub.Events() {
				if ev.Measurement == nil {
					continue
				}
				if err := repo.Store(context.Background(), ev.Measurement); err != nil {
					logger.Errorf("failed to archive measurement: %s", err)
				}
			}
		}()
	}

	sub, _ := tester.Subscribe()
	tester.Start()

	sigChan := make(chan os.Signal, 32)
	signal.Notify(sigChan, syscall.SIGTERM)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		logger.Infof("got signal, terminating connection to device")
		if err := tester.Close(); err != nil {
			logger.Errorf("failed to close device: %s", err)
		}
	}()

	if !cfg.Quiet && !cfg.Verbose {
		fmt.Printf("%-8s | %-7s | %-7s | %-7s | %-4s | %s\n", "Time", "Volts", "Amps", "Watts", "Temp", "Status")
		fmt.Println("-------------------------------------------------------")
	}

	// Consume the console subscription until Close() ends the stream
	for ev := range sub.Events() {
		switch {
		case ev.Status != nil:
			printStatus(cfg, logger, *ev.Status)
		case ev.Measurement != nil:
			printMeasurement(cfg, logger, *ev.Measurement)
		}
	}
}

func testerOptions(cfg *config.Config, logger btj7c.Logger) []func(*btj7c.Tester) {
	layout := btj7c.LayoutV1
	if cfg.Layout == 2 {
		layout = btj7c.LayoutV2
	}

	options := []func(*btj7c.Tester){
		btj7c.WithLogger(logger),
		btj7c.WithDeviceNames(cfg.DeviceNames...),
		btj7c.WithLayout(layout),
		btj7c.WithHistorySize(cfg.HistorySize),
		btj7c.WithScanTimeout(time.Duration(cfg.ScanTimeout) * time.Second),
		btj7c.WithBackoff(
			time.Duration(cfg.RetryNotFound)*time.Second,
			time.Duration(cfg.RetryReconnect)*time.Second,
		),
	}
	if cfg.DeviceID != "" {
		options = append(options, btj7c.WithDeviceID(cfg.DeviceID))
	}
	if cfg.Checksum {
		options = append(options, btj7c.WithChecksum(btj7c.AdditiveChecksum))
	}

	return options
}

func printStatus(cfg *config.Config, logger btj7c.Logger, status btj7c.ConnectionStatus) {
	if cfg.Quiet {
		return
	}

	switch {
	case status.State == btj7c.StateDisconnected && status.Reason == btj7c.ReasonNotFound:
		logger.Infof("device not found, retrying...")
	case status.State == btj7c.StateDisconnected:
		logger.Infof("link lost, reconnecting...")
	default:
		logger.Infof("state change: %s", status)
	}
}

func printMeasurement(cfg *config.Config, logger btj7c.Logger, m btj7c.Measurement) {
	if cfg.Quiet {
		return
	}

	if cfg.Verbose {
		logger.Infof("V:%-5.2f A:%-5.2f W:%-5.2f T:%d [%s]", m.Voltage, m.Current, m.Power, m.Temperature, m.Duration)
		return
	}

	status := "OK"
	if m.Voltage < m.LVP || m.Current > m.OCP {
		status = "PROTECTION?"
	}

	fmt.Printf("%s | %5.2f V | %5.2f A | %5.2f W | %dC | %s\n",
		m.TimeStamp.Format("15:04:05"), m.Voltage, m.Current, m.Power, m.Temperature, status)
}

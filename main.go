// Package main provides the suntimes model serving entry point and CLI interface.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devskill-org/suntimes-serving/irradiance"
	"github.com/devskill-org/suntimes-serving/serving"
	"github.com/devskill-org/suntimes-serving/suntimes"
)

func main() {
	// Command line flags
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		serve      = flag.Bool("serve", false, "Run the model serving endpoint")
		export     = flag.String("export", "", "Export the model artifact to the given path and exit")
		version    = flag.String("version", "v1", "Model version for -export")
		predict    = flag.Bool("predict", false, "Run a one-off local prediction")
		lat        = flag.Float64("lat", 0, "Latitude in degrees for -predict")
		lng        = flag.Float64("lng", 0, "Longitude in degrees for -predict")
		dayno      = flag.Int("dayno", 0, "Zero-based day of year for -predict")
		utcoffset  = flag.Int("utcoffset", 0, "UTC offset in hours for -predict")
		batch      = flag.String("batch", "", "Predict a JSON-lines file of instances and exit")
		verify     = flag.Bool("verify", false, "Verify predicted daylight against the irradiance sensor")
		info       = flag.Bool("info", false, "Show irradiance sensor information")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	if *export != "" {
		if err := runExport(*export, *version); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}

	if *predict {
		if err := runPredict(*lat, *lng, *dayno, *utcoffset); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}

	if *batch != "" {
		if err := runBatch(*batch); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}

	config, err := serving.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	if *info {
		if err := irradiance.ShowSensorInfo(config.SensorModbusAddress); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}

	if *verify {
		if err := runVerify(config); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}

	if !*serve {
		showHelp()
		return
	}

	runServe(config)
}

func runServe(config *serving.Config) {
	fmt.Printf("Starting model serving endpoint with the following configuration:\n%s\n", config)

	logger := log.New(os.Stdout, "[SERVING] ", log.LstdFlags)

	endpoint := serving.NewEndpoint(config, logger)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- endpoint.Start(ctx)
	}()

	logger.Printf("Endpoint starting. Press Ctrl+C to stop...")

	select {
	case sig := <-sigChan:
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
		endpoint.Stop()
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			logger.Printf("Endpoint error: %v", err)
			os.Exit(1)
		}
	}

	logger.Printf("Endpoint stopped successfully")
}

func runExport(path, version string) error {
	artifact := suntimes.NewArtifact("suntimes", version, suntimes.DefaultConstants())
	if err := artifact.Export(path); err != nil {
		return fmt.Errorf("failed to export artifact: %w", err)
	}
	fmt.Printf("Exported model %s version %s to %s (checksum %s)\n",
		artifact.Name, artifact.Version, path, artifact.Checksum)
	return nil
}

func runPredict(lat, lng float64, dayno, utcoffset int) error {
	result, err := suntimes.Compute(suntimes.Request{
		Lat:       lat,
		Lng:       lng,
		DayNo:     dayno,
		UTCOffset: utcoffset,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Day %d at (%.3f, %.3f) UTC%+d:\n", dayno, lat, lng, utcoffset)
	fmt.Printf("  Sunrise:    %s (%d h %.3f min)\n",
		suntimes.Clock(result.SunriseHour, result.SunriseMinute), int(result.SunriseHour), result.SunriseMinute)
	fmt.Printf("  Sunset:     %s (%d h %.3f min)\n",
		suntimes.Clock(result.SunsetHour, result.SunsetMinute), int(result.SunsetHour), result.SunsetMinute)
	fmt.Printf("  Day length: %.2f h\n", result.DayLength())
	return nil
}

// runBatch reads one JSON instance per line and writes one JSON prediction
// per line, carrying per-instance errors instead of aborting the batch.
func runBatch(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open batch file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req suntimes.Request
		if err := json.Unmarshal(line, &req); err != nil {
			return fmt.Errorf("line %d: invalid instance: %w", lineNo, err)
		}
		if err := req.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		result, err := suntimes.Compute(req)
		entry := struct {
			*suntimes.Result
			Error string `json:"error,omitempty"`
		}{}
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Result = &result
		}
		if err := encoder.Encode(entry); err != nil {
			return fmt.Errorf("failed to write prediction: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}
	return nil
}

func runVerify(config *serving.Config) error {
	artifact, err := suntimes.LoadArtifact(config.ArtifactPath)
	if err != nil {
		return fmt.Errorf("failed to load artifact: %w", err)
	}
	model, err := suntimes.NewModel(artifact)
	if err != nil {
		return err
	}

	client, err := irradiance.NewTCPClient(config.SensorModbusAddress, irradiance.DefaultSlaveAddress)
	if err != nil {
		return fmt.Errorf("error connecting to sensor modbus server at %s: %w", config.SensorModbusAddress, err)
	}
	defer client.Close()

	reading, err := client.Read()
	if err != nil {
		return fmt.Errorf("error reading sensor data: %w", err)
	}

	verification, err := irradiance.VerifyDaylight(model, reading,
		config.Latitude, config.Longitude, config.UTCOffset, time.Now(), config.DaylightThreshold)
	if err != nil {
		return err
	}

	fmt.Println(verification)
	if !verification.Agree {
		os.Exit(2)
	}
	return nil
}

func showHelp() {
	fmt.Println("Suntimes Serving - Sunrise/sunset model artifact and prediction endpoint")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Computes sunrise and sunset times from a closed-form solar position model,")
	fmt.Println("  exports the model as a versioned artifact, and serves predictions over an")
	fmt.Println("  HTTP endpoint with model version management, prediction auditing, and an")
	fmt.Println("  optional irradiance sensor cross-check.")
	fmt.Println()
	fmt.Println("  Key Features:")
	fmt.Println("  - Closed-form sunrise/sunset calculator with polar day/night handling")
	fmt.Println("  - Versioned, checksummed model artifacts with hot reload")
	fmt.Println("  - Batch and single-instance prediction API")
	fmt.Println("  - Model version registry with optional PostgreSQL persistence")
	fmt.Println("  - Live status feed over WebSocket")
	fmt.Println("  - Daylight verification against a Modbus irradiance sensor")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  suntimes-serving [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run the serving endpoint")
	fmt.Println("  suntimes-serving -serve -config=config.json")
	fmt.Println()
	fmt.Println("  # Export the model artifact")
	fmt.Println("  suntimes-serving -export=suntimes-model.json -version=v1")
	fmt.Println()
	fmt.Println("  # One-off local prediction")
	fmt.Println("  suntimes-serving -predict -lat=39.833 -lng=-98.583 -dayno=15 -utcoffset=-6")
	fmt.Println()
	fmt.Println("  # Batch predictions from a JSON-lines file")
	fmt.Println("  suntimes-serving -batch=instances.jsonl")
	fmt.Println()
	fmt.Println("  # Verify predicted daylight against the irradiance sensor")
	fmt.Println("  suntimes-serving -verify")
	fmt.Println()
	fmt.Println("  # Show sensor information")
	fmt.Println("  suntimes-serving -info")
}

// Command replay runs recorded wrist motion through the swing detector and
// prints what it finds. Samples come from a WristMotion CSV export or from
// the raw batches a session left in the service database.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"swing-service/internal/analytics"
	"swing-service/internal/config"
	"swing-service/internal/ingest"
	"swing-service/internal/models"
	"swing-service/internal/session"
	"swing-service/internal/store"
)

func main() {
	csvPath := flag.String("csv", "", "WristMotion CSV export to replay")
	dbPath := flag.String("db", "", "service database to read raw batches from")
	sessionID := flag.String("session", "", "session whose raw batches are replayed (with -db)")
	configPath := flag.String("config", "", "YAML config for detector parameters")
	threshold := flag.Float64("threshold", 0, "override detector threshold (rad/s)")
	batch := flag.Int("batch", 100, "samples per batch")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	detector := cfg.Detector.Analytics()
	detector.Detect = true
	if *threshold > 0 {
		detector.Threshold = *threshold
	}

	samples, err := loadSamples(*csvPath, *dbPath, *sessionID)
	if err != nil {
		log.Fatal(err)
	}
	if err := replay(os.Stdout, samples, detector, *batch); err != nil {
		log.Fatal(err)
	}
}

func loadSamples(csvPath, dbPath, sessionID string) ([]models.Sample, error) {
	switch {
	case csvPath != "":
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readWristMotion(f)
	case dbPath != "" && sessionID != "":
		db, err := store.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		batches, err := db.RawBatches(context.Background(), sessionID)
		if err != nil {
			return nil, err
		}
		var out []models.Sample
		for _, b := range batches {
			out = append(out, b.Samples...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("either -csv or -db with -session is required")
	}
}

func replay(w io.Writer, samples []models.Sample, cfg analytics.Config, batch int) error {
	if batch < 1 {
		batch = 1
	}
	registry := session.NewRegistry(cfg)
	const id = "replay"

	start := time.Now()
	var events []models.SwingEvent
	for i := 0; i < len(samples); i += batch {
		res, err := registry.Ingest(id, ingest.DefaultDevice, samples[i:min(i+batch, len(samples))])
		if err != nil {
			return err
		}
		events = append(events, res.Events...)
	}
	if len(samples) == 0 {
		registry.Start(id, ingest.DefaultDevice)
	}
	sum, err := registry.End(id)
	if err != nil {
		return err
	}
	events = append(events, sum.FinalEvents...)
	took := time.Since(start)

	fmt.Fprintf(w, "Processed %d samples in %s\n", len(samples), took.Round(time.Millisecond))
	fmt.Fprintf(w, "Threshold %.2f rad/s, window %d samples, min distance %d samples\n\n",
		cfg.Threshold, cfg.BufferCapacity, cfg.MinDistance)

	fmt.Fprintf(w, "Swings detected: %d\n", len(events))
	if len(events) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "#\tTimestamp\tRotation\tAccel\tSpeed (mph)\t")
		for _, e := range events {
			fmt.Fprintf(tw, "%d\t%.3f\t%.2f\t%.2f\t%.1f\t\n",
				e.Number, e.Timestamp, e.RotationMagnitude, e.AccelerationMagnitude, analytics.EstimateSpeedMPH(e))
		}
		tw.Flush()
	}

	stats := sum.Statistics
	fmt.Fprintf(w, "\nSamples rejected: %d\n", stats.SamplesRejected)
	if len(samples) > 1 {
		duration := samples[len(samples)-1].Timestamp - samples[0].Timestamp
		fmt.Fprintf(w, "Duration: %.1f s\n", duration)
		if duration > 0 {
			fmt.Fprintf(w, "Sample rate: %.1f Hz\n", float64(stats.SamplesProcessed)/duration)
			fmt.Fprintf(w, "Swings per minute: %.1f\n", float64(len(events))/(duration/60))
		}
	}
	return nil
}

// Package main provides a replay tool that feeds a recorded frame log
// through the telemetry channel and reports the resulting channel state
// and congestion classification. Useful for inspecting captures without
// a live producer.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficlens/trafficlens/internal/congestion"
	"github.com/trafficlens/trafficlens/internal/network"
	"github.com/trafficlens/trafficlens/internal/stream"
)

func main() {
	var (
		framesPath = flag.String("frames", "", "path to a JSON-lines frame log (required)")
		docPath    = flag.String("doc", "", "path to a network document; enables edge classification")
		interval   = flag.Duration("interval", 100*time.Millisecond, "delay between frames")
		policy     = flag.String("policy", "count", "classification policy: count or ratio")
		verbose    = flag.Bool("v", false, "log every injected frame")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	if *framesPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	var model *network.Model
	if *docPath != "" {
		source, err := os.ReadFile(*docPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *docPath).Msg("reading network document")
		}
		model, err = network.NewInterpretedParser(log).Parse(ctx, string(source))
		if err != nil {
			log.Fatal().Err(err).Msg("parsing network document")
		}
		log.Info().
			Int("lanes", len(model.Lanes)).
			Int("junctions", len(model.Junctions)).
			Int("signals", len(model.Signals)).
			Msg("network document loaded")
	}

	// No transport: frames are injected straight into the channel.
	channel := stream.NewChannel(stream.Config{
		NotifyInterval: -1,
		Logger:         log,
	})

	frames, err := os.Open(*framesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *framesPath).Msg("opening frame log")
	}
	defer frames.Close()

	injected := 0
	scanner := bufio.NewScanner(frames)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := make([]byte, len(line))
		copy(raw, line)

		channel.Inject(raw)
		injected++
		log.Debug().Int("frame", injected).Msg("injected")

		if *interval > 0 {
			time.Sleep(*interval)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatal().Err(err).Msg("reading frame log")
	}

	vehicles := channel.Vehicles()
	log.Info().
		Int("frames", injected).
		Int("vehicles", len(vehicles)).
		Int("signals", len(channel.Signals())).
		Int("live_lanes", len(channel.LiveLanes())).
		Msg("replay complete")

	if model == nil {
		return
	}

	samples := make([]congestion.VehicleSample, 0, len(vehicles))
	for _, v := range vehicles {
		samples = append(samples, congestion.VehicleSample{
			EdgeID: v.EdgeID,
			LaneID: v.LaneID,
			Speed:  v.Speed,
		})
	}

	classifier := congestion.New(congestion.Config{
		MinInterval: -1,
		Logger:      log,
	})

	edges := network.AggregateEdges(model.Lanes)
	var levels map[string]congestion.Level
	var ok bool
	if *policy == "ratio" {
		levels, ok = classifier.ClassifyByRatio(edges, samples)
	} else {
		levels, ok = classifier.ClassifyByCount(edges, samples)
	}
	if !ok {
		log.Warn().Msg("classification throttled")
		return
	}

	counts := make(map[congestion.Level]int)
	for _, lvl := range levels {
		counts[lvl]++
	}
	event := log.Info().Str("policy", *policy).Int("edges", len(edges))
	for lvl, n := range counts {
		event = event.Int(string(lvl), n)
	}
	event.Msg("classification")
}

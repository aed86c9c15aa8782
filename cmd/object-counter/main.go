package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	objectcounter "github.com/menta2k/object-counter"
	"github.com/menta2k/object-counter/internal/backend"
	"github.com/menta2k/object-counter/internal/config"
	"github.com/menta2k/object-counter/internal/logging"
	"github.com/menta2k/object-counter/internal/utils"
	"github.com/menta2k/object-counter/pkg/detection"
)

func main() {
	var in, objects, outDir, cfgPath, backendName, model, serverURL, ext, logLevel, writeConfig string
	var quality int
	var lossless, writeJSON, testVision bool

	flag.StringVar(&in, "in", "", "input image path, URL or directory (jpg/png/webp/gif)")
	flag.StringVar(&objects, "objects", "", "comma-separated objects to count, e.g. \"car, person\"")
	flag.StringVar(&outDir, "out", "", "output directory (default from config)")
	flag.StringVar(&cfgPath, "config", "", "config file (json or yaml)")
	flag.StringVar(&backendName, "backend", "", "backend to use: gemini, ollama or llamacpp")
	flag.StringVar(&model, "model", "", "model name (default depends on backend)")
	flag.StringVar(&serverURL, "url", "", "server URL for ollama/llamacpp")
	flag.StringVar(&ext, "ext", "", "output format: png|jpg|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")
	flag.BoolVar(&writeJSON, "json", false, "write detections and counts as JSON next to each output image")
	flag.StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	flag.BoolVar(&testVision, "test-vision", false, "ask the model to describe each input instead of counting")
	flag.StringVar(&writeConfig, "write-config", "", "write the effective configuration to this file (json or yaml) and exit")
	flag.Parse()

	if writeConfig == "" && (in == "" || (!testVision && strings.TrimSpace(objects) == "")) {
		fmt.Fprintf(os.Stderr, "usage: %s -in image.jpg|URL|dir -objects \"car, person\" [-backend gemini|ollama|llamacpp] [-out dir] [-ext png|jpg|webp] [-json] [-test-vision] [-write-config file]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Model.Backend = backendName
			if model == "" {
				cfg.Model.Name = ""
			}
		case "model":
			cfg.Model.Name = model
		case "url":
			cfg.Model.URL = serverURL
		case "out":
			cfg.Output.Dir = outDir
		case "ext":
			cfg.Output.Format = ext
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		case "log-level":
			cfg.Log.Level = logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if writeConfig != "" {
		if err := cfg.SaveToFile(writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", writeConfig)
		return
	}

	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counter, err := backend.NewCounter(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create counter")
	}

	inputs, err := collectInputs(in)
	if err != nil {
		log.Fatal().Err(err).Str("in", in).Msg("list inputs")
	}
	if err := utils.EnsureDir(cfg.Output.Dir); err != nil {
		log.Fatal().Err(err).Msg("create output directory")
	}

	query := detection.ParseObjectList(objects)
	failed := 0
	for _, source := range inputs {
		if ctx.Err() != nil {
			break
		}
		run := func() error { return processOne(ctx, counter, cfg, log, source, query, writeJSON) }
		if testVision {
			run = func() error { return describeOne(ctx, counter, source) }
		}
		if err := run(); err != nil {
			failed++
			log.Error().Err(err).Str("source", source).Msg("analyze")
		}
	}

	log.Info().Int("processed", len(inputs)-failed).Int("failed", failed).Msg("done")
	if failed > 0 || ctx.Err() != nil {
		os.Exit(1)
	}
}

// collectInputs expands a directory into its image files
func collectInputs(in string) ([]string, error) {
	if !utils.DirExists(in) {
		return []string{in}, nil
	}
	files, err := utils.ListImageFiles(in)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}
	return files, nil
}

type report struct {
	Source string `json:"source"`
	Output string `json:"output"`
	*objectcounter.Result
}

func processOne(ctx context.Context, counter *objectcounter.Counter, cfg *config.Config, log zerolog.Logger, source string, objects []string, writeJSON bool) error {
	result, err := counter.AnalyzeSource(ctx, source, objects)
	if err != nil {
		return err
	}

	format := strings.ToLower(cfg.Output.Format)
	outPath := utils.GenerateOutputFilename(utils.SourceName(source), cfg.Output.Dir, cfg.Output.Suffix, format)
	if err := counter.Processor().SaveImage(result.Image, outPath, format, cfg.Output.Quality, cfg.Output.Lossless); err != nil {
		return fmt.Errorf("save %s: %w", outPath, err)
	}

	event := log.Info().Str("source", source).Str("output", outPath)
	if st, err := os.Stat(outPath); err == nil {
		event = event.Str("size", utils.FormatFileSize(st.Size()))
	}
	event.Interface("counts", result.CountMap()).Msg("wrote")

	for _, oc := range result.Counts {
		fmt.Printf("%s\t%s\t%d\n", source, oc.Name, oc.Count)
	}

	if writeJSON {
		js, err := json.MarshalIndent(report{Source: source, Output: outPath, Result: result}, "", "  ")
		if err != nil {
			return err
		}
		jsonPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".json"
		if err := os.WriteFile(jsonPath, js, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", jsonPath, err)
		}
	}
	return nil
}

// describeOne prints the model's description of the image at source
func describeOne(ctx context.Context, counter *objectcounter.Counter, source string) error {
	data, err := counter.Processor().LoadBytesSmart(source)
	if err != nil {
		return err
	}
	reply, err := counter.TestVision(ctx, data)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", source, strings.TrimSpace(reply))
	return nil
}

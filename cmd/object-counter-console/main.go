package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/menta2k/object-counter/internal/backend"
	"github.com/menta2k/object-counter/internal/config"
	"github.com/menta2k/object-counter/internal/logging"
	"github.com/menta2k/object-counter/internal/utils"
	"github.com/menta2k/object-counter/pkg/detection"
	"github.com/menta2k/object-counter/pkg/types"
)

const (
	quitCommand = ":q"
	testCommand = ":test"
)

var errQuit = errors.New("quit")

func main() {
	err := mainImpl()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainImpl() error {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log)

	ctx := context.Background()
	counter, err := backend.NewCounter(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(cfg.Output.Dir); err != nil {
		return err
	}

	rl, err := readline.New("image> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	fmt.Printf("object-counter (%s, %s). Enter %s <image> to check the model sees it, %s to quit.\n", cfg.Model.Backend, counter.Model(), testCommand, quitCommand)
	for {
		source, err := prompt(rl, "image> ")
		if err != nil {
			break
		}
		if source == "" {
			continue
		}
		if target, ok := parseTestCommand(source); ok {
			data, err := counter.Processor().LoadBytesSmart(target)
			if err == nil {
				var reply string
				if reply, err = counter.TestVision(ctx, data); err == nil {
					fmt.Printf("  %s\n", strings.TrimSpace(reply))
				}
			}
			if err != nil {
				fmt.Println(describe(err))
			}
			continue
		}
		objects, err := prompt(rl, "objects> ")
		if err != nil {
			break
		}

		result, err := counter.AnalyzeSource(ctx, source, detection.ParseObjectList(objects))
		if err != nil {
			fmt.Println(describe(err))
			continue
		}

		if len(result.Counts) == 0 {
			fmt.Println("no objects found")
		}
		for _, oc := range result.Counts {
			fmt.Printf("  %s: %d\n", oc.Name, oc.Count)
		}

		outPath := outputPath(cfg, source)
		if err := counter.Processor().SaveImage(result.Image, outPath, cfg.Output.Format, cfg.Output.Quality, cfg.Output.Lossless); err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Printf("  wrote %s\n", outPath)
	}
	return nil
}

// prompt reads one trimmed line, returning errQuit on the quit command or end of input
func prompt(rl *readline.Instance, p string) (string, error) {
	rl.SetPrompt(p)
	line, err := rl.Readline()
	if err != nil { // io.EOF or interrupt
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == quitCommand {
		return "", errQuit
	}
	return line, nil
}

// parseTestCommand reports whether line is ":test <image>" and returns the image
func parseTestCommand(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != testCommand {
		return "", false
	}
	return fields[1], true
}

// outputPath names the annotated image written for source
func outputPath(cfg *config.Config, source string) string {
	return utils.GenerateOutputFilename(utils.SourceName(source), cfg.Output.Dir, cfg.Output.Suffix, strings.ToLower(cfg.Output.Format))
}

// describe turns a pipeline error into a message for the user
func describe(err error) string {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return fmt.Sprintf("invalid input: %v", err)
	case errors.Is(err, types.ErrParse), errors.Is(err, types.ErrMalformedDetection):
		return fmt.Sprintf("could not read the model's answer: %v", err)
	case types.IsRetryable(err):
		return fmt.Sprintf("model unavailable, try again: %v", err)
	case errors.Is(err, types.ErrNetwork):
		return fmt.Sprintf("model request failed: %v", err)
	case errors.Is(err, io.EOF):
		return "unexpected end of input"
	default:
		return err.Error()
	}
}

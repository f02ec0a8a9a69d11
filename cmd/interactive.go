package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/verity/internal/models"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

type predictor interface {
	Predict(ctx context.Context, in models.RawInput) (models.Outcome, error)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// parseLine turns a terminal line into pipeline input. A line holding a URL
// is fetched; any text around the URL becomes the title.
func parseLine(line string) models.RawInput {
	line = strings.TrimSpace(line)
	if url := urlRegex.FindString(line); url != "" {
		rest := strings.TrimSpace(strings.Replace(line, url, "", 1))
		return models.RawInput{URL: url, Title: rest}
	}
	return models.RawInput{Body: line}
}

func labelColor(label string) func(format string, a ...interface{}) string {
	switch label {
	case models.LabelReal:
		return color.GreenString
	case models.LabelFake:
		return color.RedString
	default:
		return color.YellowString
	}
}

func runInteractive(ctx context.Context, p predictor) error {
	color.Cyan("\nPaste an article URL or text to classify (type 'exit' to quit)")
	return interactiveLoop(ctx, p, os.Stdin, os.Stdout, true)
}

// interactiveLoop reads lines from in until EOF or "exit". It also returns
// when ctx is cancelled.
// Scanning runs in its own goroutine so a cancel is seen while waiting on a
// terminal read.
func interactiveLoop(ctx context.Context, p predictor, in io.Reader, out io.Writer, spinner bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	userPrompt := color.New(color.FgGreen).FprintfFunc()

	lines := make(chan string)
	var scanErr error
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = scanner.Err()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		userPrompt(out, "\nArticle: ")

		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return scanErr
			}
			line = l
		}

		if strings.ToLower(strings.TrimSpace(line)) == "exit" {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		input := parseLine(line)

		var bar *progressbar.ProgressBar
		if spinner {
			description := "Classifying..."
			if input.URL != "" {
				description = "Fetching article..."
			}
			bar = getSpinner(description)
		}
		outcome, err := p.Predict(ctx, input)
		if bar != nil {
			bar.Finish()
			fmt.Fprint(out, "\r")
		}

		if err != nil {
			fmt.Fprintln(out, color.RedString("Error: %v", err))
			continue
		}

		if outcome.Input.Title != "" {
			fmt.Fprintf(out, "\nTitle: %s\n", outcome.Input.Title)
		}
		fmt.Fprintf(out, "Label: %s  probability %.3f (%s)\n",
			labelColor(outcome.Label)("%s", outcome.Label), outcome.Probability, outcome.Mode)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"detectfront/internal/config"
	"detectfront/internal/logger"
	"detectfront/internal/submit"
)

var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg := config.Load()

	flags := flag.NewFlagSet("detect", flag.ContinueOnError)
	imagePath := flags.String("image", "", "Image to submit (default: first PNG/JPEG in -dir)")
	dir := flags.String("dir", ".", "Directory searched when -image is not set")
	backend := flags.String("backend", cfg.BackendURL, "Detection backend base URL")
	model := flags.String("model", "", "Model identifier forwarded to the backend")
	confidence := flags.String("confidence", "", "Confidence threshold forwarded to the backend")
	out := flags.String("out", "detected_objects.jpg", "Where to save the annotated result (empty to skip)")
	verbose := flags.Bool("v", false, "Log pipeline activity")
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	path := *imagePath
	if path == "" {
		found, err := findImageFile(*dir)
		if err != nil {
			return err
		}
		path = found
	}
	fmt.Fprintf(stdout, "Processing image: %s\n", path)

	img, err := loadImage(path)
	if err != nil {
		return fmt.Errorf("could not load the image file - %w", err)
	}

	client, err := submit.NewClient(*backend, cfg.BackendTimeout)
	if err != nil {
		return err
	}

	pipelineLog := logger.Discard()
	if *verbose {
		pipelineLog = logger.NewConsole()
	}
	pipeline := submit.NewPipeline(client, nil, pipelineLog)

	state, err := pipeline.Submit(ctx, img, submit.Params{Model: *model, Confidence: *confidence})
	if err != nil {
		return err
	}
	if state.Phase == submit.PhaseError {
		return errors.New(state.Error)
	}

	fmt.Fprintf(stdout, "Number of objects detected: %d\n", state.Result.Count)

	if *out == "" || state.Result.Image == "" {
		return nil
	}
	if err := saveRendered(ctx, client, state.Result.Image, *out); err != nil {
		return fmt.Errorf("failed to save visualization to %s: %w", *out, err)
	}
	fmt.Fprintf(stdout, "Visualization saved as '%s'\n", *out)
	return nil
}

// findImageFile returns the first PNG or JPEG file in dir, by name.
func findImageFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no PNG or JPG/JPEG image found in %s", dir)
	}

	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

func loadImage(path string) (*submit.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("image file is empty")
	}

	mimeType, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mimeType = http.DetectContentType(data)
	}

	return &submit.Image{
		Data:     data,
		MIMEType: mimeType,
		Filename: filepath.Base(path),
		Source:   submit.SourceFile,
	}, nil
}

func saveRendered(ctx context.Context, client *submit.Client, ref, out string) error {
	resp, err := client.FetchRendered(ctx, ref)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend answered %s", resp.Status)
	}

	file, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

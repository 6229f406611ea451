package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/product-import-scraper/internal/config"
	"github.com/maltedev/product-import-scraper/internal/fetcher"
	"github.com/maltedev/product-import-scraper/internal/parser"
	"github.com/maltedev/product-import-scraper/internal/scraper"
	"github.com/maltedev/product-import-scraper/pkg/logger"
)

func main() {
	var (
		productURL = flag.String("url", "", "Product page URL")
		htmlFile   = flag.String("html", "", "Extract from a saved HTML file instead of fetching (-url is the page address)")
		timeout    = flag.Duration("timeout", 0, "Fetch timeout (default SCRAPER_FETCH_TIMEOUT)")
		pretty     = flag.Bool("pretty", true, "Indent JSON output")
	)
	flag.Parse()

	if *productURL == "" {
		fmt.Fprintln(os.Stderr, "Please provide a product URL with -url")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithWriter(os.Stderr, cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *scraper.Result
	if *htmlFile != "" {
		result, err = extractFile(*productURL, *htmlFile)
	} else {
		fetchTimeout := cfg.Scraper.FetchTimeout
		if *timeout > 0 {
			fetchTimeout = *timeout
		}
		f := fetcher.New(fetcher.Config{
			Timeout:        fetchTimeout,
			UserAgent:      cfg.Scraper.UserAgent,
			AcceptLanguage: cfg.Scraper.AcceptLanguage,
			MaxBodyBytes:   cfg.Scraper.MaxBodyBytes,
		}, log)
		result, err = scraper.NewService(f, log).Scrape(ctx, *productURL)
	}
	if err != nil {
		log.Error("scrape failed", "url", *productURL, "error", err)
		os.Exit(exitCode(err))
	}

	if missing := result.Product.MissingFields(); len(missing) > 0 {
		log.Warn("fields need manual entry", "missing", missing)
	}

	if err := writeJSON(os.Stdout, result, *pretty); err != nil {
		log.Error("failed to write output", "error", err)
		os.Exit(1)
	}
}

func extractFile(rawURL, path string) (*scraper.Result, error) {
	pageURL, err := parser.ParseProductURL(rawURL)
	if err != nil {
		return nil, err
	}

	html, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	site := parser.ClassifyURL(pageURL)
	return &scraper.Result{
		URL:     pageURL.String(),
		Site:    site,
		Product: parser.NewRegistry().Extract(site, string(html), pageURL),
	}, nil
}

// exitCode distinguishes bad input (2) from fetch failures (3) and the rest (1).
func exitCode(err error) int {
	var fetchErr *fetcher.FetchError
	switch {
	case errors.Is(err, parser.ErrInvalidURL):
		return 2
	case errors.As(err, &fetchErr):
		return 3
	default:
		return 1
	}
}

func writeJSON(w io.Writer, v interface{}, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

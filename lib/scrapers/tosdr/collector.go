package tosdr

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// Collector drives a full scrape: one login, every listing page in
// order, then a CSV dump of the collected links.
type Collector struct {
	client *Client
	opts   CollectorOptions
}

type CollectorOptions struct {
	Email      string
	Password   string
	TotalPages int
	// pause between listing page requests, throttles the scrape out of
	// politeness towards the remote server
	Delay  time.Duration
	Output string
}

func NewCollector(client *Client, opts CollectorOptions) Collector {
	return Collector{client: client, opts: opts}
}

// Run executes the scrape. Any failure aborts before the output file is
// touched, a partial CSV is never written.
func (c Collector) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "collector:Run")
	defer span.End()

	err := c.client.Login(ctx, c.opts.Email, c.opts.Password)
	if err != nil {
		slog.ErrorContext(ctx, "login failed, aborting", "err", err)
		span.SetStatus(codes.Error, "login failed")
		return fmt.Errorf("login: %w", err)
	}

	var links []string
	for page := 1; page <= c.opts.TotalPages; page++ {
		pageLinks, err := c.client.FetchServiceLinks(ctx, page)
		if err != nil {
			span.SetStatus(codes.Error, "page fetch failed")
			return fmt.Errorf("fetch page %d: %w", page, err)
		}
		links = append(links, pageLinks...)

		if page == c.opts.TotalPages {
			break
		}
		select {
		case <-time.After(c.opts.Delay):
		case <-ctx.Done():
			span.SetStatus(codes.Error, "cancelled")
			return ctx.Err()
		}
	}

	err = c.writeLinks(links)
	if err != nil {
		span.SetStatus(codes.Error, "failed to write output")
		return err
	}

	slog.InfoContext(ctx, "links saved", "file", c.opts.Output, "count", len(links))
	return nil
}

func (c Collector) writeLinks(links []string) error {
	file, err := os.Create(c.opts.Output)
	if err != nil {
		return fmt.Errorf("create %s: %w", c.opts.Output, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	err = w.Write([]string{"ToS Links"})
	if err != nil {
		return err
	}
	for _, link := range links {
		err = w.Write([]string{link})
		if err != nil {
			return err
		}
	}
	w.Flush()
	err = w.Error()
	if err != nil {
		return err
	}
	return file.Close()
}

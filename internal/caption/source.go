package caption

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

// Source produces caption samples until ctx is done or the input ends.
// Samples are raw; repeated values are expected and filtered by Detector.
type Source interface {
	Samples(ctx context.Context) (<-chan string, error)
}

// PageSource polls an HTML page, either a local file or an http(s) URL,
// and extracts the caption on every tick.
type PageSource struct {
	location  string
	interval  time.Duration
	extractor *Extractor
	client    *http.Client
}

func NewPageSource(location string, interval time.Duration, extractor *Extractor) *PageSource {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if extractor == nil {
		extractor = NewExtractor()
	}
	return &PageSource{
		location:  location,
		interval:  interval,
		extractor: extractor,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PageSource) Samples(ctx context.Context) (<-chan string, error) {
	if p.location == "" {
		return nil, fmt.Errorf("page location is empty")
	}
	if !p.isRemote() {
		if _, err := os.Stat(p.location); err != nil {
			return nil, fmt.Errorf("page not readable: %w", err)
		}
	}

	out := make(chan string)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			text, err := p.sample(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("Caption sample from %s failed: %v", p.location, err)
			} else {
				select {
				case out <- text:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *PageSource) isRemote() bool {
	return strings.HasPrefix(p.location, "http://") || strings.HasPrefix(p.location, "https://")
}

func (p *PageSource) sample(ctx context.Context) (string, error) {
	if !p.isRemote() {
		f, err := os.Open(p.location)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return p.extractor.Extract(f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.location, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}
	return p.extractor.Extract(resp.Body)
}

// LineSource treats every line of r as one sample; an empty line means the
// caption is gone.
type LineSource struct {
	r io.Reader
}

func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r}
}

func (l *LineSource) Samples(ctx context.Context) (<-chan string, error) {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(l.r)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn("Reading caption lines failed: %v", err)
		}
	}()
	return out, nil
}

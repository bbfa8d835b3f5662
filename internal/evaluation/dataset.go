// Package evaluation runs the offline accuracy check of the news classifier:
// it loads a labelled JSON-lines dataset, samples it and posts the sample to
// the classifier's /evaluate endpoint.
package evaluation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// linesPerShard is the smallest shard worth a goroutine.
const linesPerShard = 4096

// Item is one labelled example sent for evaluation.
type Item struct {
	Text      string `json:"text"`
	TrueLabel string `json:"true_label"`
}

// article is one line of the News Category dataset.
type article struct {
	Headline string `json:"headline"`
	Category string `json:"category"`
}

// LoadDataset reads the dataset at path.
func LoadDataset(ctx context.Context, path string, logger *zap.Logger) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ParseDataset(ctx, f, logger)
}

// ParseDataset parses JSON lines into items, preserving order. The headline
// becomes the text and the upper-cased category the label. Malformed lines
// are logged and skipped; blank lines are ignored.
func ParseDataset(ctx context.Context, r io.Reader, logger *zap.Logger) ([]Item, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	shards := max(1, min(runtime.GOMAXPROCS(0), len(lines)/linesPerShard))
	size := (len(lines) + shards - 1) / shards
	results := make([][]Item, shards)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < shards; i++ {
		lo := i * size
		hi := min(lo+size, len(lines))
		if lo >= hi {
			break
		}
		g.Go(func() error {
			items, err := parseShard(gctx, lines[lo:hi], lo, logger)
			results[i] = items
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []Item
	for _, shard := range results {
		items = append(items, shard...)
	}
	return items, nil
}

// parseShard parses lines whose first line is line offset+1 of the file.
func parseShard(ctx context.Context, lines []string, offset int, logger *zap.Logger) ([]Item, error) {
	items := make([]Item, 0, len(lines))
	for i, line := range lines {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var a article
		if err := json.Unmarshal([]byte(line), &a); err != nil {
			logger.Warn("skipping malformed dataset line", zap.Int("line", offset+i+1), zap.Error(err))
			continue
		}
		items = append(items, Item{Text: a.Headline, TrueLabel: strings.ToUpper(a.Category)})
	}
	return items, nil
}

// Sample returns n items drawn without replacement, or all items when there
// are no more than n. A nil rng uses a randomly seeded source.
func Sample(items []Item, n int, rng *rand.Rand) []Item {
	if n <= 0 || len(items) <= n {
		return items
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	out := make([]Item, n)
	for i, j := range rng.Perm(len(items))[:n] {
		out[i] = items[j]
	}
	return out
}

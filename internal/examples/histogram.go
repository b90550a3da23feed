// Package examples bundles a small demonstration pipeline exercising the
// capture/replay driver end to end: binning a synthetic dataset into a
// histogram, a canonical parallelizable-analysis workload.
package examples

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jpequegn/parallelcache/internal/call"
	"github.com/jpequegn/parallelcache/internal/driver"
)

// Dataset names the synthetic datasets the histogram example bins over.
var Dataset = []string{"dataset-a", "dataset-b"}

// Bins is the number of histogram bins computed per dataset.
const Bins = 4

// NewHistogramFunction builds the parallelizable "bin_count" function:
// given a dataset name and a bin index, it counts how many synthetic
// points fall in that bin. The batch key is the dataset name, so every
// bin of one dataset co-locates into a single batch — standing in for
// "load the dataset once, then scan every bin," the shared-setup
// amortization a custom batcher exists to capture.
func NewHistogramFunction() *call.Function {
	return &call.Function{
		Name: "histogram.bin_count",
		Placeholder: func(args call.Args) (any, error) {
			return 0, nil
		},
		BatchKey: func(args call.Args) (any, error) {
			dataset, ok := args.Positional[0].(string)
			if !ok {
				return nil, fmt.Errorf("bin_count: first argument must be a dataset name")
			}
			return dataset, nil
		},
		Compute: func(ctx context.Context, args call.Args) (any, error) {
			dataset := args.Positional[0].(string)
			bin := args.Positional[1].(int)
			return countBin(dataset, bin), nil
		},
	}
}

// countBin deterministically synthesizes a point count for (dataset,
// bin), standing in for an expensive scan over real data: a stable hash
// of the pair, reduced into a small positive range.
func countBin(dataset string, bin int) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%d", dataset, bin)
	return int(h.Sum32()%97) + 1
}

// Counts maps "dataset/bin" to its computed count.
type Counts map[string]int

// Run drives the capture/replay loop over every (dataset, bin) pair,
// returning the final counts once the driver reaches DONE.
func Run(ctx context.Context, d *driver.Driver, fn *call.Function) (Counts, error) {
	counts := make(Counts)

	for {
		more, err := d.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("examples: histogram run: %w", err)
		}
		if !more {
			break
		}

		for _, dataset := range Dataset {
			for bin := 0; bin < Bins; bin++ {
				args := call.Args{Positional: []any{dataset, bin}}
				count, err := driver.Call[int](ctx, fn, args)
				if err != nil {
					return nil, fmt.Errorf("examples: histogram bin_count(%s, %d): %w", dataset, bin, err)
				}
				counts[key(dataset, bin)] = count
			}
		}
	}

	return counts, nil
}

func key(dataset string, bin int) string {
	return fmt.Sprintf("%s/%d", dataset, bin)
}

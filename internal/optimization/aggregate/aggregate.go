// Package aggregate turns a sorted batch of samples into a single answer and
// an energy histogram.
package aggregate

import (
	"sort"

	"github.com/copyleftdev/anneal/internal/optimization"
)

// DefaultBins is the histogram size used when none is configured.
const DefaultBins = 10

// Select walks samples in ascending energy order and returns the first
// feasible candidate. When none of the evaluated samples is feasible it
// returns the lowest-energy one with Feasible false.
//
// Only the first limit distinct bitstrings are evaluated; limit <= 0 means
// all of them. The second result is the number of evaluations performed.
// samples must be non-empty.
func Select[T any](samples []optimization.Sample, evaluate func([]uint8) optimization.Candidate[T], limit int) (optimization.Candidate[T], int) {
	ordered := samples
	if !sort.SliceIsSorted(samples, func(i, j int) bool { return samples[i].Energy < samples[j].Energy }) {
		ordered = make([]optimization.Sample, len(samples))
		copy(ordered, samples)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Energy < ordered[j].Energy })
	}

	var (
		fallback  optimization.Candidate[T]
		evaluated int
		seen      = make(map[string]struct{}, len(ordered))
	)
	for _, s := range ordered {
		if limit > 0 && evaluated >= limit {
			break
		}
		key := string(s.Bits)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		c := evaluate(s.Bits)
		c.Energy = s.Energy
		c.Bits = s.Bits
		evaluated++

		if c.Feasible {
			return c, evaluated
		}
		if evaluated == 1 {
			fallback = c
		}
	}
	return fallback, evaluated
}

// Histogram counts reads per exact energy value, lowest energy first. At
// most bins buckets are reported; if there are more distinct energies the
// last bucket becomes a tail that also counts every higher energy, so the
// counts always sum to the number of reads.
func Histogram(samples []optimization.Sample, bins int) []optimization.EnergyBin {
	if bins <= 0 {
		bins = DefaultBins
	}

	counts := make(map[float64]int)
	for _, s := range samples {
		counts[s.Energy] += s.Occurrences
	}
	energies := make([]float64, 0, len(counts))
	for e := range counts {
		energies = append(energies, e)
	}
	sort.Float64s(energies)

	out := make([]optimization.EnergyBin, 0, min(bins, len(energies)))
	for k, e := range energies {
		if k == bins-1 && len(energies) > bins {
			tail := optimization.EnergyBin{Energy: e, Tail: true}
			for _, rest := range energies[k:] {
				tail.Count += counts[rest]
			}
			out = append(out, tail)
			break
		}
		out = append(out, optimization.EnergyBin{Energy: e, Count: counts[e]})
	}
	return out
}

// Reads returns the total number of reads represented by samples.
func Reads(samples []optimization.Sample) int {
	n := 0
	for _, s := range samples {
		n += s.Occurrences
	}
	return n
}

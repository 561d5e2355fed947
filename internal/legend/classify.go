// Package legend buckets attribute value populations into classes and builds
// legend models (description, rule, symbol per class).
package legend

import (
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// Classifier names accepted by Breaks.
const (
	EqualInterval      = "EqualInterval"
	Quantiles          = "Quantiles"
	NaturalBreaks      = "NaturalBreaks"
	FisherJenksSampled = "FisherJenksSampled"
	StdMean            = "StdMean"
	JenksCaspallForced = "JenksCaspallForced"
	HeadTailBreaks     = "HeadTailBreaks"
	BoxPlot            = "BoxPlot"
)

// defaultStdMultiples matches the usual standard-deviation fences.
var defaultStdMultiples = []float64{-2, -1, 1, 2}

// Breaks partitions values into classes and returns the k+1 ascending class
// edges, first edge = min, last = max. Intervals are half-open [b_i, b_{i+1}),
// the last closed. param1/param2 depend on the classifier: class count for
// the count-based ones, sample fraction as param2 for FisherJenksSampled,
// hinge for BoxPlot (0 means 1.5). StdMean uses the default sigma fences;
// StdMeanBreaks accepts custom multiples.
func Breaks(name string, values []float64, param1, param2 float64) ([]float64, error) {
	vals := finiteSorted(values)
	if len(vals) == 0 {
		return nil, geoerr.ErrInsufficientData
	}
	lo, hi := vals[0], vals[len(vals)-1]
	if distinctCount(vals) < 2 {
		// single class covering the full range
		return []float64{lo, hi}, nil
	}

	k := int(param1)
	switch name {
	case EqualInterval:
		return equalInterval(lo, hi, k)
	case Quantiles:
		return quantileBreaks(vals, k)
	case NaturalBreaks:
		return jenksBreaks(vals, k)
	case FisherJenksSampled:
		return jenksBreaks(sample(vals, param2), k)
	case StdMean:
		return stdMeanBreaks(vals, defaultStdMultiples)
	case JenksCaspallForced:
		return jenksCaspallForced(vals, k)
	case HeadTailBreaks:
		return headTailBreaks(vals)
	case BoxPlot:
		hinge := param1
		if hinge <= 0 {
			hinge = 1.5
		}
		return boxPlotBreaks(vals, hinge)
	}
	return nil, geoerr.Config("unknown classifier %q", name)
}

// StdMeanBreaks partitions values at mean + m*std for each multiple m,
// keeping only the fences that fall inside the data range. Empty multiples
// means the default -2,-1,1,2 fences.
func StdMeanBreaks(values []float64, multiples []float64) ([]float64, error) {
	vals := finiteSorted(values)
	if len(vals) == 0 {
		return nil, geoerr.ErrInsufficientData
	}
	if distinctCount(vals) < 2 {
		return []float64{vals[0], vals[len(vals)-1]}, nil
	}
	if len(multiples) == 0 {
		multiples = defaultStdMultiples
	}
	return stdMeanBreaks(vals, multiples)
}

// ClassOf returns the class index for v given ascending edges, honoring the
// half-open convention with the last interval closed. Values outside the
// range clamp to the first/last class.
func ClassOf(edges []float64, v float64) int {
	k := len(edges) - 1
	if k < 1 {
		return 0
	}
	if v >= edges[k] {
		return k - 1
	}
	for i := 0; i < k; i++ {
		if v < edges[i+1] {
			return i
		}
	}
	return k - 1
}

func finiteSorted(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func distinctCount(sorted []float64) int {
	n := 0
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			n++
		}
	}
	return n
}

func validCount(k, distinct int) (int, error) {
	if k < 1 {
		return 0, geoerr.Config("class count must be >= 1, got %d", k)
	}
	if k > distinct {
		k = distinct
	}
	return k, nil
}

func equalInterval(lo, hi float64, k int) ([]float64, error) {
	if k < 1 {
		return nil, geoerr.Config("class count must be >= 1, got %d", k)
	}
	edges := make([]float64, k+1)
	step := (hi - lo) / float64(k)
	for i := 0; i <= k; i++ {
		edges[i] = lo + step*float64(i)
	}
	edges[k] = hi
	return edges, nil
}

// quantile interpolates linearly on the sorted sample.
func quantile(sorted []float64, q float64) float64 {
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	i := int(pos)
	frac := pos - float64(i)
	if i+1 >= len(sorted) {
		return sorted[i]
	}
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}

func quantileBreaks(sorted []float64, k int) ([]float64, error) {
	k, err := validCount(k, distinctCount(sorted))
	if err != nil {
		return nil, err
	}
	edges := make([]float64, 0, k+1)
	edges = append(edges, sorted[0])
	for i := 1; i < k; i++ {
		edges = append(edges, quantile(sorted, float64(i)/float64(k)))
	}
	edges = append(edges, sorted[len(sorted)-1])
	return dedupe(edges), nil
}

// jenksBreaks is the Fisher-Jenks optimal 1D partition by dynamic
// programming over cumulative sums.
func jenksBreaks(sorted []float64, k int) ([]float64, error) {
	k, err := validCount(k, distinctCount(sorted))
	if err != nil {
		return nil, err
	}
	n := len(sorted)
	if k == 1 {
		return []float64{sorted[0], sorted[n-1]}, nil
	}

	// prefix sums for O(1) within-class variance
	sum := make([]float64, n+1)
	sumSq := make([]float64, n+1)
	for i, v := range sorted {
		sum[i+1] = sum[i] + v
		sumSq[i+1] = sumSq[i] + v*v
	}
	ssd := func(i, j int) float64 { // values sorted[i:j]
		cnt := float64(j - i)
		s := sum[j] - sum[i]
		return (sumSq[j] - sumSq[i]) - s*s/cnt
	}

	const inf = math.MaxFloat64
	cost := make([][]float64, k+1)
	split := make([][]int, k+1)
	for c := range cost {
		cost[c] = make([]float64, n+1)
		split[c] = make([]int, n+1)
		for j := range cost[c] {
			cost[c][j] = inf
		}
	}
	cost[0][0] = 0
	for c := 1; c <= k; c++ {
		for j := c; j <= n; j++ {
			for i := c - 1; i < j; i++ {
				if cost[c-1][i] == inf {
					continue
				}
				w := cost[c-1][i] + ssd(i, j)
				if w < cost[c][j] {
					cost[c][j] = w
					split[c][j] = i
				}
			}
		}
	}

	// recover class boundaries
	edges := make([]float64, k+1)
	edges[k] = sorted[n-1]
	j := n
	for c := k; c >= 1; c-- {
		i := split[c][j]
		if c > 1 {
			edges[c-1] = sorted[i]
		}
		j = i
	}
	edges[0] = sorted[0]
	return dedupe(edges), nil
}

// sample draws a deterministic random subsample of fraction frac, always
// keeping the min and max so the outer edges stay exact.
func sample(sorted []float64, frac float64) []float64 {
	if frac <= 0 || frac >= 1 {
		return sorted
	}
	n := int(float64(len(sorted)) * frac)
	if n < 2 {
		n = 2
	}
	if n >= len(sorted) {
		return sorted
	}
	rng := rand.New(rand.NewSource(int64(len(sorted))))
	out := make([]float64, 0, n+2)
	out = append(out, sorted[0], sorted[len(sorted)-1])
	for _, i := range rng.Perm(len(sorted))[:n] {
		out = append(out, sorted[i])
	}
	sort.Float64s(out)
	return out
}

func stdMeanBreaks(sorted []float64, multiples []float64) ([]float64, error) {
	n := float64(len(sorted))
	var mean float64
	for _, v := range sorted {
		mean += v
	}
	mean /= n
	var varsum float64
	for _, v := range sorted {
		d := v - mean
		varsum += d * d
	}
	std := math.Sqrt(varsum / n)

	edges := []float64{sorted[0]}
	for _, m := range multiples {
		b := mean + m*std
		if b > sorted[0] && b < sorted[len(sorted)-1] {
			edges = append(edges, b)
		}
	}
	edges = append(edges, sorted[len(sorted)-1])
	sort.Float64s(edges)
	return dedupe(edges), nil
}

// jenksCaspallForced refines a quantile seed by 1D k-means style moves: each
// value goes to the class with the nearest mean until assignments stabilize.
func jenksCaspallForced(sorted []float64, k int) ([]float64, error) {
	k, err := validCount(k, distinctCount(sorted))
	if err != nil {
		return nil, err
	}
	edges, err := quantileBreaks(sorted, k)
	if err != nil {
		return nil, err
	}
	k = len(edges) - 1
	if k < 2 {
		return edges, nil
	}

	assign := make([]int, len(sorted))
	for i, v := range sorted {
		assign[i] = ClassOf(edges, v)
	}
	for iter := 0; iter < 100; iter++ {
		// class means
		sums := make([]float64, k)
		counts := make([]int, k)
		for i, v := range sorted {
			sums[assign[i]] += v
			counts[assign[i]]++
		}
		means := make([]float64, k)
		for c := 0; c < k; c++ {
			if counts[c] > 0 {
				means[c] = sums[c] / float64(counts[c])
			}
		}
		changed := false
		for i, v := range sorted {
			best, bestD := assign[i], math.Abs(v-means[assign[i]])
			for c := 0; c < k; c++ {
				if counts[c] == 0 {
					continue
				}
				if d := math.Abs(v - means[c]); d < bestD {
					best, bestD = c, d
				}
			}
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	// class edges from the final contiguous assignment
	out := []float64{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		if assign[i] != assign[i-1] {
			out = append(out, sorted[i])
		}
	}
	out = append(out, sorted[len(sorted)-1])
	return dedupe(out), nil
}

// headTailBreaks splits recursively at the mean while the head (values above
// the mean) stays a minority.
func headTailBreaks(sorted []float64) ([]float64, error) {
	edges := []float64{sorted[0]}
	part := sorted
	for len(part) > 1 {
		var mean float64
		for _, v := range part {
			mean += v
		}
		mean /= float64(len(part))
		head := part[sort.SearchFloat64s(part, math.Nextafter(mean, math.Inf(1))):]
		if len(head) == 0 || len(head) == len(part) {
			break
		}
		edges = append(edges, mean)
		if float64(len(head))/float64(len(part)) >= 0.4 {
			break
		}
		part = head
	}
	edges = append(edges, sorted[len(sorted)-1])
	sort.Float64s(edges)
	return dedupe(edges), nil
}

func boxPlotBreaks(sorted []float64, hinge float64) ([]float64, error) {
	q1 := quantile(sorted, 0.25)
	q2 := quantile(sorted, 0.5)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	lo, hi := sorted[0], sorted[len(sorted)-1]
	edges := []float64{lo}
	for _, b := range []float64{q1 - hinge*iqr, q1, q2, q3, q3 + hinge*iqr} {
		if b > lo && b < hi {
			edges = append(edges, b)
		}
	}
	edges = append(edges, hi)
	sort.Float64s(edges)
	return dedupe(edges), nil
}

func dedupe(edges []float64) []float64 {
	out := edges[:1]
	for _, e := range edges[1:] {
		if e > out[len(out)-1] {
			out = append(out, e)
		}
	}
	return out
}

// FormatBoundary renders a class edge with the requested decimal digits;
// negative digits switch to compact %g formatting.
func FormatBoundary(v float64, digits int) string {
	if digits < 0 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', digits, 64)
}

package clones

import (
	"cmp"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/panbanda/tangle/pkg/models"
)

const tokenSep = "\x1f"

// pair is a scored fragment pair by index into the sorted fragment slice.
type pair struct {
	a, b       int
	similarity float64
	cloneType  models.CloneType
}

// Detector compares fragments and clusters the resulting clone pairs.
type Detector struct {
	cfg   Config
	types []models.CloneType
}

// NewDetector validates cfg and creates a detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, types: cfg.enabled()}, nil
}

// Detect finds clone pairs and groups among fragments.
func (d *Detector) Detect(fragments []models.Fragment) *models.CloneReport {
	frags := slices.Clone(fragments)
	slices.SortStableFunc(frags, func(x, y models.Fragment) int {
		return cmp.Or(
			cmp.Compare(x.File, y.File),
			cmp.Compare(x.StartLine, y.StartLine),
			cmp.Compare(x.EndLine, y.EndLine),
		)
	})

	pairs, comparisons := d.findPairs(frags)

	report := &models.CloneReport{
		Pairs:   make([]models.ClonePair, 0, len(pairs)),
		Summary: models.NewCloneSummary(),
	}
	for _, p := range pairs {
		cp := models.ClonePair{
			A:          models.InstanceOf(&frags[p.a]),
			B:          models.InstanceOf(&frags[p.b]),
			Similarity: p.similarity,
			Type:       p.cloneType,
		}
		report.Pairs = append(report.Pairs, cp)
		report.Summary.AddPair(cp)
	}
	report.Groups = d.group(frags, pairs)
	report.Summary.TotalFragments = len(frags)
	report.Summary.TotalGroups = len(report.Groups)
	report.Summary.Comparisons = comparisons
	return report
}

// findPairs compares fragments that share a bucket under any of the three
// normalized forms. Each unordered pair is scored at most once.
func (d *Detector) findPairs(frags []models.Fragment) ([]pair, int) {
	seen := make(map[[2]int]bool)
	var pairs []pair
	comparisons := 0

	forms := []func(*models.Fragment) []string{
		func(f *models.Fragment) []string { return f.Text },
		func(f *models.Fragment) []string { return f.Raw },
		func(f *models.Fragment) []string { return f.Renamed },
	}
	for _, form := range forms {
		for _, bucket := range d.buckets(frags, form) {
			for i := 0; i < len(bucket); i++ {
				for j := i + 1; j < len(bucket); j++ {
					a, b := bucket[i], bucket[j]
					key := [2]int{a, b}
					if seen[key] {
						continue
					}
					seen[key] = true
					if frags[a].Overlaps(&frags[b]) {
						continue
					}
					comparisons++
					ct, sim, ok := d.classify(&frags[a], &frags[b])
					if ok && sim >= d.cfg.SimilarityThreshold {
						pairs = append(pairs, pair{a: a, b: b, similarity: sim, cloneType: ct})
					}
				}
			}
		}
	}

	slices.SortFunc(pairs, func(x, y pair) int {
		return cmp.Or(
			cmp.Compare(y.similarity, x.similarity),
			cmp.Compare(frags[x.a].File, frags[y.a].File),
			cmp.Compare(frags[x.a].StartLine, frags[y.a].StartLine),
			cmp.Compare(frags[x.b].File, frags[y.b].File),
			cmp.Compare(frags[x.b].StartLine, frags[y.b].StartLine),
		)
	})
	return pairs, comparisons
}

// buckets groups fragment indices by a truncated digest of one form. Members
// stay in ascending index order and oversized buckets are cut to MaxBucket.
func (d *Detector) buckets(frags []models.Fragment, form func(*models.Fragment) []string) [][]int {
	shift := uint(64 - 4*d.cfg.BucketPrefix)
	byKey := make(map[uint64][]int)
	var keys []uint64
	for i := range frags {
		tokens := form(&frags[i])
		if len(tokens) == 0 {
			continue
		}
		k := xxhash.Sum64String(strings.Join(tokens, tokenSep)) >> shift
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], i)
	}

	out := make([][]int, 0, len(keys))
	for _, k := range keys {
		members := byKey[k]
		if len(members) < 2 {
			continue
		}
		if len(members) > d.cfg.MaxBucket {
			members = members[:d.cfg.MaxBucket]
		}
		out = append(out, members)
	}
	return out
}

// classify evaluates the enabled levels strictest first and returns the
// first one whose threshold is met. Type-4 never matches.
func (d *Detector) classify(a, b *models.Fragment) (models.CloneType, float64, bool) {
	for _, t := range d.types {
		var x, y []string
		switch t {
		case models.CloneType1:
			x, y = a.Text, b.Text
		case models.CloneType2:
			x, y = a.Renamed, b.Renamed
		case models.CloneType3:
			x, y = a.Raw, b.Raw
		default:
			continue
		}
		threshold := d.cfg.threshold(t)
		if sim, ok := similarity(x, y, threshold); ok {
			return t, sim, true
		}
	}
	return "", 0, false
}

// similarity is the longest-matching-blocks ratio of two token sequences.
// The cheap upper bounds are checked first; ok is false below threshold.
func similarity(a, b []string, threshold float64) (float64, bool) {
	if len(a) == 0 && len(b) == 0 {
		return 1, threshold <= 1
	}
	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	if m.RealQuickRatio() < threshold || m.QuickRatio() < threshold {
		return 0, false
	}
	r := m.Ratio()
	return r, r >= threshold
}

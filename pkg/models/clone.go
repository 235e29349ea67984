package models

import "fmt"

// CloneType represents the type of code clone detected.
type CloneType string

const (
	CloneType1 CloneType = "type1" // Exact (whitespace/comments only differ)
	CloneType2 CloneType = "type2" // Renamed (identifiers/literals differ)
	CloneType3 CloneType = "type3" // Near-miss (statements added/removed)
	CloneType4 CloneType = "type4" // Semantic; declared, never matched
)

// Level returns the numeric clone level, 1 being the strictest.
func (c CloneType) Level() int {
	switch c {
	case CloneType1:
		return 1
	case CloneType2:
		return 2
	case CloneType3:
		return 3
	case CloneType4:
		return 4
	}
	return 0
}

// FragmentKind is the syntactic kind of a fragment.
type FragmentKind string

const (
	FragmentFunction FragmentKind = "function"
	FragmentMethod   FragmentKind = "method"
	FragmentClass    FragmentKind = "class"
)

// Fragment is a function, method or class body with its normalized forms.
// Normalized forms are token sequences.
type Fragment struct {
	File      string       `json:"file" msgpack:"f"`
	StartLine uint32       `json:"start_line" msgpack:"s"`
	EndLine   uint32       `json:"end_line" msgpack:"e"`
	Name      string       `json:"name" msgpack:"n"`
	Kind      FragmentKind `json:"kind" msgpack:"k"`
	NodeCount int          `json:"node_count" msgpack:"c"`
	Text      []string     `json:"-" msgpack:"t"`
	Renamed   []string     `json:"-" msgpack:"r"`
	Raw       []string     `json:"-" msgpack:"w"`
}

// ID identifies a fragment by location, kind and name.
func (f *Fragment) ID() string {
	return fmt.Sprintf("%s:%d-%d:%s:%s", f.File, f.StartLine, f.EndLine, f.Kind, f.Name)
}

// Lines returns the number of source lines spanned.
func (f *Fragment) Lines() int {
	return int(f.EndLine-f.StartLine) + 1
}

// Overlaps reports whether two fragments share source lines in one file.
func (f *Fragment) Overlaps(o *Fragment) bool {
	return f.File == o.File && f.StartLine <= o.EndLine && o.StartLine <= f.EndLine
}

// CloneInstance is a fragment location inside a pair or group.
type CloneInstance struct {
	File      string       `json:"file"`
	StartLine uint32       `json:"start_line"`
	EndLine   uint32       `json:"end_line"`
	Name      string       `json:"name"`
	Kind      FragmentKind `json:"kind"`
}

// InstanceOf converts a fragment into its reported location.
func InstanceOf(f *Fragment) CloneInstance {
	return CloneInstance{File: f.File, StartLine: f.StartLine, EndLine: f.EndLine, Name: f.Name, Kind: f.Kind}
}

// ClonePair is two fragments judged similar.
type ClonePair struct {
	A          CloneInstance `json:"a"`
	B          CloneInstance `json:"b"`
	Similarity float64       `json:"similarity"`
	Type       CloneType     `json:"type"`
}

// CloneGroup represents a cluster of mutually similar fragments.
type CloneGroup struct {
	ID         int             `json:"id"`
	Type       CloneType       `json:"type"`
	Instances  []CloneInstance `json:"instances"`
	Similarity float64         `json:"similarity"`
	TotalLines int             `json:"total_lines"`
}

// CloneReport represents the full clone detection result.
type CloneReport struct {
	Pairs   []ClonePair  `json:"pairs"`
	Groups  []CloneGroup `json:"groups,omitempty"`
	Summary CloneSummary `json:"summary"`
}

// CloneSummary provides aggregate statistics.
type CloneSummary struct {
	TotalFragments  int            `json:"total_fragments"`
	TotalPairs      int            `json:"total_pairs"`
	TotalGroups     int            `json:"total_groups"`
	Comparisons     int            `json:"comparisons"`
	Type1Count      int            `json:"type1_count"`
	Type2Count      int            `json:"type2_count"`
	Type3Count      int            `json:"type3_count"`
	DuplicatedLines int            `json:"duplicated_lines"`
	AvgSimilarity   float64        `json:"avg_similarity"`
	FileOccurrences map[string]int `json:"file_occurrences"`
}

// NewCloneSummary creates an initialized summary.
func NewCloneSummary() CloneSummary {
	return CloneSummary{
		FileOccurrences: make(map[string]int),
	}
}

// AddPair updates the summary with a new pair.
func (s *CloneSummary) AddPair(p ClonePair) {
	s.TotalPairs++
	s.FileOccurrences[p.A.File]++
	if p.A.File != p.B.File {
		s.FileOccurrences[p.B.File]++
	}
	s.DuplicatedLines += int(p.A.EndLine-p.A.StartLine+1) + int(p.B.EndLine-p.B.StartLine+1)
	// running mean keeps AvgSimilarity valid after every call
	s.AvgSimilarity += (p.Similarity - s.AvgSimilarity) / float64(s.TotalPairs)

	switch p.Type {
	case CloneType1:
		s.Type1Count++
	case CloneType2:
		s.Type2Count++
	case CloneType3:
		s.Type3Count++
	}
}

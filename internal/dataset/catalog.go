// Package dataset catalogs labeled camera-trap image crops and streams
// them as minibatches. The catalog is a CSV with columns path, dataset,
// location, and label; splits are a JSON mapping from split name to
// [dataset, location] pairs. No two splits may share a location.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Sample is one catalog entry resolved for loading.
type Sample struct {
	Path  string
	Label int
}

type locKey struct {
	Dataset  string
	Location string
}

type entry struct {
	loc      locKey
	path     string
	labelIdx []int
}

// Catalog holds the dataset index: entries, split membership, and the
// label vocabulary.
type Catalog struct {
	entries    []entry
	splits     map[string]map[locKey]bool
	idxToLabel []string
	labelToIdx map[string]int
}

// Load reads the catalog CSV and splits JSON, verifies split
// disjointness, and builds the label index. Label cells may hold
// comma-delimited lists only when multiLabel is set.
func Load(csvPath, splitsPath, imagesDir string, multiLabel bool) (*Catalog, error) {
	splits, err := loadSplits(splitsPath)
	if err != nil {
		return nil, err
	}
	if err := checkDisjoint(splits); err != nil {
		return nil, err
	}

	entries, labels, err := loadEntries(csvPath, imagesDir, multiLabel)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		entries:    entries,
		splits:     splits,
		idxToLabel: labels,
		labelToIdx: make(map[string]int, len(labels)),
	}
	for i, label := range labels {
		c.labelToIdx[label] = i
	}
	return c, nil
}

func loadSplits(path string) (map[string]map[locKey]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open splits")
	}
	defer f.Close()

	var raw map[string][][]string
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "parse splits")
	}

	splits := make(map[string]map[locKey]bool, len(raw))
	for split, locs := range raw {
		set := make(map[locKey]bool, len(locs))
		for _, loc := range locs {
			if len(loc) != 2 {
				return nil, errors.Errorf("splits: entry %v in %q is not a [dataset, location] pair", loc, split)
			}
			set[locKey{Dataset: loc[0], Location: loc[1]}] = true
		}
		splits[split] = set
	}
	return splits, nil
}

func checkDisjoint(splits map[string]map[locKey]bool) error {
	names := make([]string, 0, len(splits))
	for name := range splits {
		names = append(names, name)
	}
	sort.Strings(names)
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			for loc := range splits[names[i]] {
				if splits[names[j]][loc] {
					return errors.Errorf("splits %q and %q share location (%s, %s)",
						names[i], names[j], loc.Dataset, loc.Location)
				}
			}
		}
	}
	return nil
}

func loadEntries(csvPath, imagesDir string, multiLabel bool) ([]entry, []string, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open catalog")
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "read catalog header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{"path", "dataset", "location", "label"} {
		if _, ok := cols[name]; !ok {
			return nil, nil, errors.Errorf("catalog: missing column %q", name)
		}
	}

	var entries []entry
	labelSet := make(map[string]bool)
	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "read catalog row")
		}
		label := record[cols["label"]]
		if !multiLabel && strings.Contains(label, ",") {
			return nil, nil, errors.Errorf("catalog: multi-label cell %q without multilabel enabled", label)
		}
		for _, l := range strings.Split(label, ",") {
			labelSet[l] = true
		}
		rows = append(rows, record)
	}

	labels := make([]string, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	labelToIdx := make(map[string]int, len(labels))
	for i, label := range labels {
		labelToIdx[label] = i
	}

	for _, record := range rows {
		parts := strings.Split(record[cols["label"]], ",")
		idx := make([]int, len(parts))
		for i, l := range parts {
			idx[i] = labelToIdx[l]
		}
		entries = append(entries, entry{
			loc: locKey{
				Dataset:  record[cols["dataset"]],
				Location: record[cols["location"]],
			},
			path:     filepath.Join(imagesDir, record[cols["path"]]),
			labelIdx: idx,
		})
	}
	return entries, labels, nil
}

// NumClasses returns the label vocabulary size.
func (c *Catalog) NumClasses() int {
	return len(c.idxToLabel)
}

// Labels returns the label names indexed by class.
func (c *Catalog) Labels() []string {
	out := make([]string, len(c.idxToLabel))
	copy(out, c.idxToLabel)
	return out
}

// ClassIndex returns the class index for a label name.
func (c *Catalog) ClassIndex(label string) (int, bool) {
	idx, ok := c.labelToIdx[label]
	return idx, ok
}

// Split returns the samples belonging to the named split, in catalog
// order. Multi-label entries cannot be batched and are rejected.
func (c *Catalog) Split(name string) ([]Sample, error) {
	locs, ok := c.splits[name]
	if !ok {
		return nil, errors.Errorf("catalog: unknown split %q", name)
	}
	var samples []Sample
	for _, e := range c.entries {
		if !locs[e.loc] {
			continue
		}
		if len(e.labelIdx) != 1 {
			return nil, errors.Errorf("catalog: entry %s has %d labels; multi-label batching is not supported",
				e.path, len(e.labelIdx))
		}
		samples = append(samples, Sample{Path: e.path, Label: e.labelIdx[0]})
	}
	return samples, nil
}

// WriteLabelIndex persists the class index → label name mapping as JSON.
func (c *Catalog) WriteLabelIndex(path string) error {
	index := make(map[int]string, len(c.idxToLabel))
	for i, label := range c.idxToLabel {
		index[i] = label
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create label index")
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(index); err != nil {
		return errors.Wrap(err, "encode label index")
	}
	return nil
}

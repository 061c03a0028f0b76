// Package dataset loads benchmark splits stored as JSON Lines and carves
// validation and test sets out of them.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/snow-ghost/factorsearch/core"
)

// ErrSplitNotFound is returned by Dataset.Split for unknown split names.
var ErrSplitNotFound = errors.New("split not found")

const maxLineSize = 16 << 20

// Dataset holds the splits of one benchmark, keyed by split name.
type Dataset struct {
	Name   string
	Splits map[string][]core.Example
}

// Open loads every "<split>.jsonl" (or "<split>.json" array) file in dir.
// The dataset is named after the directory.
func Open(dir string) (*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}
	ds := &Dataset{Name: filepath.Base(dir), Splits: make(map[string][]core.Example)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".jsonl" && ext != ".json" {
			continue
		}
		examples, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		ds.Splits[strings.TrimSuffix(e.Name(), ext)] = examples
	}
	if len(ds.Splits) == 0 {
		return nil, fmt.Errorf("no .jsonl or .json files in %s", dir)
	}
	return ds, nil
}

// Split returns up to n examples of split in file order; n <= 0 returns all.
func (d *Dataset) Split(name string, n int) ([]core.Example, error) {
	examples, ok := d.Splits[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in dataset %q (have %v)", ErrSplitNotFound, name, d.Name, d.SplitNames())
	}
	return Head(examples, n), nil
}

func (d *Dataset) SplitNames() []string {
	names := make([]string, 0, len(d.Splits))
	for k := range d.Splits {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// LoadFile reads a JSON Lines file, or a JSON array when the file name ends
// in ".json".
func LoadFile(path string) ([]core.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if filepath.Ext(path) == ".json" {
		dec := json.NewDecoder(f)
		dec.UseNumber()
		var out []core.Example
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return out, nil
	}
	examples, err := ReadJSONL(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return examples, nil
}

// ReadJSONL decodes one JSON object per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]core.Example, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var out []core.Example
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var ex core.Example
		if err := dec.Decode(&ex); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, ex)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Head returns the first n examples, or all of them when n <= 0.
func Head(examples []core.Example, n int) []core.Example {
	if n <= 0 || n >= len(examples) {
		return examples
	}
	return examples[:n]
}

// Sample returns n examples drawn without replacement. The same seed always
// yields the same sample; the input is not modified.
func Sample(examples []core.Example, n int, seed uint64) []core.Example {
	shuffled := shuffle(examples, seed)
	return Head(shuffled, n)
}

// Split shuffles examples with seed and cuts off the first valFraction of
// them as the validation set; the rest is the test set.
func Split(examples []core.Example, valFraction float64, seed uint64) (val, test []core.Example, err error) {
	if valFraction <= 0 || valFraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction must be in (0, 1), got %v", valFraction)
	}
	shuffled := shuffle(examples, seed)
	cut := int(float64(len(shuffled)) * valFraction)
	if cut == 0 && len(shuffled) > 1 {
		cut = 1
	}
	return shuffled[:cut], shuffled[cut:], nil
}

func shuffle(examples []core.Example, seed uint64) []core.Example {
	out := make([]core.Example, len(examples))
	copy(out, examples)
	r := rand.New(rand.NewPCG(seed, seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

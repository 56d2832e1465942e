package evaluation

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

const maxLineBytes = 16 << 20

// UnlabeledMarker in a set file stands for the empty label.
const UnlabeledMarker = "-"

// scanFields calls fn with the whitespace-separated fields of every line
// that is neither blank nor a # comment.
func scanFields(r io.Reader, fn func(line int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := fn(line, strings.Fields(text)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(errors.CodeInvalidArgument, "reading input", err)
	}
	return nil
}

// ParseQrels reads judgments, one query per line:
//
//	query doc[:relevance] doc[:relevance] ...
//
// Relevance defaults to 1. A query may span several lines.
func ParseQrels(r io.Reader) (Qrels, error) {
	qrels := make(Qrels)
	err := scanFields(r, func(line int, fields []string) error {
		query := fields[0]
		if _, ok := qrels[query]; !ok {
			qrels[query] = make(map[string]float64)
		}
		for _, f := range fields[1:] {
			doc, rel, err := parseJudged(f)
			if err != nil {
				return errors.InvalidArgument("line %d: %v", line, err)
			}
			qrels.Add(Judgment{QueryID: query, DocID: doc, Relevance: rel})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return qrels, nil
}

// parseJudged splits "doc:rel". Only the text after the last colon is
// taken as the grade.
func parseJudged(field string) (string, float64, error) {
	idx := strings.LastIndex(field, ":")
	if idx < 0 {
		return field, 1.0, nil
	}

	doc, grade := field[:idx], field[idx+1:]
	if doc == "" {
		return "", 0, fmt.Errorf("missing document in %q", field)
	}
	rel, err := strconv.ParseFloat(grade, 64)
	if err != nil || math.IsNaN(rel) || math.IsInf(rel, 0) {
		return "", 0, fmt.Errorf("malformed relevance %q for %q", grade, doc)
	}
	return doc, rel, nil
}

// ParseRun reads ranked documents, one query per line in rank order:
//
//	query doc doc ...
//
// Lines for a query already seen extend its ranking.
func ParseRun(r io.Reader) (*Run, error) {
	run := NewRun()
	err := scanFields(r, func(line int, fields []string) error {
		run.Append(fields[0], fields[1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ParseSets reads labelled sets, one set per line:
//
//	document label item item ...
//
// The label "-" means unlabelled. A line may carry no items.
func ParseSets(r io.Reader) (*SetCollection, error) {
	c := NewSetCollection()
	err := scanFields(r, func(line int, fields []string) error {
		if len(fields) < 2 {
			return errors.InvalidArgument("line %d: expected a document key and a label", line)
		}
		label := fields[1]
		if label == UnlabeledMarker {
			label = ""
		}
		c.Append(fields[0], label, fields[2:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

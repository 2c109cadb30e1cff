package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	partitionExt = ".csv"
	seqFile      = ".seq"
)

var header = []string{"Title", "Priority", "Description", "ID"}

func partitionFile(status Status) string {
	return string(status) + partitionExt
}

func partitionPath(root string, status Status) string {
	return filepath.Join(root, partitionFile(status))
}

// readPartition returns the well-formed records of one partition file together
// with a problem entry for every row it had to skip. A missing file is empty.
func readPartition(path string, status Status) ([]Task, []*CorruptRecordError, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, storageErr("read", path, err)
	}
	return decodePartition(b, status)
}

func newPartitionReader(data []byte) *csv.Reader {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	return cr
}

func decodePartition(data []byte, status Status) ([]Task, []*CorruptRecordError, error) {
	cr := newPartitionReader(data)

	var (
		tasks    []Task
		problems []*CorruptRecordError
		first    = true
		offset   int // lines consumed before the current reader's input
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, nil, err
			}
			problems = append(problems, &CorruptRecordError{Partition: status, Line: offset + pe.StartLine, Reason: pe.Err.Error()})
			first = false
			// An unterminated quote swallows the rest of the input, so parsing
			// resumes on the physical line after the one the bad record started on.
			data = skipLines(data, pe.StartLine)
			offset += pe.StartLine
			cr = newPartitionReader(data)
			continue
		}
		line, _ := cr.FieldPos(0)
		line += offset
		if first {
			first = false
			if isHeader(row) {
				continue
			}
		}
		t, reason := parseRecord(row)
		if reason != "" {
			problems = append(problems, &CorruptRecordError{Partition: status, Line: line, Reason: reason})
			continue
		}
		t.Status = status
		tasks = append(tasks, t)
	}
	return tasks, problems, nil
}

// skipLines drops the first n newline-terminated lines of data.
func skipLines(data []byte, n int) []byte {
	for ; n > 0; n-- {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return nil
		}
		data = data[i+1:]
	}
	return data
}

func isHeader(row []string) bool {
	if len(row) < len(header) {
		return false
	}
	for i, h := range header {
		if !strings.EqualFold(strings.TrimSpace(row[i]), h) {
			return false
		}
	}
	return true
}

func parseRecord(row []string) (Task, string) {
	if len(row) < len(header) {
		return Task{}, fmt.Sprintf("expected %d fields, got %d", len(header), len(row))
	}
	priority, err := strconv.Atoi(strings.TrimSpace(row[1]))
	if err != nil {
		return Task{}, fmt.Sprintf("priority %q is not a number", row[1])
	}
	if !ValidPriority(priority) {
		return Task{}, fmt.Sprintf("priority %d outside %d-%d", priority, MinPriority, MaxPriority)
	}
	id, err := strconv.Atoi(strings.TrimSpace(row[3]))
	if err != nil || id <= 0 {
		return Task{}, fmt.Sprintf("id %q is not a positive integer", row[3])
	}
	return Task{
		ID:          id,
		Title:       row[0],
		Priority:    priority,
		Description: row[2],
	}, ""
}

// encodePartition renders the header and the given tasks ordered by id.
func encodePartition(tasks []Task) ([]byte, error) {
	sorted := append([]Task(nil), tasks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, t := range sorted {
		row := []string{t.Title, strconv.Itoa(t.Priority), t.Description, strconv.Itoa(t.ID)}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readSeq(root string) int {
	b, err := os.ReadFile(filepath.Join(root, seqFile))
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

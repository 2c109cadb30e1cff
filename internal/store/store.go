package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"
)

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

var timeNow = func() time.Time { return time.Now().UTC() }

var entropySource io.Reader = randReader{}

type IDPolicy string

const (
	// IDPolicyMonotonic never hands out an id that was assigned before, even
	// after the task holding it is deleted.
	IDPolicyMonotonic IDPolicy = "monotonic"
	// IDPolicyReuse derives the next id from the ids currently present only.
	IDPolicyReuse IDPolicy = "reuse"
)

func ParseIDPolicy(s string) (IDPolicy, error) {
	switch IDPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case IDPolicyMonotonic, "":
		return IDPolicyMonotonic, nil
	case IDPolicyReuse:
		return IDPolicyReuse, nil
	default:
		return "", fmt.Errorf("%w: unknown id policy %q (use monotonic|reuse)", ErrInvalid, s)
	}
}

// Store owns every task of one storage directory. The keyed collection in
// memory is authoritative; partitions on disk are derived from it on Save.
type Store struct {
	Root string

	tasks    map[int]Task
	seq      int
	policy   IDPolicy
	strict   bool
	logger   *log.Logger
	problems []*CorruptRecordError
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStrict makes Load fail on the first corrupt row or duplicate id instead
// of skipping it.
func WithStrict(strict bool) Option {
	return func(s *Store) { s.strict = strict }
}

func WithIDPolicy(p IDPolicy) Option {
	return func(s *Store) {
		if p != "" {
			s.policy = p
		}
	}
}

// Open loads the store rooted at root. A missing directory is an empty store;
// nothing is created until Init or Save.
func Open(root string, opts ...Option) (*Store, error) {
	s := &Store{
		Root:   expandHome(root),
		tasks:  map[int]Task{},
		policy: IDPolicyMonotonic,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Init creates the storage directory and writes an empty partition, header
// only, for every status that has no file yet.
func Init(root string) error {
	root = expandHome(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return storageErr("mkdir", root, err)
	}
	empty, err := encodePartition(nil)
	if err != nil {
		return err
	}
	for _, status := range Statuses {
		path := partitionPath(root, status)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := atomicWriteFile(path, empty, 0o644); err != nil {
			return storageErr("write", path, err)
		}
	}
	return nil
}

// Exists reports whether the storage directory is present.
func Exists(root string) bool {
	info, err := os.Stat(expandHome(root))
	return err == nil && info.IsDir()
}

// Load replaces the in-memory collection with the contents of the three
// partitions. When the same id appears in more than one partition the later
// partition wins.
func (s *Store) Load() error {
	tasks := map[int]Task{}
	var problems []*CorruptRecordError
	for _, status := range Statuses {
		path := partitionPath(s.Root, status)
		recs, bad, err := readPartition(path, status)
		if err != nil {
			return err
		}
		problems = append(problems, bad...)
		for _, t := range recs {
			if prev, ok := tasks[t.ID]; ok {
				problems = append(problems, &CorruptRecordError{
					Partition: status,
					Reason:    fmt.Sprintf("duplicate id %d, also in %s", t.ID, prev.Status),
				})
			}
			tasks[t.ID] = t
		}
	}

	for _, p := range problems {
		s.logger.Warn("skipping record", "partition", p.Partition, "line", p.Line, "reason", p.Reason)
	}
	if s.strict && len(problems) > 0 {
		errs := make([]error, 0, len(problems))
		for _, p := range problems {
			errs = append(errs, p)
		}
		return fmt.Errorf("load %s: %w", s.Root, errors.Join(errs...))
	}

	s.tasks = tasks
	s.problems = problems
	s.seq = 0
	if s.policy == IDPolicyMonotonic {
		s.seq = readSeq(s.Root)
	}
	if highest := NextID(tasks, 0) - 1; highest > s.seq {
		s.seq = highest
	}
	s.logger.Debug("loaded store", "root", s.Root, "tasks", len(tasks), "problems", len(problems))
	return nil
}

// Problems returns the rows skipped by the last Load.
func (s *Store) Problems() []*CorruptRecordError {
	return append([]*CorruptRecordError(nil), s.problems...)
}

// Save rewrites all partitions from the in-memory collection. Every file is
// first written to a staging directory inside Root and only then renamed into
// place, so a failed write leaves the previous partitions intact.
//
// If a rename fails after others succeeded the disk holds partitions from two
// generations. Save then reloads the collection from disk; when that is not
// possible the in-memory collection is kept as the newer generation.
func (s *Store) Save() error {
	_, err := s.save()
	return err
}

// save reports whether any file reached its final name, in which case the
// caller must not roll back its in-memory change.
func (s *Store) save() (bool, error) {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return false, storageErr("mkdir", s.Root, err)
	}
	stage := filepath.Join(s.Root, ".tx-"+newULID())
	if err := os.Mkdir(stage, 0o755); err != nil {
		return false, storageErr("mkdir", stage, err)
	}
	defer os.RemoveAll(stage)

	parts := s.partitions()
	files := make([]string, 0, len(Statuses)+1)
	for _, status := range Statuses {
		data, err := encodePartition(parts[status])
		if err != nil {
			return false, fmt.Errorf("encode %s: %w", status, err)
		}
		name := partitionFile(status)
		if err := os.WriteFile(filepath.Join(stage, name), data, 0o644); err != nil {
			return false, storageErr("write", filepath.Join(stage, name), err)
		}
		files = append(files, name)
	}
	if s.policy == IDPolicyMonotonic {
		if err := os.WriteFile(filepath.Join(stage, seqFile), []byte(strconv.Itoa(s.seq)+"\n"), 0o644); err != nil {
			return false, storageErr("write", filepath.Join(stage, seqFile), err)
		}
		files = append(files, seqFile)
	}

	for i, name := range files {
		if err := os.Rename(filepath.Join(stage, name), filepath.Join(s.Root, name)); err != nil {
			serr := storageErr("rename", filepath.Join(s.Root, name), err)
			if i == 0 {
				return false, serr
			}
			s.logger.Error("partial save", "root", s.Root, "committed", files[:i], "failed", name, "err", err)
			if lerr := s.Load(); lerr != nil {
				s.logger.Error("reload after partial save", "root", s.Root, "err", lerr)
			}
			return true, serr
		}
	}
	s.logger.Debug("saved store", "root", s.Root, "open", len(parts[StatusOpen]),
		"in_progress", len(parts[StatusInProgress]), "closed", len(parts[StatusClosed]))
	return true, nil
}

func (s *Store) partitions() map[Status][]Task {
	parts := make(map[Status][]Task, len(Statuses))
	for _, t := range s.tasks {
		parts[t.Status] = append(parts[t.Status], t)
	}
	return parts
}

// Create adds an OPEN task with a fresh id and persists the store.
func (s *Store) Create(title string, priority int, description string) (Task, error) {
	if !ValidPriority(priority) {
		return Task{}, fmt.Errorf("%w: priority %d outside %d-%d", ErrInvalid, priority, MinPriority, MaxPriority)
	}
	floor := 0
	if s.policy == IDPolicyMonotonic {
		floor = s.seq
	}
	t := Task{
		ID:          NextID(s.tasks, floor),
		Title:       title,
		Priority:    priority,
		Description: description,
		Status:      StatusOpen,
	}
	prevSeq := s.seq
	s.tasks[t.ID] = t
	if t.ID > s.seq {
		s.seq = t.ID
	}
	if committed, err := s.save(); err != nil {
		if !committed {
			delete(s.tasks, t.ID)
			s.seq = prevSeq
		}
		return Task{}, err
	}
	s.logger.Info("created task", "id", t.ID, "priority", t.Priority)
	return t, nil
}

// Move advances a task one step through the workflow. reopen is consulted
// only for CLOSED tasks; a nil reopen declines. The store is saved even when
// the status does not change.
func (s *Store) Move(id int, reopen ReopenFunc) (Status, error) {
	t, ok := s.tasks[id]
	if !ok {
		return "", fmt.Errorf("%w: task %d", ErrNotFound, id)
	}
	again := false
	if t.Status == StatusClosed && reopen != nil {
		var err error
		again, err = reopen(t)
		if err != nil {
			return "", err
		}
	}
	prev := t.Status
	t.Status = Transition(prev, again)
	s.tasks[id] = t
	if committed, err := s.save(); err != nil {
		if !committed {
			t.Status = prev
			s.tasks[id] = t
		}
		return "", err
	}
	s.logger.Info("moved task", "id", id, "from", prev, "to", t.Status)
	return t.Status, nil
}

// Delete removes a task permanently and persists the store.
func (s *Store) Delete(id int) error {
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %d", ErrNotFound, id)
	}
	delete(s.tasks, id)
	if committed, err := s.save(); err != nil {
		if !committed {
			s.tasks[id] = t
		}
		return err
	}
	s.logger.Info("deleted task", "id", id)
	return nil
}

func (s *Store) Get(id int) (Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: task %d", ErrNotFound, id)
	}
	return t, nil
}

func (s *Store) Count() int {
	return len(s.tasks)
}

// Tasks returns a copy of every task ordered by id.
func (s *Store) Tasks() []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func newULID() string {
	t := ulid.Timestamp(timeNow())
	entropy := ulid.Monotonic(entropySource, 0)
	id, err := ulid.New(t, entropy)
	if err != nil {
		// fallback
		return fmt.Sprintf("%d", timeNow().UnixNano())
	}
	return strings.ToUpper(id.String())
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) || path == "~" {
		home, _ := os.UserHomeDir()
		if home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func atomicWriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp-%d", timeNow().UnixNano()))
	if err := os.WriteFile(tmp, data, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// Rename is atomic on same filesystem.
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

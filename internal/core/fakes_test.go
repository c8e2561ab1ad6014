package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// memRepo is an in-memory ResultRepository. Each transaction works on a copy
// of the state that replaces it on commit.
type memRepo struct {
	mu           sync.Mutex
	results      map[string]LabResult
	observations map[obsKey]LabObservation

	// failObservation makes InsertObservation fail for this analyte name.
	failObservation string
	commits         int

	// commitDelay is spent after a commit, before WithinTx returns.
	commitDelay time.Duration
}

type obsKey struct {
	resultID string
	nameID   int64
	name     string
}

func newMemRepo() *memRepo {
	return &memRepo{
		results:      make(map[string]LabResult),
		observations: make(map[obsKey]LabObservation),
	}
}

func (r *memRepo) seed(res LabResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.Observations = nil
	r.results[res.ID] = res
}

func (r *memRepo) get(id string) (LabResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[id]
	return res, ok
}

func (r *memRepo) observationCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.observations {
		if k.resultID == id {
			n++
		}
	}
	return n
}

func (r *memRepo) WithinTx(ctx context.Context, fn func(tx ResultTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{
		results:         make(map[string]LabResult, len(r.results)),
		observations:    make(map[obsKey]LabObservation, len(r.observations)),
		failObservation: r.failObservation,
	}
	for k, v := range r.results {
		tx.results[k] = v
	}
	for k, v := range r.observations {
		tx.observations[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.results = tx.results
	r.observations = tx.observations
	r.commits++
	if r.commitDelay > 0 {
		time.Sleep(r.commitDelay)
	}
	return nil
}

func (r *memRepo) Ping(context.Context) error { return nil }

type memTx struct {
	results         map[string]LabResult
	observations    map[obsKey]LabObservation
	failObservation string
}

func (tx *memTx) GetLabResult(_ context.Context, id string) (*LabResult, error) {
	res, ok := tx.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &res, nil
}

func (tx *memTx) MarkAnalyzed(_ context.Context, id string, orderID *int64, doctor *string) error {
	res, ok := tx.results[id]
	if !ok {
		return ErrNotFound
	}
	res.OrderID = orderID
	res.PerformingDoctor = doctor
	res.Status = StatusAnalyzed
	tx.results[id] = res
	return nil
}

func (tx *memTx) InsertLabResult(_ context.Context, r *LabResult) error {
	if _, ok := tx.results[r.ID]; ok {
		return fmt.Errorf("duplicate key value violates unique constraint %q", "lab_results_pkey")
	}
	res := *r
	res.Observations = nil
	tx.results[r.ID] = res
	return nil
}

func (tx *memTx) InsertObservation(_ context.Context, o *LabObservation) (bool, error) {
	if tx.failObservation != "" && o.Name == tx.failObservation {
		return false, errors.New("insert observation: check constraint violated")
	}
	if _, ok := tx.results[o.LabResultID]; !ok {
		return false, errors.New("violates foreign key constraint")
	}
	key := obsKey{o.LabResultID, o.NameID, o.Name}
	if _, ok := tx.observations[key]; ok {
		return false, nil
	}
	tx.observations[key] = *o
	return true, nil
}

// memSource is an in-memory Source holding files in listing order.
type memSource struct {
	mu      sync.Mutex
	files   map[string][]byte
	order   []string
	deleted []string
	events  []string

	listErr   error
	openErr   map[string]error
	deleteErr map[string]error
	closed    bool
}

func newMemSource(files map[string]string) *memSource {
	s := &memSource{
		files:     make(map[string][]byte),
		openErr:   make(map[string]error),
		deleteErr: make(map[string]error),
	}
	for name, content := range files {
		s.files[name] = []byte(content)
		s.order = append(s.order, name)
	}
	sort.Strings(s.order)
	return s
}

func (s *memSource) opener() SourceOpener {
	return func(context.Context) (Source, error) { return s, nil }
}

func (s *memSource) List(context.Context) ([]RemoteFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []RemoteFile
	for _, name := range s.order {
		if content, ok := s.files[name]; ok {
			out = append(out, RemoteFile{Path: name, Size: int64(len(content))})
		}
	}
	return out, nil
}

func (s *memSource) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "open "+path)
	if err := s.openErr[path]; err != nil {
		return nil, err
	}
	content, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: file does not exist", path)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (s *memSource) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[path]; err != nil {
		return err
	}
	delete(s.files, path)
	s.deleted = append(s.deleted, path)
	s.events = append(s.events, "delete "+path)
	return nil
}

func (s *memSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSource) Driver() Driver { return DriverFS }

func (s *memSource) exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok
}

// lineParser reads one result per line as "ID;analyte[;analyte...]". A line
// "!" fails the parse and "-" yields a result without id.
type lineParser struct{}

func (lineParser) Format() Format { return FormatCSV }

func (lineParser) Parse(path string, content []byte) ([]*LabResult, error) {
	var out []*LabResult
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "!":
			return nil, fmt.Errorf("invalid csv: %s: unreadable", path)
		case "-":
			out = append(out, &LabResult{Observations: []*LabObservation{{Name: "x"}}})
			continue
		}
		parts := strings.Split(line, ";")
		res := &LabResult{ID: parts[0]}
		for _, name := range parts[1:] {
			res.Observations = append(res.Observations, &LabObservation{Name: name})
		}
		out = append(out, res)
	}
	return out, nil
}

// recordingObserver captures observer calls.
type recordingObserver struct {
	mu      sync.Mutex
	files   []Outcome
	reports []RunReport
}

func (o *recordingObserver) FileProcessed(_ string, item *ImportItem) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files = append(o.files, item.Outcome)
}

func (o *recordingObserver) RunFinished(_ string, report RunReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, report)
}

func strPtr(s string) *string { return &s }

package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "jobd/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.state.snapshot.json (periodic snapshot)
//   - <prefix>.state.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File

	state  fileState
	writes int
}

type fileState struct {
	Jobs           map[int64]json.RawMessage `json:"jobs"`
	Schedules      map[int64]json.RawMessage `json:"schedules"`
	LastScheduleID int64                     `json:"last_schedule_id"`
}

type journalRecord struct {
	Kind string          `json:"kind"` // "job", "sched" or "meta"
	Op   string          `json:"op"`   // "put" or "del"
	ID   int64           `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

const compactEvery = 256

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".state.snapshot.json"
	journalPath := prefix + ".state.journal.jsonl"

	st := newFileState()
	_ = loadSnapshot(snapPath, &st)
	_ = replayJournal(journalPath, &st)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		state:        st,
	}, nil
}

func newFileState() fileState {
	return fileState{
		Jobs:      map[int64]json.RawMessage{},
		Schedules: map[int64]json.RawMessage{},
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journalFile.Close(); err == nil {
		err = cerr
	}
	s.journalFile = nil
	return err
}

func (s *fileStore) PutJob(ctx context.Context, id int64, header []byte) error {
	_ = ctx
	return s.apply(journalRecord{Kind: "job", Op: "put", ID: id, Data: append([]byte(nil), header...)})
}

func (s *fileStore) DeleteJob(ctx context.Context, id int64) error {
	_ = ctx
	return s.apply(journalRecord{Kind: "job", Op: "del", ID: id})
}

func (s *fileStore) ListJobs(ctx context.Context) (map[int64][]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyHeaders(s.state.Jobs), nil
}

func (s *fileStore) PutSchedule(ctx context.Context, id int64, header []byte) error {
	_ = ctx
	return s.apply(journalRecord{Kind: "sched", Op: "put", ID: id, Data: append([]byte(nil), header...)})
}

func (s *fileStore) DeleteSchedule(ctx context.Context, id int64) error {
	_ = ctx
	return s.apply(journalRecord{Kind: "sched", Op: "del", ID: id})
}

func (s *fileStore) ListSchedules(ctx context.Context) (map[int64][]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyHeaders(s.state.Schedules), nil
}

func (s *fileStore) SetLastScheduleID(ctx context.Context, id int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= s.state.LastScheduleID {
		return nil
	}
	return s.applyLocked(journalRecord{Kind: "meta", Op: "put", ID: id})
}

func (s *fileStore) LastScheduleID(ctx context.Context) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastScheduleID, nil
}

func (s *fileStore) apply(r journalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(r)
}

func (s *fileStore) applyLocked(r journalRecord) error {
	if s.journalFile == nil {
		return errors.New("state journal closed")
	}
	applyRecord(&s.state, r)

	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("state compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.state); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func applyRecord(st *fileState, r journalRecord) {
	switch r.Kind {
	case "job":
		if r.Op == "del" {
			delete(st.Jobs, r.ID)
			return
		}
		st.Jobs[r.ID] = r.Data
	case "sched":
		if r.Op == "del" {
			delete(st.Schedules, r.ID)
			return
		}
		st.Schedules[r.ID] = r.Data
	case "meta":
		if r.ID > st.LastScheduleID {
			st.LastScheduleID = r.ID
		}
	}
}

func loadSnapshot(path string, out *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var st fileState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return err
	}
	for k, v := range st.Jobs {
		out.Jobs[k] = v
	}
	for k, v := range st.Schedules {
		out.Schedules[k] = v
	}
	if st.LastScheduleID > out.LastScheduleID {
		out.LastScheduleID = st.LastScheduleID
	}
	return nil
}

func replayJournal(path string, out *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		applyRecord(out, r)
	}
	return sc.Err()
}

func copyHeaders(m map[int64]json.RawMessage) map[int64][]byte {
	out := make(map[int64][]byte, len(m))
	for id, raw := range m {
		out[id] = append([]byte(nil), raw...)
	}
	return out
}

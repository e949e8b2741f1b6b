// Package checkpoint implements the Checkpoint Store (spec §4.4):
// atomic, content-addressed snapshot persistence under
// output/{run_id}/checkpoints/, run-id allocation, and schema-fingerprint
// gated loads.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/turnforge/simcore/engine/core"
	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/state"
)

// Store manages one run's checkpoint directory tree.
type Store struct {
	OutputDir string
}

// New returns a Store rooted at outputDir (spec's "output/").
func New(outputDir string) *Store {
	return &Store{OutputDir: outputDir}
}

var unsafeNameChars = regexp.MustCompile(`[/\s]+`)

// AllocateRunID builds `{name}_{N}agents_{YYYYMMDD}_{HHMMSS}_{seq:02}`,
// sanitizing name and incrementing seq from 01 until a directory of that
// name does not yet exist under OutputDir. Fails once seq exceeds 99.
func (s *Store) AllocateRunID(name string, agentCount int, now time.Time) (string, error) {
	safe := unsafeNameChars.ReplaceAllString(name, "_")
	stamp := now.UTC().Format("20060102_150405")
	for seq := 1; seq <= 99; seq++ {
		runID := fmt.Sprintf("%s_%dagents_%s_%02d", safe, agentCount, stamp, seq)
		if _, err := os.Stat(filepath.Join(s.OutputDir, runID)); os.IsNotExist(err) {
			return runID, nil
		}
	}
	return "", core.NewError(fmt.Errorf("exhausted 99 run-id sequence slots for %q at %s", safe, stamp), core.CodeConfigError, nil)
}

func (s *Store) runDir(runID string) string            { return filepath.Join(s.OutputDir, runID) }
func (s *Store) checkpointsDir(runID string) string     { return filepath.Join(s.runDir(runID), "checkpoints") }
func (s *Store) lastPath(runID string) string           { return filepath.Join(s.checkpointsDir(runID), "last.json") }
func (s *Store) turnPath(runID string, turn int) string { return filepath.Join(s.checkpointsDir(runID), fmt.Sprintf("turn_%d.json", turn)) }
func (s *Store) resultPath(runID string) string         { return filepath.Join(s.runDir(runID), "result.json") }
func (s *Store) lockPath(runID string) string           { return filepath.Join(s.runDir(runID), ".lock") }

// ShouldSave reports whether a turn checkpoint (in addition to last.json,
// which is always written) should be persisted this turn (spec §4.4).
func ShouldSave(turn int, interval *int, isFinal bool) bool {
	if isFinal {
		return true
	}
	return interval != nil && *interval > 0 && turn > 0 && turn%*interval == 0
}

// Save writes last.json unconditionally and, when ShouldSave reports
// true, an immutable turn_{N}.json, advisory-locking the run directory
// for the duration of the write (spec §4.4, §5).
func (s *Store) Save(runID string, snap *state.Snapshot, interval *int, isFinal bool) error {
	if err := os.MkdirAll(s.checkpointsDir(runID), 0o755); err != nil {
		return core.NewError(fmt.Errorf("create checkpoint directory: %w", err), core.CodeCheckpointSaveError, nil)
	}
	lock := flock.New(s.lockPath(runID))
	if err := lock.Lock(); err != nil {
		return core.NewError(fmt.Errorf("lock run directory: %w", err), core.CodeCheckpointSaveError, nil)
	}
	defer lock.Unlock()

	checkpointType := TypeInterval
	if isFinal {
		checkpointType = TypeFinal
	}
	doc := fromSnapshot(checkpointType, time.Now().UTC().Format(time.RFC3339Nano), snap)
	b, err := json.Marshal(doc)
	if err != nil {
		return core.NewError(fmt.Errorf("marshal checkpoint: %w", err), core.CodeCheckpointSaveError, nil)
	}

	if err := atomicWrite(s.lastPath(runID), b); err != nil {
		return core.NewError(fmt.Errorf("write last.json: %w", err), core.CodeCheckpointSaveError, nil)
	}
	if ShouldSave(snap.Turn, interval, isFinal) {
		if err := atomicWrite(s.turnPath(runID, snap.Turn), b); err != nil {
			return core.NewError(fmt.Errorf("write turn_%d.json: %w", snap.Turn, err), core.CodeCheckpointSaveError, nil)
		}
	}
	return nil
}

// atomicWrite serializes b to target via a temp-file-then-rename so
// readers never observe a partial file.
func atomicWrite(target string, b []byte) error {
	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Load reads last.json (or a specific turn if turn >= 0), validates it
// against sc, and rejects on schema-fingerprint mismatch (spec §4.4).
func (s *Store) Load(runID string, turn int, sc *schema.Schema) (*state.Snapshot, error) {
	path := s.lastPath(runID)
	if turn >= 0 {
		path = s.turnPath(runID, turn)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewError(
				fmt.Errorf("no checkpoint at %s (remediation: verify run_id and turn, or omit --resume-turn to load the latest)", path),
				core.CodeCheckpointLoadError, map[string]any{"path": path},
			)
		}
		return nil, core.NewError(fmt.Errorf("read checkpoint: %w", err), core.CodeCheckpointLoadError, nil)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, core.NewError(fmt.Errorf("corrupt checkpoint at %s: %w", path, err), core.CodeCheckpointLoadError, nil)
	}
	if doc.SchemaFingerprint != sc.Fingerprint() {
		return nil, core.NewError(
			fmt.Errorf("checkpoint schema_fingerprint %s does not match current config fingerprint %s", doc.SchemaFingerprint, sc.Fingerprint()),
			core.CodeCheckpointLoadError, map[string]any{"checkpoint_fingerprint": doc.SchemaFingerprint, "config_fingerprint": sc.Fingerprint()},
		)
	}
	return doc.toSnapshot(sc)
}

// Result is the end-of-run summary written to result.json (spec §6).
type Result struct {
	RunMetadata    map[string]any `json:"run_metadata"`
	FinalState     map[string]any `json:"final_state"`
	CheckpointTurns []int         `json:"checkpoint_turns"`
	SummaryStats   map[string]any `json:"summary_stats"`
}

// SaveResult writes result.json at run end. It is never written on a
// crash/abort, per spec §7.
func (s *Store) SaveResult(runID string, result Result) error {
	b, err := json.Marshal(result)
	if err != nil {
		return core.NewError(fmt.Errorf("marshal result: %w", err), core.CodeCheckpointSaveError, nil)
	}
	return atomicWrite(s.resultPath(runID), b)
}

// ListCheckpointTurns returns the sorted turn numbers with an immutable
// turn_{N}.json on disk for runID.
func (s *Store) ListCheckpointTurns(runID string) ([]int, error) {
	entries, err := os.ReadDir(s.checkpointsDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var turns []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "turn_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "turn_"), ".json"))
		if err == nil {
			turns = append(turns, n)
		}
	}
	sort.Ints(turns)
	return turns, nil
}

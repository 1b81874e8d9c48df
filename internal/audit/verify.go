package audit

import "fmt"

// ChainError describes the first broken link found by Verify.
type ChainError struct {
	Sequence uint64
	Reason   string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at entry %d: %s", e.Sequence, e.Reason)
}

// Verify walks the whole chain. It returns the number of entries checked
// and a *ChainError for the first gap, reordered link or altered entry.
func (s *Store) Verify() (uint64, error) {
	s.mu.Lock()
	last := s.lastSeq
	s.mu.Unlock()

	if last == 0 {
		return 0, nil
	}
	entries, err := s.Range(FirstSequence, last)
	if err != nil {
		return 0, err
	}

	want := FirstSequence
	prev := ""
	for _, e := range entries {
		if e.Sequence != want {
			return want - 1, &ChainError{Sequence: want, Reason: "missing entry"}
		}
		if e.PrevHash != prev {
			return want - 1, &ChainError{Sequence: e.Sequence, Reason: "previous hash mismatch"}
		}
		if !e.Verify() {
			return want - 1, &ChainError{Sequence: e.Sequence, Reason: "hash mismatch"}
		}
		prev = e.Hash
		want++
	}
	if want-1 != last {
		return want - 1, &ChainError{Sequence: want, Reason: "missing entry"}
	}
	return last, nil
}

package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"ammcore/internal/model"
)

// ReadOperations parses a JSONL stream of operations. Blank lines are
// skipped; operations are numbered from 1 in file order.
func ReadOperations(r io.Reader) ([]model.Operation, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var (
		ops  []model.Operation
		line int
	)
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var op model.Operation
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		op.Seq = uint64(len(ops) + 1)
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return ops, nil
}

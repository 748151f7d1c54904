package history

import (
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"

	"github.com/AnatoleLucet/rewind/value"
)

type exportedVersion struct {
	Seq        uint64                 `json:"seq"`
	Name       string                 `json:"name,omitempty"`
	Checkpoint bool                   `json:"checkpoint,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	Clock      uint64                 `json:"clock"`
	Values     map[string]value.Value `json:"values"`
}

type exportDoc struct {
	Versions []exportedVersion `json:"versions"`
	Position int               `json:"position"`
}

// Export writes every retained version as one JSON document. Values holding
// funcs cannot be encoded and are left out.
func (s *Store) Export(w io.Writer) error {
	doc := exportDoc{
		Versions: make([]exportedVersion, 0, len(s.versions)),
		Position: s.cursor,
	}

	for _, v := range s.versions {
		values := v.Values()
		for name, val := range values {
			if _, err := value.Encode(val); err != nil {
				delete(values, name)
			}
		}

		doc.Versions = append(doc.Versions, exportedVersion{
			Seq:        v.seq,
			Name:       v.name,
			Checkpoint: v.checkpoint,
			CreatedAt:  v.createdAt.UTC(),
			Clock:      v.clock,
			Values:     values,
		})
	}

	data, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// DetailResult is one primary row joined with its child table rows.
type DetailResult struct {
	Header  []string     `json:"header"`
	Row     []string     `json:"row"`
	Details ChildDetails `json:"details"`
}

// ChildDetails carries the joined child rows per kind. The kinds form a
// closed set, so each gets a named field; headers are omitted for kinds the
// transaction type does not declare.
type ChildDetails struct {
	Land        [][]string `json:"land"`
	LandHeader  []string   `json:"landHeader,omitempty"`
	Build       [][]string `json:"build"`
	BuildHeader []string   `json:"buildHeader,omitempty"`
	Park        [][]string `json:"park"`
	ParkHeader  []string   `json:"parkHeader,omitempty"`
}

// Detail finds the primary row whose id column equals id and joins every
// child row sharing that id, preserving file order.
//
// Ids are only expected to be unique within one table file; if a file does
// violate that, the first match wins and the scan stops there. A full scan
// with no match reports ErrNotFound. Absent child files contribute empty
// lists, never errors.
func (s *Store) Detail(ctx context.Context, city, typ, id string) (*DetailResult, error) {
	if err := validateTable(city, typ); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("missing id: %w", ErrBadInput)
	}

	res := &DetailResult{
		Details: ChildDetails{
			Land:  [][]string{},
			Build: [][]string{},
			Park:  [][]string{},
		},
	}

	idIdx := -1
	path := filepath.Join(s.root, tableFile(city, typ))
	err := scanTable(ctx, path,
		func(header []string) {
			res.Header = header
			idIdx = indexOf(header, colID)
		},
		func(row []string) error {
			if idIdx >= 0 && fieldAt(row, idIdx) == id {
				res.Row = row
				return errStopScan
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	if res.Row == nil {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}

	for _, kind := range typeMeta[typ].Needs {
		rows, header, err := s.childRows(ctx, city, typ, kind, id)
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindLand:
			res.Details.Land, res.Details.LandHeader = rows, header
		case KindBuild:
			res.Details.Build, res.Details.BuildHeader = rows, header
		case KindPark:
			res.Details.Park, res.Details.ParkHeader = rows, header
		}
	}
	return res, nil
}

// childRows collects every row of one child table whose first field equals
// id. The id is conventionally the first field of child rows, not a named
// column. A missing child file yields an empty list.
func (s *Store) childRows(ctx context.Context, city, typ string, kind ChildKind, id string) ([][]string, []string, error) {
	rows := [][]string{}
	var header []string

	path := filepath.Join(s.root, childFile(city, typ, kind))
	err := scanTable(ctx, path,
		func(h []string) { header = h },
		func(row []string) error {
			if fieldAt(row, 0) == id {
				rows = append(rows, row)
			}
			return nil
		})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rows, nil, nil
		}
		return nil, nil, err
	}
	return rows, header, nil
}

package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Column names in the source tables that the engine knows about. Headers are
// positional otherwise; only these few drive filtering and joining.
const (
	colID       = "編號"
	colDistrict = "鄉鎮市區"
	colAddress  = "土地位置建物門牌"
	colRemark   = "備註"
	colSubject  = "交易標的"
)

// Pagination bounds. Limit is capped so one request cannot ask for an
// unbounded response.
const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// QueryOptions selects and filters one primary table.
type QueryOptions struct {
	City string
	Type string

	Page  int
	Limit int

	// Keyword is matched case-insensitively as a substring of the address,
	// district and remark columns.
	Keyword string

	// District, when set, requires an exact match on the district column.
	District string

	// IncludeBuilding and IncludeLand filter on the transaction subject
	// column: a row either involves a building or is a land-only transfer.
	// Both default to true via NewQueryOptions.
	IncludeBuilding bool
	IncludeLand     bool
}

// NewQueryOptions returns options with defaults applied: first page, default
// limit, both structural switches on.
func NewQueryOptions(city, typ string) QueryOptions {
	return QueryOptions{
		City:            city,
		Type:            typ,
		Page:            1,
		Limit:           DefaultLimit,
		IncludeBuilding: true,
		IncludeLand:     true,
	}
}

// QueryResult is one page of filtered rows plus the total match count.
type QueryResult struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
	Page   int        `json:"page"`
	Limit  int        `json:"limit"`
	Total  int        `json:"total"`
}

// validateTable rejects city and type values that do not follow the naming
// convention. Both values land directly in a file name, so this also keeps request
// parameters from escaping the dataset root.
func validateTable(city, typ string) error {
	if len(city) != 1 || city[0] < 'a' || city[0] > 'z' {
		return fmt.Errorf("city %q: %w", city, ErrBadInput)
	}
	if _, ok := typeMeta[typ]; !ok {
		return fmt.Errorf("type %q: %w", typ, ErrBadInput)
	}
	return nil
}

// clampPaging normalizes page and limit into sane positive bounds.
func clampPaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// Query streams the selected primary table once, applying the keyword,
// district and structural predicates in that order, counting every match and
// keeping only the rows that fall inside the requested page window. Memory
// use is O(limit) regardless of table size.
//
// A table file that does not exist yields an empty result, not an error: the
// city may have no filed transactions of that type, or no dataset has been
// ingested yet.
func (s *Store) Query(ctx context.Context, opts QueryOptions) (*QueryResult, error) {
	if err := validateTable(opts.City, opts.Type); err != nil {
		return nil, err
	}
	page, limit := clampPaging(opts.Page, opts.Limit)

	res := &QueryResult{
		Header: []string{},
		Rows:   [][]string{},
		Page:   page,
		Limit:  limit,
	}

	keyword := strings.ToLower(strings.TrimSpace(opts.Keyword))
	start := (page - 1) * limit

	var addrIdx, distIdx, remarkIdx, subjIdx int
	path := filepath.Join(s.root, tableFile(opts.City, opts.Type))
	err := scanTable(ctx, path,
		func(header []string) {
			res.Header = header
			addrIdx = indexOf(header, colAddress)
			distIdx = indexOf(header, colDistrict)
			remarkIdx = indexOf(header, colRemark)
			subjIdx = indexOf(header, colSubject)
		},
		func(row []string) error {
			if keyword != "" {
				joined := fieldAt(row, addrIdx) + " " + fieldAt(row, distIdx) + " " + fieldAt(row, remarkIdx)
				if !strings.Contains(strings.ToLower(joined), keyword) {
					return nil
				}
			}
			if opts.District != "" && distIdx >= 0 && fieldAt(row, distIdx) != opts.District {
				return nil
			}
			if !matchesSubject(fieldAt(row, subjIdx), subjIdx, opts.IncludeBuilding, opts.IncludeLand) {
				return nil
			}
			res.Total++
			if res.Total > start && len(res.Rows) < limit {
				res.Rows = append(res.Rows, row)
			}
			return nil
		})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return res, nil
		}
		return nil, err
	}
	return res, nil
}

// matchesSubject applies the structural predicate to the transaction subject
// text. Rows mentioning a building (建物) are one class; land-only transfers
// (土地 without 建物) are the other. Tables without a subject column are
// never filtered.
func matchesSubject(subject string, subjIdx int, includeBuilding, includeLand bool) bool {
	if subjIdx < 0 || (includeBuilding && includeLand) {
		return true
	}
	hasBuilding := strings.Contains(subject, "建物")
	landOnly := !hasBuilding && strings.Contains(subject, "土地")
	if hasBuilding && !includeBuilding {
		return false
	}
	if landOnly && !includeLand {
		return false
	}
	return true
}

// DistrictsResult lists the distinct district values of one primary table.
type DistrictsResult struct {
	Header    []string `json:"header"`
	Districts []string `json:"districts"`
}

// zhTW orders district names the way a Taiwanese reader expects.
var zhTW = language.MustParse("zh-Hant")

// Districts scans one primary table and returns its distinct district values
// collated under Traditional Chinese rules. A missing table yields an empty
// list.
func (s *Store) Districts(ctx context.Context, city, typ string) (*DistrictsResult, error) {
	if err := validateTable(city, typ); err != nil {
		return nil, err
	}

	res := &DistrictsResult{Header: []string{}, Districts: []string{}}
	seen := map[string]bool{}

	distIdx := -1
	path := filepath.Join(s.root, tableFile(city, typ))
	err := scanTable(ctx, path,
		func(header []string) {
			res.Header = header
			distIdx = indexOf(header, colDistrict)
		},
		func(row []string) error {
			if d := fieldAt(row, distIdx); d != "" && !seen[d] {
				seen[d] = true
				res.Districts = append(res.Districts, d)
			}
			return nil
		})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return res, nil
		}
		return nil, err
	}

	collate.New(zhTW).SortStrings(res.Districts)
	return res, nil
}

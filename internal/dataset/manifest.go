package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Control and metadata file names inside the dataset root. Both come straight
// from the government archive and are replaced wholesale on every ingest.
const (
	controlFile  = "manifest.csv"
	metadataFile = "build_time.xml"
)

// ChildKind identifies a dependent detail table joined to a primary row.
type ChildKind string

const (
	KindLand  ChildKind = "land"
	KindBuild ChildKind = "build"
	KindPark  ChildKind = "park"
)

// City is one city present in the current dataset.
type City struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// TypeMeta describes one transaction type and the child tables its detail
// view joins against.
type TypeMeta struct {
	Title string      `json:"title"`
	Needs []ChildKind `json:"needs"`
}

// FileSet lists the table files present for one city. The role set is fixed
// by the publishing convention, so it is a struct rather than an open map:
// three primary tables (one per transaction type) and their child tables.
type FileSet struct {
	A      string `json:"a,omitempty"`
	B      string `json:"b,omitempty"`
	C      string `json:"c,omitempty"`
	ALand  string `json:"a_land,omitempty"`
	ABuild string `json:"a_build,omitempty"`
	APark  string `json:"a_park,omitempty"`
	BLand  string `json:"b_land,omitempty"`
	BPark  string `json:"b_park,omitempty"`
	CLand  string `json:"c_land,omitempty"`
	CBuild string `json:"c_build,omitempty"`
	CPark  string `json:"c_park,omitempty"`
}

// Manifest is the derived index of the current dataset: which tables exist
// for which cities, plus the reporting period of the load.
type Manifest struct {
	Period         string              `json:"period"`
	PeriodFriendly string              `json:"periodFriendly"`
	Cities         []City              `json:"cities"`
	Files          map[string]*FileSet `json:"files"`
	Types          map[string]TypeMeta `json:"types"`
}

// cityNames maps the single-letter city codes used in table file names to
// display names. Codes missing here fall back to the code itself.
var cityNames = map[string]string{
	"a": "臺北市", "b": "臺中市", "c": "基隆市", "d": "臺南市", "e": "高雄市",
	"f": "新北市", "g": "宜蘭縣", "h": "桃園市", "i": "嘉義市", "j": "新竹縣",
	"k": "苗栗縣", "m": "南投縣", "n": "彰化縣", "o": "新竹市", "p": "雲林縣",
	"q": "嘉義縣", "t": "屏東縣", "u": "花蓮縣", "v": "臺東縣", "w": "金門縣",
	"x": "澎湖縣", "z": "連江縣",
}

// typeMeta declares the transaction types and which child kinds each one
// joins in the detail view. Presale deeds carry no building table.
var typeMeta = map[string]TypeMeta{
	"a": {Title: "不動產買賣", Needs: []ChildKind{KindLand, KindBuild, KindPark}},
	"b": {Title: "預售屋買賣", Needs: []ChildKind{KindLand, KindPark}},
	"c": {Title: "不動產租賃", Needs: []ChildKind{KindLand, KindBuild, KindPark}},
}

// tableFile returns the primary table file name for a city and type.
func tableFile(city, typ string) string {
	return fmt.Sprintf("%s_lvr_land_%s.csv", city, typ)
}

// childFile returns the child table file name for a city, type and kind.
func childFile(city, typ string, kind ChildKind) string {
	return fmt.Sprintf("%s_lvr_land_%s_%s.csv", city, typ, kind)
}

// buildManifest reads the control file and metadata file under root and
// derives the Manifest. A missing control file means "no dataset yet" and
// yields an empty manifest with a nil error; only real I/O failures are
// reported. Period parsing never fails the build.
func buildManifest(root string) (*Manifest, error) {
	m := &Manifest{
		Cities: []City{},
		Files:  map[string]*FileSet{},
		Types:  typeMeta,
	}
	m.Period = loadPeriod(root)
	m.PeriodFriendly = friendlyPeriod(m.Period)

	raw, err := os.ReadFile(filepath.Join(root, controlFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("read control file: %w", err)
	}

	lines := strings.Split(strings.TrimPrefix(string(raw), "\ufeff"), "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if i == 0 || line == "" {
			// First line is the control file's own header.
			continue
		}
		name := parseLine(line)[0]
		if !strings.HasSuffix(name, ".csv") {
			continue
		}
		code, _, ok := strings.Cut(name, "_")
		if !ok || code == "" {
			continue
		}
		set := m.Files[code]
		if set == nil {
			set = &FileSet{}
		}
		if !set.assign(name) {
			continue
		}
		m.Files[code] = set
	}

	for code := range m.Files {
		name, ok := cityNames[code]
		if !ok {
			name = code
		}
		m.Cities = append(m.Cities, City{Code: code, Name: name})
	}
	sort.Slice(m.Cities, func(i, j int) bool { return m.Cities[i].Code < m.Cities[j].Code })

	return m, nil
}

// assign routes a table file name to its role slot by suffix. Returns false
// for file names outside the naming convention, which are ignored.
func (f *FileSet) assign(name string) bool {
	switch {
	case strings.HasSuffix(name, "_lvr_land_a.csv"):
		f.A = name
	case strings.HasSuffix(name, "_lvr_land_b.csv"):
		f.B = name
	case strings.HasSuffix(name, "_lvr_land_c.csv"):
		f.C = name
	case strings.HasSuffix(name, "_lvr_land_a_land.csv"):
		f.ALand = name
	case strings.HasSuffix(name, "_lvr_land_a_build.csv"):
		f.ABuild = name
	case strings.HasSuffix(name, "_lvr_land_a_park.csv"):
		f.APark = name
	case strings.HasSuffix(name, "_lvr_land_b_land.csv"):
		f.BLand = name
	case strings.HasSuffix(name, "_lvr_land_b_park.csv"):
		f.BPark = name
	case strings.HasSuffix(name, "_lvr_land_c_land.csv"):
		f.CLand = name
	case strings.HasSuffix(name, "_lvr_land_c_build.csv"):
		f.CBuild = name
	case strings.HasSuffix(name, "_lvr_land_c_park.csv"):
		f.CPark = name
	default:
		return false
	}
	return true
}

var periodTag = regexp.MustCompile(`(?s)<lvr_time>(.*?)</lvr_time>`)

// loadPeriod extracts the raw reporting period string from the metadata file.
// Any failure degrades to an empty string; the period is informational and
// must never break manifest building.
func loadPeriod(root string) string {
	raw, err := os.ReadFile(filepath.Join(root, metadataFile))
	if err != nil {
		return ""
	}
	m := periodTag.FindSubmatch(raw)
	if m == nil {
		return ""
	}
	return string(m[1])
}

// periodRange matches one ROC-calendar date range, e.g.
// "登記日期 113年1月1日 至 113年1月31日". The label differs per category.
func periodRange(label string) *regexp.Regexp {
	return regexp.MustCompile(label + `\s*([0-9]{3})年\s*([0-9]{1,2})月\s*([0-9]{1,2})日\s*至\s*([0-9]{3})年\s*([0-9]{1,2})月\s*([0-9]{1,2})日`)
}

var (
	salePeriod    = periodRange("登記日期")
	rentPeriod    = periodRange("訂約日期")
	presalePeriod = periodRange("交易日期")
)

// friendlyPeriod turns the raw period text into a compact per-category label.
// If no category parses, the raw text is returned verbatim so nothing is
// lost on format drift.
func friendlyPeriod(text string) string {
	if text == "" {
		return ""
	}
	var parts []string
	for _, c := range []struct {
		label string
		rx    *regexp.Regexp
	}{
		{"買賣", salePeriod},
		{"租賃", rentPeriod},
		{"預售", presalePeriod},
	} {
		m := c.rx.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%s/%s/%s–%s/%s/%s",
			c.label, m[1], pad2(m[2]), pad2(m[3]), m[4], pad2(m[5]), pad2(m[6])))
	}
	if len(parts) == 0 {
		return text
	}
	return strings.Join(parts, "｜")
}

// pad2 left-pads a one-digit month or day with a zero.
func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

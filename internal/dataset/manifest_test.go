package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePeriod = "本期登載資料：買賣案件 登記日期 113年1月1日 至 113年1月31日；" +
	"租賃案件 訂約日期 113年1月1日 至 113年1月31日；" +
	"預售屋案件 交易日期 113年1月1日 至 113年1月31日"

// writeControl writes a manifest.csv listing the given table file names.
func writeControl(t *testing.T, root string, names ...string) {
	t.Helper()
	content := "name\n"
	for _, n := range names {
		content += n + "\n"
	}
	if err := os.WriteFile(filepath.Join(root, controlFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write control file: %v", err)
	}
}

func writeMetadata(t *testing.T, root, period string) {
	t.Helper()
	xml := "<?xml version=\"1.0\"?><lvr><lvr_time>" + period + "</lvr_time></lvr>"
	if err := os.WriteFile(filepath.Join(root, metadataFile), []byte(xml), 0o644); err != nil {
		t.Fatalf("write metadata file: %v", err)
	}
}

func TestBuildManifest(t *testing.T) {
	t.Run("empty root yields empty manifest", func(t *testing.T) {
		m, err := buildManifest(t.TempDir())
		if err != nil {
			t.Fatalf("buildManifest: %v", err)
		}
		if len(m.Cities) != 0 || len(m.Files) != 0 {
			t.Errorf("cities = %d files = %d, want 0/0", len(m.Cities), len(m.Files))
		}
		if m.Period != "" || m.PeriodFriendly != "" {
			t.Errorf("period = %q / %q, want empty", m.Period, m.PeriodFriendly)
		}
	})

	t.Run("roles assigned by suffix", func(t *testing.T) {
		root := t.TempDir()
		writeControl(t, root,
			"a_lvr_land_a.csv",
			"a_lvr_land_a_land.csv",
			"a_lvr_land_a_build.csv",
			"a_lvr_land_a_park.csv",
			"f_lvr_land_b.csv",
			"f_lvr_land_b_park.csv",
			"f_lvr_land_c_build.csv",
		)
		m, err := buildManifest(root)
		if err != nil {
			t.Fatalf("buildManifest: %v", err)
		}

		a := m.Files["a"]
		if a == nil || a.A != "a_lvr_land_a.csv" || a.ALand != "a_lvr_land_a_land.csv" ||
			a.ABuild != "a_lvr_land_a_build.csv" || a.APark != "a_lvr_land_a_park.csv" {
			t.Errorf("city a file set = %+v", a)
		}
		f := m.Files["f"]
		if f == nil || f.B != "f_lvr_land_b.csv" || f.BPark != "f_lvr_land_b_park.csv" || f.CBuild != "f_lvr_land_c_build.csv" {
			t.Errorf("city f file set = %+v", f)
		}

		if len(m.Cities) != 2 {
			t.Fatalf("cities = %v", m.Cities)
		}
		// Sorted by code, with friendly names resolved.
		if m.Cities[0].Code != "a" || m.Cities[0].Name != "臺北市" {
			t.Errorf("cities[0] = %+v", m.Cities[0])
		}
		if m.Cities[1].Code != "f" || m.Cities[1].Name != "新北市" {
			t.Errorf("cities[1] = %+v", m.Cities[1])
		}
	})

	t.Run("unknown file names ignored", func(t *testing.T) {
		root := t.TempDir()
		writeControl(t, root,
			"readme.txt",
			"a_lvr_land_x.csv",
			"weird.csv",
			"a_lvr_land_a.csv",
		)
		m, err := buildManifest(root)
		if err != nil {
			t.Fatalf("buildManifest: %v", err)
		}
		if len(m.Files) != 1 || m.Files["a"].A != "a_lvr_land_a.csv" {
			t.Errorf("files = %+v", m.Files)
		}
	})

	t.Run("unknown city code falls back to the code", func(t *testing.T) {
		root := t.TempDir()
		writeControl(t, root, "y_lvr_land_a.csv")
		m, err := buildManifest(root)
		if err != nil {
			t.Fatalf("buildManifest: %v", err)
		}
		if len(m.Cities) != 1 || m.Cities[0].Name != "y" {
			t.Errorf("cities = %+v", m.Cities)
		}
	})

	t.Run("type metadata is exposed", func(t *testing.T) {
		m, err := buildManifest(t.TempDir())
		if err != nil {
			t.Fatalf("buildManifest: %v", err)
		}
		if m.Types["a"].Title != "不動產買賣" || len(m.Types["a"].Needs) != 3 {
			t.Errorf("types[a] = %+v", m.Types["a"])
		}
		if len(m.Types["b"].Needs) != 2 {
			t.Errorf("presale must not declare a build child: %+v", m.Types["b"])
		}
	})

	t.Run("period from metadata file", func(t *testing.T) {
		root := t.TempDir()
		writeMetadata(t, root, samplePeriod)
		m, err := buildManifest(root)
		if err != nil {
			t.Fatalf("buildManifest: %v", err)
		}
		if m.Period != samplePeriod {
			t.Errorf("period = %q", m.Period)
		}
		want := "買賣:113/01/01–113/01/31｜租賃:113/01/01–113/01/31｜預售:113/01/01–113/01/31"
		if m.PeriodFriendly != want {
			t.Errorf("periodFriendly = %q, want %q", m.PeriodFriendly, want)
		}
	})
}

func TestFriendlyPeriod(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty stays empty",
			in:   "",
			want: "",
		},
		{
			name: "unparseable text survives verbatim",
			in:   "資料期間不詳",
			want: "資料期間不詳",
		},
		{
			name: "single category",
			in:   "登記日期 112年11月21日 至 112年11月30日",
			want: "買賣:112/11/21–112/11/30",
		},
		{
			name: "one-digit month and day are padded",
			in:   "訂約日期113年2月1日至113年2月9日",
			want: "租賃:113/02/01–113/02/09",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := friendlyPeriod(tt.in); got != tt.want {
				t.Errorf("friendlyPeriod(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestManifestCaching(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root, 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	m1, err := store.Manifest()
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if len(m1.Cities) != 0 {
		t.Fatalf("cities = %v, want none", m1.Cities)
	}

	// Without invalidation the cached value is served.
	writeControl(t, root, "a_lvr_land_a.csv")
	m2, err := store.Manifest()
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if len(m2.Cities) != 0 {
		t.Errorf("cache bypassed: %v", m2.Cities)
	}

	store.invalidate()
	m3, err := store.Manifest()
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if len(m3.Cities) != 1 {
		t.Errorf("cities after invalidate = %v", m3.Cities)
	}
}

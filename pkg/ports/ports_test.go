package ports

import "testing"

func TestTop100_Sorted(t *testing.T) {
	for i := 1; i < len(Top100); i++ {
		if Top100[i] <= Top100[i-1] {
			t.Errorf("ports not sorted: %d at index %d <= %d at index %d", Top100[i], i, Top100[i-1], i-1)
		}
	}
}

func TestTop100_NoDuplicates(t *testing.T) {
	seen := make(map[int]bool)
	for _, p := range Top100 {
		if seen[p] {
			t.Errorf("duplicate port: %d", p)
		}
		seen[p] = true
	}
}

func TestTop100_ValidRange(t *testing.T) {
	for _, p := range Top100 {
		if p < 1 || p > 65535 {
			t.Errorf("port %d out of range", p)
		}
	}
}

func TestTop100_HasCommonPorts(t *testing.T) {
	commonPorts := []int{22, 80, 443, 3306, 5432, 8080, 8443}
	portSet := make(map[int]bool)
	for _, p := range Top100 {
		portSet[p] = true
	}

	for _, p := range commonPorts {
		if !portSet[p] {
			t.Errorf("missing common port: %d", p)
		}
	}
}

func TestCommon_Sorted(t *testing.T) {
	for i := 1; i < len(Common); i++ {
		if Common[i] <= Common[i-1] {
			t.Errorf("ports not sorted: %d after %d", Common[i], Common[i-1])
		}
	}
	if len(Common) != 21 {
		t.Errorf("len(Common) = %d, want 21", len(Common))
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "80", want: []int{80}},
		{in: "443, 80,80", want: []int{80, 443}},
		{in: "8000-8003,22", want: []int{22, 8000, 8001, 8002, 8003}},
		{in: "1-1", want: []int{1}},
		{in: "0", wantErr: true},
		{in: "65536", wantErr: true},
		{in: "90-80", wantErr: true},
		{in: "http", wantErr: true},
		{in: ",", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
				}
			}
		})
	}
}

func TestParse_NamedSets(t *testing.T) {
	common, err := Parse("")
	if err != nil || len(common) != len(Common) {
		t.Fatalf("Parse(\"\") = %v, %v", common, err)
	}
	top, err := Parse("TOP100")
	if err != nil || len(top) != len(Top100) {
		t.Fatalf("Parse(top100) = %v, %v", top, err)
	}
	top[0] = -1
	if Top100[0] == -1 {
		t.Fatal("Parse returned the shared Top100 slice")
	}
}

func TestParse_FullRange(t *testing.T) {
	all, err := Parse("1-65535")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 65535 {
		t.Errorf("len = %d, want 65535", len(all))
	}
}

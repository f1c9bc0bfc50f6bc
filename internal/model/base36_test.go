package model

import "testing"

// TestIDFromBase36 はbase36復号を検証する。
func TestIDFromBase36(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "1桁", input: "z", want: 35},
		{name: "複数桁", input: "9ix", want: 12345},
		{name: "大文字も受け付ける", input: "9IX", want: 12345},
		{name: "ゼロ", input: "0", want: 0},
		{name: "空文字列はエラー", input: "", wantErr: true},
		{name: "不正な文字はエラー", input: "ab-c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IDFromBase36(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("IDFromBase36(%q) のエラーが nil です", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("IDFromBase36(%q) のエラー: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("IDFromBase36(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// TestBase36FromID はbase36符号化を検証する。
func TestBase36FromID(t *testing.T) {
	tests := []struct {
		name  string
		input int64
		want  string
	}{
		{name: "ゼロ", input: 0, want: "0"},
		{name: "1桁", input: 35, want: "z"},
		{name: "複数桁", input: 12345, want: "9ix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Base36FromID(tt.input); got != tt.want {
				t.Errorf("Base36FromID(%d) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestBase36RoundTrip は符号化と復号の往復一致を検証する。
func TestBase36RoundTrip(t *testing.T) {
	for _, id := range []int64{1, 36, 790677560, 123456789012} {
		s := Base36FromID(id)
		back, err := IDFromBase36(s)
		if err != nil {
			t.Fatalf("IDFromBase36(%q) のエラー: %v", s, err)
		}
		if back != id {
			t.Errorf("往復結果が一致しません: %d → %q → %d", id, s, back)
		}
	}
}

package clipboard

import "testing"

func TestParseShortcut(t *testing.T) {
	tests := []struct {
		spec    string
		want    Shortcut
		wantErr bool
	}{
		{"ctrl+v", Shortcut{Ctrl: true, Key: "v"}, false},
		{"Ctrl+Shift+V", Shortcut{Ctrl: true, Shift: true, Key: "v"}, false},
		{"cmd+v", Shortcut{Super: true, Key: "v"}, false},
		{"ctrl+", Shortcut{}, true},
		{"ctrl+shift", Shortcut{}, true},
		{"ctrl+v+x", Shortcut{}, true},
		{"ctrl+q", Shortcut{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseShortcut(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPlatformDefaults(t *testing.T) {
	if got := platformShortcut("darwin").String(); got != "cmd+v" {
		t.Errorf("darwin shortcut = %s", got)
	}
	if got := platformShortcut("linux").String(); got != "ctrl+v" {
		t.Errorf("linux shortcut = %s", got)
	}
	if len(defaultOverrides("darwin")) != 0 {
		t.Error("darwin should have no terminal overrides")
	}
}

func TestParseOverridesReplacesBase(t *testing.T) {
	out, err := ParseOverrides(defaultOverrides("linux"), map[string]string{"Kitty": "ctrl+v"})
	if err != nil {
		t.Fatal(err)
	}
	got := resolve(out, App{Process: "kitty"}, Shortcut{Key: "v"})
	if got.String() != "ctrl+v" {
		t.Fatalf("kitty resolved to %s, want ctrl+v", got)
	}

	if _, err := ParseOverrides(nil, map[string]string{"kitty": "hyper"}); err == nil {
		t.Fatal("expected error for bad shortcut")
	}
}

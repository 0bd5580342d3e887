package policy

import (
	"reflect"
	"testing"
)

func TestClassify_NoMatches(t *testing.T) {
	p := New([]string{".lnk", ".exe"}, nil)

	verdict := p.Classify([]string{"Show.S01E01.mkv", "Show.S01E01.nfo"})

	if verdict.Blocked {
		t.Error("expected clean verdict")
	}
	if len(verdict.MatchedFiles) != 0 {
		t.Errorf("expected no matched files, got %v", verdict.MatchedFiles)
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	p := New([]string{".LNK"}, nil)

	verdict := p.Classify([]string{"shortcut.Lnk"})

	if !verdict.Blocked {
		t.Fatal("expected blocked verdict")
	}
	if !reflect.DeepEqual(verdict.MatchedExtensions, []string{".lnk"}) {
		t.Errorf("expected [.lnk], got %v", verdict.MatchedExtensions)
	}
}

func TestClassify_NormalizesMissingDot(t *testing.T) {
	p := New([]string{"exe"}, nil)

	verdict := p.Classify([]string{"setup.exe"})

	if !verdict.Blocked {
		t.Error("expected blocked verdict for normalized extension")
	}
}

func TestClassify_AllowOverridesBlock(t *testing.T) {
	p := New([]string{".exe", ".lnk"}, []string{".exe"})

	verdict := p.Classify([]string{"setup.exe", "shortcut.lnk"})

	if !verdict.Blocked {
		t.Fatal("expected blocked verdict from the .lnk file")
	}
	if !reflect.DeepEqual(verdict.MatchedFiles, []string{"shortcut.lnk"}) {
		t.Errorf("expected only shortcut.lnk matched, got %v", verdict.MatchedFiles)
	}
}

func TestClassify_FullyAllowed(t *testing.T) {
	p := New([]string{".exe"}, []string{".exe"})

	verdict := p.Classify([]string{"setup.exe"})

	if verdict.Blocked {
		t.Error("allow list must win over block list")
	}
}

func TestClassify_NoExtension(t *testing.T) {
	p := New([]string{".exe"}, nil)

	verdict := p.Classify([]string{"README", "Makefile"})

	if verdict.Blocked {
		t.Error("files without extensions must never match")
	}
}

func TestClassify_MatchedOrder(t *testing.T) {
	p := New([]string{".exe", ".lnk"}, nil)

	verdict := p.Classify([]string{"a.lnk", "b.exe", "c.lnk"})

	if !reflect.DeepEqual(verdict.MatchedExtensions, []string{".lnk", ".exe"}) {
		t.Errorf("expected extensions in first-occurrence order, got %v", verdict.MatchedExtensions)
	}
	if !reflect.DeepEqual(verdict.MatchedFiles, []string{"a.lnk", "b.exe", "c.lnk"}) {
		t.Errorf("expected all matches in manifest order, got %v", verdict.MatchedFiles)
	}
}

func TestClassify_DotfileCountsAsExtension(t *testing.T) {
	p := New([]string{".exe"}, nil)

	verdict := p.Classify([]string{"dir/archive.tar.exe"})

	if !verdict.Blocked {
		t.Error("only the final extension segment decides")
	}
}

func TestExt(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Show.S01E01.MKV", ".mkv"},
		{"noext", ""},
		{"path/to/file.Exe", ".exe"},
		{"archive.tar.gz", ".gz"},
	}
	for _, tt := range tests {
		if got := Ext(tt.name); got != tt.want {
			t.Errorf("Ext(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

package httpapi

import "testing"

func TestResolvePathRejectsTraversal(t *testing.T) {
	s := &Server{mediaRoot: "/media"}

	cases := []struct {
		relative string
		wantOK   bool
	}{
		{"movie.mkv", true},
		{"shows/season1/e01.mkv", true},
		{"../etc/passwd", false},
		{"../../etc/passwd", false},
		{"/../../etc/passwd", false},
		{"shows/../../etc/passwd", false},
	}

	for _, c := range cases {
		path, ok := s.resolvePath(c.relative)
		if ok != c.wantOK {
			t.Errorf("resolvePath(%q) ok = %v, want %v (resolved %q)", c.relative, ok, c.wantOK, path)
		}
		if ok && path == "" {
			t.Errorf("resolvePath(%q) returned ok=true with empty path", c.relative)
		}
	}
}

func TestResolvePathStaysWithinRoot(t *testing.T) {
	s := &Server{mediaRoot: "/media"}
	path, ok := s.resolvePath("shows/e01.mkv")
	if !ok {
		t.Fatalf("expected ok for a normal relative path")
	}
	want := "/media/shows/e01.mkv"
	if path != want {
		t.Fatalf("resolvePath = %q, want %q", path, want)
	}
}

// internal/route/route_test.go
package route

import (
	"testing"

	"github.com/user/studychat/internal/types"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		path    string
		want    Route
		wantErr bool
	}{
		{"/chat/self-analysis", Route{Category: types.CategorySelfAnalysis}, false},
		{"/chat/self-analysis/abc", Route{Category: types.CategorySelfAnalysis, SessionID: "abc"}, false},
		{"/chat/study-support/xyz", Route{Category: types.CategoryStudySupport, SessionID: "xyz"}, false},
		{"/chat/faq/", Route{Category: types.CategoryFAQ}, false},
		{"/chat/not-a-category", Route{}, true},
		{"/billing/plans", Route{}, true},
		{"/", Route{}, true},
	}
	for _, tt := range tests {
		got, err := ParsePath(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePath(%q) = %+v, want %+v", tt.path, got, tt.want)
		}
	}
}

func TestPathRoundTrip(t *testing.T) {
	routes := []Route{
		{Category: types.CategoryGeneral},
		{Category: types.CategorySelfAnalysis, SessionID: "abc"},
	}
	for _, r := range routes {
		parsed, err := ParsePath(r.Path())
		if err != nil {
			t.Fatalf("ParsePath(%q): %v", r.Path(), err)
		}
		if parsed != r {
			t.Errorf("round trip %+v -> %q -> %+v", r, r.Path(), parsed)
		}
	}
}

func TestHistoryReplaceDoesNotGrow(t *testing.T) {
	h := NewHistory(Route{Category: types.CategoryGeneral})
	h.Push(Route{Category: types.CategoryAdmission})
	if h.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", h.Len())
	}

	h.Replace(Route{Category: types.CategoryAdmission, SessionID: "abc"})
	if h.Len() != 2 {
		t.Errorf("Replace must not add an entry, got %d", h.Len())
	}
	if h.Current().SessionID != "abc" {
		t.Errorf("unexpected current route: %+v", h.Current())
	}
}

package models

import "testing"

func TestPersonIsValid(t *testing.T) {
	cases := []struct {
		name string
		p    Person
		want bool
	}{
		{"email only", Person{Name: "A", Email: "a@x.fr"}, true},
		{"psid only", Person{Name: "B", PSID: "psid-1"}, true},
		{"both", Person{Name: "C", Email: "c@x.fr", PSID: "psid-2"}, true},
		{"neither", Person{Name: "D"}, false},
		{"whitespace only", Person{Name: "E", Email: "   ", PSID: " "}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.IsValid(); got != tc.want {
				t.Fatalf("IsValid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Jean.Dupont@Example.COM "); got != "jean.dupont@example.com" {
		t.Fatalf("got %q", got)
	}
}

func TestFormURL(t *testing.T) {
	f := Form{GoogleFormID: "abc123"}
	want := "https://docs.google.com/forms/d/abc123/viewform"
	if got := f.URL(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormStatsResponseRate(t *testing.T) {
	if got := (FormStats{Total: 4, Responded: 1}).ResponseRate(); got != 25 {
		t.Fatalf("got %v, want 25", got)
	}
	// empty form must not divide by zero
	if got := (FormStats{}).ResponseRate(); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestSyncStatsAdd(t *testing.T) {
	s := SyncStats{Updated: 1, Created: 2, Errors: 3, FailedForms: 4}
	s.Add(SyncStats{Updated: 10, Created: 20, Errors: 30, FailedForms: 40})
	if s.Updated != 11 || s.Created != 22 || s.Errors != 33 || s.FailedForms != 44 {
		t.Fatalf("unexpected sum: %+v", s)
	}
}

package roster

import "testing"

func TestNewDeduplicates(t *testing.T) {
	r := New([]Member{
		{ID: "s1", Name: "Jana Novakova"},
		{ID: "s2", Name: "Petr Svoboda"},
		{ID: "s1", Name: "Duplicate Entry"},
	})

	if r.Size() != 2 {
		t.Fatalf("expected 2 members, got %d", r.Size())
	}
	m, ok := r.Lookup("s1")
	if !ok || m.Name != "Jana Novakova" {
		t.Errorf("first occurrence should win, got %+v", m)
	}
}

func TestIDsPreserveOrder(t *testing.T) {
	r := New([]Member{{ID: "c"}, {ID: "a"}, {ID: "b"}})

	ids := r.IDs()
	want := []string{"c", "a", "b"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids)
		}
	}
}

func TestContains(t *testing.T) {
	r := New([]Member{{ID: "s1"}})
	if !r.Contains("s1") {
		t.Error("expected s1 on roster")
	}
	if r.Contains("s9") {
		t.Error("s9 should not be on roster")
	}
}

func TestMembersReturnsCopy(t *testing.T) {
	r := New([]Member{{ID: "s1", Name: "Jana"}})
	got := r.Members()
	got[0].Name = "changed"
	if m, _ := r.Lookup("s1"); m.Name != "Jana" {
		t.Error("mutating the returned slice must not change the roster")
	}
}

func TestNormalizePersonName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jiří Novák", "jiri novak"},
		{"Anna-Marie Černá", "anna marie cerna"},
		{"PETR", "petr"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizePersonName(tt.in); got != tt.want {
			t.Errorf("NormalizePersonName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFindByName(t *testing.T) {
	r := New([]Member{
		{ID: "s1", Name: "Jiří Novák"},
		{ID: "s2", Name: "Anna-Marie Černá"},
	})

	m, ok := r.FindByName("jiri novak")
	if !ok || m.ID != "s1" {
		t.Errorf("expected s1, got %+v (ok=%v)", m, ok)
	}

	m, ok = r.FindByName("Anna Marie Cerna")
	if !ok || m.ID != "s2" {
		t.Errorf("expected s2, got %+v (ok=%v)", m, ok)
	}

	if _, ok := r.FindByName("nobody"); ok {
		t.Error("unexpected match for unknown name")
	}
}

package portfolio

import "testing"

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "two names", in: "Priya Verma", want: "PV"},
		{name: "three names", in: "Asha de Souza", want: "ADS"},
		{name: "extra whitespace", in: "  James   Wong ", want: "JW"},
		{name: "empty", in: "", want: ""},
		{name: "lowercase", in: "samir khan", want: "SK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Initials(tt.in); got != tt.want {
				t.Errorf("Initials(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSIAUpsertRecomputesInitials(t *testing.T) {
	l := NewSIAList()

	sia := l.Upsert(SIA{Specialty: "Cornea", Level: "2", SupervisorName: "Priya Verma"})
	if sia.SupervisorInitials != "PV" {
		t.Errorf("expected initials PV, got %q", sia.SupervisorInitials)
	}

	sia.SupervisorName = "Samir Khan"
	updated := l.Upsert(sia)
	if updated.SupervisorInitials != "SK" {
		t.Errorf("initials not recomputed on update, got %q", updated.SupervisorInitials)
	}
	if len(l.Items()) != 1 {
		t.Errorf("update should not add a record, have %d", len(l.Items()))
	}
}

func TestSIARemoveAbsentIsNoOp(t *testing.T) {
	l := NewSIAList()
	l.Upsert(SIA{Specialty: "Glaucoma", Level: "1"})

	l.Remove("sia-99")
	if len(l.Items()) != 1 {
		t.Errorf("removing an absent id should not mutate the list, have %d", len(l.Items()))
	}
}

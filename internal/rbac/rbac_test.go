package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "trainee read", role: RoleTrainee, action: ActionRead, allow: true},
		{name: "trainee write", role: RoleTrainee, action: ActionWrite, allow: true},
		{name: "trainee signoff", role: RoleTrainee, action: ActionSignOff, allow: false},
		{name: "supervisor read", role: RoleSupervisor, action: ActionRead, allow: true},
		{name: "supervisor signoff", role: RoleSupervisor, action: ActionSignOff, allow: true},
		{name: "supervisor write", role: RoleSupervisor, action: ActionWrite, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		input    string
		expected Role
	}{
		{"trainee", RoleTrainee},
		{"supervisor", RoleSupervisor},
		{"admin", RoleAdmin},
		{"", RoleTrainee},
		{"editor", RoleTrainee},
	}
	for _, tc := range cases {
		if got := Normalize(tc.input); got != tc.expected {
			t.Errorf("Normalize(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

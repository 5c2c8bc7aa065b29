package model

import "testing"

func TestRoleMappingIsTotal(t *testing.T) {
	cases := []struct {
		stored Role
		api    string
	}{
		{RoleUser, "user"},
		{RoleAgent, "assistant"},
	}

	for _, tc := range cases {
		if got := tc.stored.APIRole(); got != tc.api {
			t.Errorf("APIRole(%q) = %q, want %q", tc.stored, got, tc.api)
		}
		if got := RoleFromAPI(tc.api); got != tc.stored {
			t.Errorf("RoleFromAPI(%q) = %q, want %q", tc.api, got, tc.stored)
		}
	}
}

func TestRoleRoundTrip(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAgent} {
		if got := RoleFromAPI(r.APIRole()); got != r {
			t.Errorf("round trip of %q yielded %q", r, got)
		}
	}
}

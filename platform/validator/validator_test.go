package validator

import "testing"

func TestIdentityTag(t *testing.T) {
	val := New()

	valid := []string{"R1", "rm.jansen", "P-0042", "svc_unassigned", "a@b"}
	for _, v := range valid {
		if err := val.Var(v, "identity"); err != nil {
			t.Errorf("expected %q to be a valid identity: %v", v, err)
		}
	}

	invalid := []string{"", "two words", "tab\tbed", string(make([]byte, 65))}
	for _, v := range invalid {
		if err := val.Var(v, "identity"); err == nil {
			t.Errorf("expected %q to be rejected", v)
		}
	}
}

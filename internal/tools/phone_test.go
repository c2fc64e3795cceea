package tools

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"89161234567", "+79161234567"},
		{"79161234567", "+79161234567"},
		{"9161234567", "+79161234567"},
		{"+7 (916) 123-45-67", "+79161234567"},
		{"8 916 123 45 67", "+79161234567"},
		{"+79161234567", "+79161234567"},
		{"12345", ""},
		{"", ""},
		{"not a phone", ""},
		{"591612345678", ""}, // 12 digits
		{"19161234567", ""},  // 11 digits, wrong lead
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			if got := NormalizePhone(c.in); got != c.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{
		"89161234567", "9161234567", "+7 (916) 123-45-67", "79161234567",
	}
	for _, in := range inputs {
		once := NormalizePhone(in)
		if once == "" {
			t.Fatalf("expected %q to normalize", in)
		}
		if twice := NormalizePhone(once); twice != once {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

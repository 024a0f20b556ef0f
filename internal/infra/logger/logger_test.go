package logger

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := []struct{ in, want string }{
		{"zhang.wei@hospital.example", "zha***@hospital.example"},
		{"ab@x.io", "ab***@x.io"},
		{"not-an-email", "***"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := MaskEmail(tc.in); got != tc.want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskIDCard(t *testing.T) {
	cases := []struct{ in, want string }{
		{"110101199003072316", "11***16"},
		{"1234", "***"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := MaskIDCard(tc.in); got != tc.want {
			t.Fatalf("MaskIDCard(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskIP(t *testing.T) {
	if got := MaskIP("10.1.2.3"); got != "10.1.*.*" {
		t.Fatalf("MaskIP ipv4 = %q", got)
	}
	if got := MaskIP("2001:db8:1:2:3:4:5:6"); got != "2001:db8:1:2:*:*:*:*" {
		t.Fatalf("MaskIP ipv6 = %q", got)
	}
}

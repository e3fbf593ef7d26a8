package fetcher

import (
	"errors"
	"net"
	"testing"
)

func TestValidateURL(t *testing.T) {
	orig := lookupIP
	t.Cleanup(func() { lookupIP = orig })
	lookupIP = func(host string) ([]net.IP, error) {
		switch host {
		case "opendart.fss.or.kr":
			return []net.IP{net.ParseIP("211.252.42.10")}, nil
		case "internal.corp":
			return []net.IP{net.ParseIP("10.0.0.8")}, nil
		}
		return nil, errors.New("no such host")
	}

	tests := []struct {
		name    string
		raw     string
		deny    bool
		wantErr error
	}{
		{name: "public https", raw: "https://opendart.fss.or.kr/api/list.json", deny: true},
		{name: "private allowed when not denied", raw: "http://internal.corp/api", deny: false},
		{name: "private denied", raw: "http://internal.corp/api", deny: true, wantErr: ErrPrivateIP},
		{name: "loopback literal denied", raw: "http://127.0.0.1:8080/x", deny: true, wantErr: ErrPrivateIP},
		{name: "bad scheme", raw: "file:///etc/passwd", wantErr: ErrInvalidURL},
		{name: "empty host", raw: "https:///path", wantErr: ErrInvalidURL},
		{name: "unresolvable", raw: "https://nowhere.invalid", deny: true, wantErr: ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateURL(tt.raw, tt.deny)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.1.1", "::1", "fc00::1", "fe80::1"}
	for _, s := range private {
		if !isPrivateIP(net.ParseIP(s)) {
			t.Errorf("%s should be private", s)
		}
	}
	for _, s := range []string{"8.8.8.8", "211.252.42.10", "2001:4860:4860::8888"} {
		if isPrivateIP(net.ParseIP(s)) {
			t.Errorf("%s should be public", s)
		}
	}
}

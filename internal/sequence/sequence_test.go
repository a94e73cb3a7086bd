package sequence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNext(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"TG-0000001", "TG-0000002"},
		{"TG-0000009", "TG-0000010"},
		{"TG-9999999", "TG-10000000"},
		{"TG-10000000", "TG-10000001"},
		{"A-B-0000041", "A-B-0000042"},
		{"TG-1", "TG-0000002"},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Next(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNext_Malformed(t *testing.T) {
	for _, in := range []string{"", "TG", "TG-", "-0000001", "TG-00A1", "TG0000001", "TG-99999999999999999999999"} {
		_, err := Next(in)
		assert.ErrorIs(t, err, ErrMalformedToken, in)
	}
}

func TestNext_StrictlyIncreasing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Uint64Range(0, 1<<40).Draw(t, "n")
		prefix := rapid.StringMatching(`[A-Z]{1,4}`).Draw(t, "prefix")

		token := Format(prefix, n)
		next, err := Next(token)
		if err != nil {
			t.Fatalf("next(%s): %v", token, err)
		}

		p, m, err := Parse(next)
		if err != nil {
			t.Fatalf("parse(%s): %v", next, err)
		}
		if p != prefix {
			t.Fatalf("prefix changed: %s -> %s", prefix, p)
		}
		if m != n+1 {
			t.Fatalf("expected counter %d, got %d", n+1, m)
		}
		if len(next) < len(prefix)+1+Width {
			t.Fatalf("token %s shorter than padded width", next)
		}
	})
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "TG-0000000", Format("TG", 0))
	assert.Equal(t, fmt.Sprintf("TG-%d", 123456789), Format("TG", 123456789))
}

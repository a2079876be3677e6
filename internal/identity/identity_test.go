package identity

import (
	"errors"
	"testing"
)

func TestNextToken(t *testing.T) {
	tests := []struct {
		name    string
		last    string
		want    string
		wantErr error
	}{
		{
			name: "first token",
			last: "",
			want: "A1",
		},
		{
			name: "simple increment",
			last: "A1",
			want: "A2",
		},
		{
			name: "four digit increment",
			last: "A137",
			want: "A138",
		},
		{
			name: "letter rollover",
			last: "A9999",
			want: "B1",
		},
		{
			name: "mid alphabet rollover",
			last: "M9999",
			want: "N1",
		},
		{
			name:    "capacity exhausted",
			last:    "Z9999",
			wantErr: ErrCapacityExhausted,
		},
		{
			name:    "malformed token",
			last:    "7A",
			wantErr: ErrMalformedToken,
		},
		{
			name:    "lowercase letter",
			last:    "a15",
			wantErr: ErrMalformedToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextToken(tt.last)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NextToken(%q) error = %v, want %v", tt.last, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NextToken(%q) error = %v", tt.last, err)
			}
			if got != tt.want {
				t.Fatalf("NextToken(%q) = %q, want %q", tt.last, got, tt.want)
			}
		})
	}
}

func TestNextTokenSequenceFromEmpty(t *testing.T) {
	last := ""
	for i := 1; i <= maxNumber; i++ {
		token, err := NextToken(last)
		if err != nil {
			t.Fatalf("NextToken(%q) error = %v", last, err)
		}
		last = token
	}

	if last != "A9999" {
		t.Fatalf("last token of first series = %q, want A9999", last)
	}

	token, err := NextToken(last)
	if err != nil {
		t.Fatalf("NextToken(A9999) error = %v", err)
	}
	if token != "B1" {
		t.Fatalf("NextToken(A9999) = %q, want B1", token)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		wantLetter byte
		wantNumber int
		wantErr    bool
	}{
		{
			name:       "minimal",
			token:      "A1",
			wantLetter: 'A',
			wantNumber: 1,
		},
		{
			name:       "maximal",
			token:      "Z9999",
			wantLetter: 'Z',
			wantNumber: 9999,
		},
		{
			name:    "leading zero",
			token:   "A01",
			wantErr: true,
		},
		{
			name:    "number out of range",
			token:   "A10000",
			wantErr: true,
		},
		{
			name:    "no number",
			token:   "A",
			wantErr: true,
		},
		{
			name:    "letters in number",
			token:   "A1B2",
			wantErr: true,
		},
		{
			name:    "empty",
			token:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			letter, number, err := Parse(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedToken) {
					t.Fatalf("Parse(%q) error = %v, want ErrMalformedToken", tt.token, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.token, err)
			}
			if letter != tt.wantLetter || number != tt.wantNumber {
				t.Fatalf("Parse(%q) = (%c, %d), want (%c, %d)", tt.token, letter, number, tt.wantLetter, tt.wantNumber)
			}
		})
	}
}

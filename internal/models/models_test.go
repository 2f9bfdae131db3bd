package models

import "testing"

func TestFirstName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Sam Smith", "Sam"},
		{"Cher", "Cher"},
		{"Mary Jane Watson", "Mary"},
		{"", ""},
	}
	for _, tt := range tests {
		u := User{Name: tt.name}
		if got := u.FirstName(); got != tt.want {
			t.Errorf("FirstName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPronoun(t *testing.T) {
	tests := []struct {
		gender string
		want   string
	}{
		{"Male", "He"},
		{"Female", "She"},
		{"Nonbinary", "They"},
		{"", "They"},
	}
	for _, tt := range tests {
		u := User{Gender: tt.gender}
		if got := u.Pronoun(); got != tt.want {
			t.Errorf("Pronoun(%q) = %q, want %q", tt.gender, got, tt.want)
		}
	}
}

func TestOperatorSentinel(t *testing.T) {
	op := Operator()
	if op.UID != OperatorUID {
		t.Errorf("Operator().UID = %q, want %q", op.UID, OperatorUID)
	}
	if op.Phone != "" {
		t.Errorf("Operator() must not have a phone, got %q", op.Phone)
	}
}

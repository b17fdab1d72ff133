package utils

import (
	"errors"
	"testing"
)

func TestParseDateEquivalentForms(t *testing.T) {
	forms := []string{"2024-03-05", "2024-3-5", "2024/03/05", "20240305", "2024-03-05T10:00:00Z", " 2024-03-05 "}
	for _, form := range forms {
		d, err := ParseDate(form)
		if err != nil {
			t.Fatalf("ParseDate(%q) returned error: %v", form, err)
		}
		if d.String() != "2024-03-05" {
			t.Fatalf("ParseDate(%q) = %s, want 2024-03-05", form, d)
		}
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, form := range []string{"", "yesterday", "2024-13-01", "05/03/2024x"} {
		if _, err := ParseDate(form); err == nil {
			t.Fatalf("expected error for %q", form)
		}
	}
}

func TestParseEventTime(t *testing.T) {
	cases := map[string]string{
		`"2024-03-05T10:00:00Z"`:        "2024-03-05T10:00:00Z",
		`"2024-03-05T10:00:00.5+01:00"`: "2024-03-05T09:00:00.5Z",
		`1709632800000`:                 "2024-03-05T10:00:00Z",
		`"1709632800000"`:               "2024-03-05T10:00:00Z",
		`1709632800000.5`:               "2024-03-05T10:00:00.0005Z",
	}
	for raw, want := range cases {
		got, err := ParseEventTime([]byte(raw))
		if err != nil {
			t.Fatalf("ParseEventTime(%s) returned error: %v", raw, err)
		}
		if got.Format("2006-01-02T15:04:05.999999999Z07:00") != want {
			t.Fatalf("ParseEventTime(%s) = %s, want %s", raw, got.Format("2006-01-02T15:04:05.999999999Z07:00"), want)
		}
	}
	for _, raw := range []string{``, `null`, `"not a time"`, `true`} {
		if _, err := ParseEventTime([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseEventTimeRejectsOutOfRangeMillis(t *testing.T) {
	for _, raw := range []string{`1e300`, `-1e300`, `253402300800000`, `"253402300800000"`, `"-9223372036854775808"`} {
		if _, err := ParseEventTime([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestAppErrorKinds(t *testing.T) {
	err := NewValidationError("query.Resolve", "start after end", ErrInvalidRange)
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected validation error wrapping ErrInvalidRange, got %v", err)
	}
	if errors.Is(err, ErrUpstream) {
		t.Fatalf("validation error must not match ErrUpstream")
	}
	if KindOf(err) != KindValidation {
		t.Fatalf("expected KindValidation, got %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("plain errors should be internal")
	}
}

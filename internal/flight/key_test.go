package flight

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "aa 1", want: "AA1"},
		{raw: " BB-2 ", want: "BB2"},
		{raw: "ua\t123", want: "UA123"},
		{raw: "a", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "ABCDEFGHIJK", wantErr: true},
		{raw: "ABCDEFGHIJ", want: "ABCDEFGHIJ"},
		{raw: "AA.12", wantErr: true},
		{raw: "ÄA12", wantErr: true},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Normalize(%q) err = %v, want ErrInvalidKey", tc.raw, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("Normalize(%q) = %q, %v; want %q", tc.raw, got, err, tc.want)
		}
	}
}

func TestParseListKeepsDuplicatesAndRaw(t *testing.T) {
	keys, err := ParseList("aa 1, BB-2,aa1")
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	want := []Key{
		{Raw: "aa 1", Normalized: "AA1"},
		{Raw: "BB-2", Normalized: "BB2"},
		{Raw: "aa1", Normalized: "AA1"},
	}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %+v, want %+v", keys, want)
	}
}

func TestParseListRejectsWholeBatch(t *testing.T) {
	_, err := ParseList("AA1,a,BB2")
	var ke *KeyError
	if !errors.As(err, &ke) || ke.Raw != "a" {
		t.Fatalf("err = %v, want KeyError for %q", err, "a")
	}
}

func TestExtract(t *testing.T) {
	got := Extract("landing on UA 123 then BA-45, gate 1234, not X1")
	want := []string{"UA 123", "BA-45", "1234"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract = %q, want %q", got, want)
	}
}

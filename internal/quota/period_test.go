package quota

import (
	"testing"
	"time"
)

func TestPeriodNextCarriesYear(t *testing.T) {
	got := Period{Year: 2023, Month: time.December}.Next()
	if got != (Period{Year: 2024, Month: time.January}) {
		t.Fatalf("expected 2024-01, got %s", got)
	}
	if got := (Period{Year: 2024, Month: time.June}).Next(); got.String() != "2024-07" {
		t.Fatalf("expected 2024-07, got %s", got)
	}
}

func TestPeriodPrevBorrowsYear(t *testing.T) {
	got := Period{Year: 2024, Month: time.January}.Prev()
	if got != (Period{Year: 2023, Month: time.December}) {
		t.Fatalf("expected 2023-12, got %s", got)
	}
}

func TestPeriodBoundsAreHalfOpen(t *testing.T) {
	p := Period{Year: 2024, Month: time.February}
	if !p.Start().Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", p.Start())
	}
	if !p.End().Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %s", p.End())
	}
	if !p.Contains(p.Start()) {
		t.Fatal("start must be inside the period")
	}
	if p.Contains(p.End()) {
		t.Fatal("end must be outside the period")
	}
	if !p.Contains(time.Date(2024, 2, 29, 23, 59, 59, 999999999, time.UTC)) {
		t.Fatal("leap day must be inside February 2024")
	}
}

func TestPeriodOfUsesUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	local := time.Date(2024, 1, 1, 5, 0, 0, 0, tokyo)
	if got := PeriodOf(local); got.String() != "2023-12" {
		t.Fatalf("expected 2023-12 in UTC, got %s", got)
	}
}

func TestParsePeriodRoundTrip(t *testing.T) {
	p, err := ParsePeriod("2023-12")
	if err != nil {
		t.Fatalf("ParsePeriod: %v", err)
	}
	if p.Year != 2023 || p.Month != time.December {
		t.Fatalf("unexpected period %+v", p)
	}
	if _, err := ParsePeriod("2023-13"); err == nil {
		t.Fatal("expected invalid month to fail")
	}
}

package model

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusDiscovered, StatusStaged},
		{StatusStaged, StatusTranscribed},
		{StatusStaged, StatusFailedTranscription},
		{StatusStaged, StatusExported},
		{StatusStaged, StatusExportedDuplicate},
		{StatusTranscribed, StatusExported},
		{StatusTranscribed, StatusExportedDuplicate},
		{StatusFailedTranscription, StatusExportedPlaceholder},
	}
	for _, tt := range allowed {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tt.from, tt.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusDiscovered, StatusTranscribed},
		{StatusStaged, StatusExportedPlaceholder},
		{StatusTranscribed, StatusStaged},
		{StatusFailedTranscription, StatusExported},
		{StatusExported, StatusStaged},
		{StatusExportedDuplicate, StatusExported},
		{StatusExportedPlaceholder, StatusStaged},
	}
	for _, tt := range forbidden {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tt.from, tt.to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	terminals := map[Status]bool{
		StatusDiscovered:          false,
		StatusStaged:              false,
		StatusTranscribed:         false,
		StatusFailedTranscription: false,
		StatusExported:            true,
		StatusExportedDuplicate:   true,
		StatusExportedPlaceholder: true,
	}
	for s, want := range terminals {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("staged"); err != nil {
		t.Errorf("ParseStatus(staged) error: %v", err)
	}
	if _, err := ParseStatus("bogus"); err == nil {
		t.Error("ParseStatus(bogus) should fail")
	}
}

func TestAuditMode_Exclusive(t *testing.T) {
	if !AuditInitial.Exclusive() || !AuditPlaceholder.Exclusive() {
		t.Error("initial and placeholder audits are exclusive")
	}
	if AuditDuplicateSkip.Exclusive() {
		t.Error("duplicate_skip audits are not exclusive")
	}
}

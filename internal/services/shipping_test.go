package services

import "testing"

func TestNormalizeCarrierName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		carrier string
		want    string
	}{
		{name: "known carrier delhivery", carrier: "delhivery", want: "Delhivery"},
		{name: "known carrier with spacing", carrier: " Blue-Dart ", want: "Blue Dart"},
		{name: "speed post alias", carrier: "Speed Post", want: "India Post"},
		{name: "custom carrier kept", carrier: "Shadowfax", want: "Shadowfax"},
		{name: "empty", carrier: "  ", want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NormalizeCarrierName(tc.carrier)
			if got != tc.want {
				t.Fatalf("NormalizeCarrierName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildTrackingURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		carrier string
		number  string
		want    string
	}{
		{name: "delhivery", carrier: "Delhivery", number: "1234", want: "https://www.delhivery.com/track/package/1234"},
		{name: "dtdc escapes", carrier: "dtdc", number: "A B", want: "https://www.dtdc.in/tracking.asp?strCnno=A+B"},
		{name: "unknown carrier", carrier: "Shadowfax", number: "1234", want: ""},
		{name: "missing number", carrier: "Delhivery", number: " ", want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := BuildTrackingURL(tc.carrier, tc.number)
			if got != tc.want {
				t.Fatalf("BuildTrackingURL() = %q, want %q", got, tc.want)
			}
		})
	}
}

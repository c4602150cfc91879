package bthome

import (
	"bytes"
	"testing"
)

func TestBuildAdvertisement(t *testing.T) {
	svc := encode(validReading(21.34, 55.6, 87), 5)

	var adv Advertisement
	n := BuildAdvertisement(&adv, FlagsGeneralDiscoverable, svc)

	want := append([]byte{0x02, 0x01, 0x06, byte(len(svc) + 1), 0x16}, svc...)
	if !bytes.Equal(adv[:n], want) {
		t.Errorf("BuildAdvertisement() = % X, want % X", adv[:n], want)
	}

	payload, ok := FindServiceData(adv[:n])
	if !ok {
		t.Fatal("FindServiceData() did not find the element it was built with")
	}
	if !bytes.Equal(payload, svc[2:]) {
		t.Errorf("payload = % X, want % X", payload, svc[2:])
	}
}

func TestBuildAdvertisement_TooLarge(t *testing.T) {
	var adv Advertisement
	if n := BuildAdvertisement(&adv, FlagsGeneralDiscoverable, make([]byte, 27)); n != 0 {
		t.Errorf("BuildAdvertisement(27 bytes) = %d, want 0", n)
	}
	if n := BuildAdvertisement(&adv, FlagsGeneralDiscoverable, make([]byte, 26)); n != MaxAdvertisementLen {
		t.Errorf("BuildAdvertisement(26 bytes) = %d, want %d", n, MaxAdvertisementLen)
	}
}

func TestFindServiceData(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    []byte
		wantHit bool
	}{
		{
			name:    "after flags and name",
			in:      []byte{0x02, 0x01, 0x06, 0x03, 0x09, 'h', 'i', 0x06, 0x16, 0xD2, 0xFC, 0x40, 0x00, 0x01},
			want:    []byte{0x40, 0x00, 0x01},
			wantHit: true,
		},
		{
			name:    "other uuid skipped",
			in:      []byte{0x04, 0x16, 0x1A, 0x18, 0xAA, 0x04, 0x16, 0xD2, 0xFC, 0x41},
			want:    []byte{0x41},
			wantHit: true,
		},
		{
			name:    "uuid only element",
			in:      []byte{0x03, 0x16, 0xD2, 0xFC},
			want:    []byte{},
			wantHit: true,
		},
		{
			name: "manufacturer data only",
			in:   []byte{0x05, 0xFF, 0xFF, 0xFF, 0x01, 0xD0},
		},
		{
			name: "length overruns frame",
			in:   []byte{0x02, 0x01, 0x06, 0x09, 0x16, 0xD2, 0xFC, 0x40},
		},
		{
			name: "zero length stops walk",
			in:   []byte{0x00, 0x04, 0x16, 0xD2, 0xFC, 0x40},
		},
		{
			name: "element too short for uuid",
			in:   []byte{0x02, 0x16, 0xD2},
		},
		{name: "empty", in: nil},
		{name: "single byte", in: []byte{0x05}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindServiceData(tt.in)
			if ok != tt.wantHit {
				t.Fatalf("FindServiceData() ok = %v, want %v", ok, tt.wantHit)
			}
			if ok && !bytes.Equal(got, tt.want) {
				t.Errorf("FindServiceData() = % X, want % X", got, tt.want)
			}
		})
	}
}

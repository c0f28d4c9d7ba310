package xfs

import "testing"

func TestSuperBlockUUIDValueRoundTrips(t *testing.T) {
	var sb SuperBlock
	sb.UUID = [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

	got := sb.UUIDValue()
	want := "01020304-0506-0708-090a-0b0c0d0e0f10"
	if got.String() != want {
		t.Errorf("UUIDValue().String() = %q, want %q", got.String(), want)
	}
}

func TestFSSuperBlockUUIDDelegatesToSuperBlock(t *testing.T) {
	fs := newTestFS(4096)
	fs.sb.UUID = [16]byte{0xff}

	if fs.SuperBlockUUID() != fs.sb.UUIDValue() {
		t.Errorf("SuperBlockUUID() did not match sb.UUIDValue()")
	}
}

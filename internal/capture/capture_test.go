package capture

import (
	"context"
	"errors"
	"testing"
)

func TestFailedDevice(t *testing.T) {
	cause := errors.New("no such device")
	d := Failed(cause)

	for i := 0; i < 2; i++ {
		_, err := d.Read(context.Background())
		if !errors.Is(err, ErrReadFailed) || !errors.Is(err, cause) {
			t.Fatalf("read %d: err = %v", i, err)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := Failed(nil).Read(context.Background()); !errors.Is(err, ErrReadFailed) {
		t.Fatalf("nil cause: err = %v", err)
	}
}

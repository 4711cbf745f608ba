// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewSubscriberID(t *testing.T) {
	id := NewSubscriberID()
	if id == "" {
		t.Error("expected non-empty SubscriberID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
}

func TestNewSubscriberIDUnique(t *testing.T) {
	a, b := NewSubscriberID(), NewSubscriberID()
	if a == b {
		t.Errorf("expected distinct ids, got %s twice", a)
	}
}

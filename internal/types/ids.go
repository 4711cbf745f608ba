// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SubscriberID string

func NewSubscriberID() SubscriberID {
	return SubscriberID(uuid.New().String())
}

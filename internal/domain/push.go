package domain

// PushSubscription is the JSON form of a browser push subscription.
// The app only holds it long enough to forward it.
type PushSubscription struct {
	Endpoint       string               `json:"endpoint"`
	ExpirationTime *int64               `json:"expirationTime"`
	Keys           PushSubscriptionKeys `json:"keys"`
}

// PushSubscriptionKeys carries the client's encryption material.
type PushSubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Valid returns true if the subscription has an endpoint to deliver to.
func (s *PushSubscription) Valid() bool {
	return s != nil && s.Endpoint != ""
}

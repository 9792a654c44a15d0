package domain

// CartLine is one product held in a cart.
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Selected  bool  `json:"selected"`
}

// Identity is either an authenticated user or the anonymous marker.
type Identity struct {
	UserID int64
}

func Anonymous() Identity {
	return Identity{}
}

func User(userID int64) Identity {
	return Identity{UserID: userID}
}

func (i Identity) IsAnonymous() bool {
	return i.UserID <= 0
}

package models

import "time"

// User types a marketplace account can hold.
const (
	UserTypeBuyer  = "buyer"
	UserTypeSeller = "seller"
)

// User is a marketplace account identified by its verified phone number.
type User struct {
	ID              string    `bson:"_id,omitempty" json:"id"`
	Phone           string    `bson:"phone" json:"phone"`
	Name            string    `bson:"name,omitempty" json:"name,omitempty"`
	UserType        string    `bson:"userType" json:"userType"`
	ProfileComplete bool      `bson:"profileComplete" json:"profileComplete"`
	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt" json:"updatedAt"`
}

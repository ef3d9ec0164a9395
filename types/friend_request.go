package types

import "time"

// FriendRequestStatus is the lifecycle state of a friend request.
// Rejected requests are deleted rather than stored with a status.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
)

// FriendRequest links a sender and a recipient.
type FriendRequest struct {
	// ID is the unique identifier of the request (UUID).
	ID string `json:"_id" db:"id"`

	// SenderID is the user who sent the request.
	SenderID string `json:"senderId" db:"sender_id"`

	// RecipientID is the only user allowed to accept or reject the request.
	RecipientID string `json:"recipientId" db:"recipient_id"`

	Status FriendRequestStatus `json:"status" db:"status"`

	// Sender and Recipient are populated by list operations.
	Sender    *UserSummary `json:"sender,omitempty"`
	Recipient *UserSummary `json:"recipient,omitempty"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Involves reports whether the request connects the two given users,
// in either direction.
func (r FriendRequest) Involves(a, b string) bool {
	return (r.SenderID == a && r.RecipientID == b) || (r.SenderID == b && r.RecipientID == a)
}

// FriendRequestFilter selects friend requests. Empty fields match anything.
type FriendRequestFilter struct {
	SenderID    string
	RecipientID string
	Status      FriendRequestStatus
}

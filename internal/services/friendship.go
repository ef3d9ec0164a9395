package services

import (
	"context"
	"errors"
	"strings"

	"github.com/connectify/apiserver/internal/store"
	"github.com/connectify/apiserver/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FriendRequestLists is the response of ListIncomingAndAccepted.
type FriendRequestLists struct {
	Incoming []types.FriendRequest `json:"incomingReqs"`
	Accepted []types.FriendRequest `json:"acceptedReqs"`
}

// FriendshipService manages friend requests and the symmetric friend sets.
type FriendshipService struct {
	users    UserRepository
	requests FriendRequestRepository
	tx       TxFunc
	log      logrus.FieldLogger
}

// NewFriendshipService builds the service. When tx is nil, multi-step
// operations run directly against users and requests.
func NewFriendshipService(users UserRepository, requests FriendRequestRepository, tx TxFunc, log logrus.FieldLogger) *FriendshipService {
	if tx == nil {
		tx = NoTx(users, requests)
	}
	return &FriendshipService{users: users, requests: requests, tx: tx, log: log}
}

func (s *FriendshipService) SendRequest(ctx context.Context, senderID, recipientID string) (types.FriendRequest, error) {
	senderID = strings.TrimSpace(senderID)
	recipientID = strings.TrimSpace(recipientID)
	if senderID == "" || recipientID == "" {
		return types.FriendRequest{}, validationError("user id is required")
	}
	if senderID == recipientID {
		return types.FriendRequest{}, validationError("you cannot send a friend request to yourself")
	}

	if _, err := s.users.GetByID(ctx, recipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.FriendRequest{}, notFoundError("recipient not found")
		}
		return types.FriendRequest{}, internalError("get recipient", err)
	}

	var created types.FriendRequest
	err := s.tx(ctx, func(ctx context.Context, _ UserRepository, requests FriendRequestRepository) error {
		existing, err := requests.FindBetween(ctx, senderID, recipientID)
		if err != nil {
			return err
		}
		for _, req := range existing {
			if req.Status == types.FriendRequestPending {
				return conflictError("friend request already sent")
			}
		}
		for _, req := range existing {
			if err := requests.Delete(ctx, req.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		created, err = requests.Create(ctx, types.FriendRequest{
			ID:          uuid.NewString(),
			SenderID:    senderID,
			RecipientID: recipientID,
			Status:      types.FriendRequestPending,
		})
		if errors.Is(err, store.ErrConflict) {
			return conflictError("friend request already sent")
		}
		return err
	})
	if err != nil {
		return types.FriendRequest{}, asServiceError("send friend request", err)
	}

	s.log.WithFields(logrus.Fields{
		"request_id":   created.ID,
		"sender_id":    senderID,
		"recipient_id": recipientID,
	}).Info("friend request sent")
	return created, nil
}

// AcceptRequest marks the request accepted, links both users as friends and
// drops any other request between them. Accepting an accepted request again
// converges to the same state.
func (s *FriendshipService) AcceptRequest(ctx context.Context, requestID, actingUserID string) (types.FriendRequest, error) {
	var accepted types.FriendRequest
	err := s.tx(ctx, func(ctx context.Context, users UserRepository, requests FriendRequestRepository) error {
		req, err := s.recipientRequest(ctx, requests, requestID, actingUserID, "accept")
		if err != nil {
			return err
		}

		if req.Status != types.FriendRequestAccepted {
			req, err = requests.UpdateStatus(ctx, req.ID, types.FriendRequestAccepted)
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError("friend request not found")
			}
			if err != nil {
				return err
			}
		}
		if err := users.AddFriend(ctx, req.SenderID, req.RecipientID); err != nil {
			return err
		}
		if err := users.AddFriend(ctx, req.RecipientID, req.SenderID); err != nil {
			return err
		}
		if _, err := requests.DeleteBetween(ctx, req.SenderID, req.RecipientID, req.ID); err != nil {
			return err
		}

		accepted = req
		return nil
	})
	if err != nil {
		return types.FriendRequest{}, asServiceError("accept friend request", err)
	}

	s.log.WithField("request_id", accepted.ID).Info("friend request accepted")
	return accepted, nil
}

func (s *FriendshipService) RejectRequest(ctx context.Context, requestID, actingUserID string) error {
	req, err := s.recipientRequest(ctx, s.requests, requestID, actingUserID, "reject")
	if err != nil {
		return asServiceError("reject friend request", err)
	}

	if err := s.requests.Delete(ctx, req.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("friend request not found")
		}
		return internalError("delete friend request", err)
	}

	s.log.WithField("request_id", req.ID).Info("friend request rejected")
	return nil
}

// Unfriend removes the friendship in both directions together with every
// request between the pair. Unfriending a non-friend succeeds.
func (s *FriendshipService) Unfriend(ctx context.Context, userID, friendID string) error {
	userID = strings.TrimSpace(userID)
	friendID = strings.TrimSpace(friendID)
	if userID == "" || friendID == "" {
		return validationError("friend id is required")
	}
	if userID == friendID {
		return validationError("you cannot unfriend yourself")
	}

	err := s.tx(ctx, func(ctx context.Context, users UserRepository, requests FriendRequestRepository) error {
		for _, id := range []string{userID, friendID} {
			if _, err := users.GetByID(ctx, id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return notFoundError("user not found")
				}
				return err
			}
		}

		if err := users.RemoveFriend(ctx, userID, friendID); err != nil {
			return err
		}
		if err := users.RemoveFriend(ctx, friendID, userID); err != nil {
			return err
		}
		_, err := requests.DeleteBetween(ctx, userID, friendID, "")
		return err
	})
	if err != nil {
		return asServiceError("unfriend", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "friend_id": friendID}).Info("users unfriended")
	return nil
}

func (s *FriendshipService) ListRecommended(ctx context.Context, userID string) ([]types.UserSummary, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	exclude := append([]string{user.ID}, user.Friends...)
	users, err := s.users.ListOnboarded(ctx, exclude)
	if err != nil {
		return nil, internalError("list recommended users", err)
	}
	return summaries(users), nil
}

func (s *FriendshipService) ListFriends(ctx context.Context, userID string) ([]types.UserSummary, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.Friends) == 0 {
		return []types.UserSummary{}, nil
	}

	friends, err := s.users.GetManyByIDs(ctx, user.Friends)
	if err != nil {
		return nil, internalError("list friends", err)
	}
	return summaries(friends), nil
}

func (s *FriendshipService) ListIncomingAndAccepted(ctx context.Context, userID string) (FriendRequestLists, error) {
	incoming, err := s.requests.List(ctx, types.FriendRequestFilter{
		RecipientID: userID,
		Status:      types.FriendRequestPending,
	})
	if err != nil {
		return FriendRequestLists{}, internalError("list incoming requests", err)
	}
	accepted, err := s.requests.List(ctx, types.FriendRequestFilter{
		SenderID: userID,
		Status:   types.FriendRequestAccepted,
	})
	if err != nil {
		return FriendRequestLists{}, internalError("list accepted requests", err)
	}

	if incoming, err = s.populate(ctx, incoming, true, false); err != nil {
		return FriendRequestLists{}, err
	}
	if accepted, err = s.populate(ctx, accepted, false, true); err != nil {
		return FriendRequestLists{}, err
	}
	return FriendRequestLists{Incoming: incoming, Accepted: accepted}, nil
}

func (s *FriendshipService) ListOutgoingPending(ctx context.Context, userID string) ([]types.FriendRequest, error) {
	outgoing, err := s.requests.List(ctx, types.FriendRequestFilter{
		SenderID: userID,
		Status:   types.FriendRequestPending,
	})
	if err != nil {
		return nil, internalError("list outgoing requests", err)
	}
	return s.populate(ctx, outgoing, false, true)
}

func (s *FriendshipService) recipientRequest(ctx context.Context, requests FriendRequestRepository, requestID, actingUserID, action string) (types.FriendRequest, error) {
	req, err := requests.GetByID(ctx, strings.TrimSpace(requestID))
	if errors.Is(err, store.ErrNotFound) {
		return types.FriendRequest{}, notFoundError("friend request not found")
	}
	if err != nil {
		return types.FriendRequest{}, err
	}
	if req.RecipientID != actingUserID {
		return types.FriendRequest{}, forbiddenError("you are not authorized to " + action + " this request")
	}
	return req, nil
}

func (s *FriendshipService) getUser(ctx context.Context, userID string) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, notFoundError("user not found")
	}
	if err != nil {
		return types.User{}, internalError("get user", err)
	}
	return user, nil
}

// populate attaches sender and/or recipient summaries to each request.
// Requests whose counterpart no longer exists keep a nil summary.
func (s *FriendshipService) populate(ctx context.Context, reqs []types.FriendRequest, sender, recipient bool) ([]types.FriendRequest, error) {
	if len(reqs) == 0 {
		return []types.FriendRequest{}, nil
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, req := range reqs {
		for _, id := range []string{req.SenderID, req.RecipientID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	users, err := s.users.GetManyByIDs(ctx, ids)
	if err != nil {
		return nil, internalError("populate friend requests", err)
	}
	byID := make(map[string]types.UserSummary, len(users))
	for _, u := range users {
		byID[u.ID] = u.Summary()
	}

	for i := range reqs {
		if sender {
			if summary, ok := byID[reqs[i].SenderID]; ok {
				reqs[i].Sender = &summary
			}
		}
		if recipient {
			if summary, ok := byID[reqs[i].RecipientID]; ok {
				reqs[i].Recipient = &summary
			}
		}
	}
	return reqs, nil
}

func summaries(users []types.User) []types.UserSummary {
	out := make([]types.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out
}

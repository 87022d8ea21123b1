// Package firestore persists push addresses and notification history in
// Google Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

const tokensCollection = "user_tokens"

// tokenRecord is the document stored at user_tokens/{userId}.
type tokenRecord struct {
	UserID    string    `firestore:"userId"`
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// AddressStore implements dispatch.AddressStore: one push token per user.
type AddressStore struct {
	client *firestore.Client
}

func NewAddressStore(client *firestore.Client) *AddressStore {
	return &AddressStore{client: client}
}

func (s *AddressStore) GetAddress(ctx context.Context, recipientID string) (string, error) {
	doc, err := s.client.Collection(tokensCollection).Doc(recipientID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", dispatch.ErrNotFound
		}
		return "", fmt.Errorf("failed to read token for %s: %w", recipientID, err)
	}
	var rec tokenRecord
	if err := doc.DataTo(&rec); err != nil {
		return "", fmt.Errorf("failed to decode token for %s: %w", recipientID, err)
	}
	if rec.Token == "" {
		return "", dispatch.ErrNotFound
	}
	return rec.Token, nil
}

// ListAddresses returns every user with a non-empty token.
func (s *AddressStore) ListAddresses(ctx context.Context) ([]dispatch.DeliveryTarget, error) {
	iter := s.client.Collection(tokensCollection).Documents(ctx)
	defer iter.Stop()

	var targets []dispatch.DeliveryTarget
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		var rec tokenRecord
		if err := doc.DataTo(&rec); err != nil || rec.Token == "" {
			continue
		}
		targets = append(targets, dispatch.NewTarget(doc.Ref.ID, rec.Token))
	}
	return targets, nil
}

func (s *AddressStore) SetAddress(ctx context.Context, recipientID, address string) error {
	_, err := s.client.Collection(tokensCollection).Doc(recipientID).Set(ctx, tokenRecord{
		UserID:    recipientID,
		Token:     address,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save token for %s: %w", recipientID, err)
	}
	return nil
}

// RemoveAddress deletes the user's token. Deleting a missing token is not
// an error.
func (s *AddressStore) RemoveAddress(ctx context.Context, recipientID string) error {
	if _, err := s.client.Collection(tokensCollection).Doc(recipientID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete token for %s: %w", recipientID, err)
	}
	return nil
}

// RemoveAddressIfMatch deletes the user's token inside a transaction, and only
// when the stored token is still address.
func (s *AddressStore) RemoveAddressIfMatch(ctx context.Context, recipientID, address string) (bool, error) {
	ref := s.client.Collection(tokensCollection).Doc(recipientID)
	removed := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		removed = false
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}
		var rec tokenRecord
		if err := doc.DataTo(&rec); err != nil {
			return err
		}
		if rec.Token != address {
			return nil
		}
		removed = true
		return tx.Delete(ref)
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete token for %s: %w", recipientID, err)
	}
	return removed, nil
}

package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/mazira-designs/api/internal/domain"
	pfirestore "github.com/mazira-designs/api/internal/platform/firestore"
)

const checkoutRecordsCollection = "checkoutRecords"

type firestoreClientProvider interface {
	Client(ctx context.Context) (*firestore.Client, error)
}

// FirestoreCheckoutRecordRepository stores checkout records as documents keyed by session id.
// ExpiresAt is written as a Timestamp so a Firestore TTL policy can purge old records.
type FirestoreCheckoutRecordRepository struct {
	provider firestoreClientProvider
	now      func() time.Time
}

var _ CheckoutRecordRepository = (*FirestoreCheckoutRecordRepository)(nil)

// NewFirestoreCheckoutRecordRepository constructs a repository backed by provider.
func NewFirestoreCheckoutRecordRepository(provider firestoreClientProvider, clock func() time.Time) (*FirestoreCheckoutRecordRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout record repository: firestore provider is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &FirestoreCheckoutRecordRepository{provider: provider, now: clock}, nil
}

type checkoutRecordDocument struct {
	ID        string               `firestore:"id"`
	SessionID string               `firestore:"sessionId"`
	Provider  string               `firestore:"provider"`
	VisitorID string               `firestore:"visitorId,omitempty"`
	LineItems []lineItemDocument   `firestore:"lineItems"`
	Total     int64                `firestore:"total"`
	Currency  string               `firestore:"currency"`
	Customer  customerDataDocument `firestore:"customer"`
	CreatedAt time.Time            `firestore:"createdAt"`
	ExpiresAt time.Time            `firestore:"expiresAt"`
}

type lineItemDocument struct {
	Category        string   `firestore:"category"`
	Name            string   `firestore:"name"`
	Tier            string   `firestore:"tier"`
	Price           int64    `firestore:"price"`
	PriceKey        string   `firestore:"priceKey,omitempty"`
	FreePlatformKey string   `firestore:"freePlatformKey,omitempty"`
	AddOnKeys       []string `firestore:"addOnKeys,omitempty"`
}

type customerDataDocument struct {
	Email          string `firestore:"email,omitempty"`
	FirstName      string `firestore:"firstName,omitempty"`
	LastName       string `firestore:"lastName,omitempty"`
	CompanyName    string `firestore:"companyName,omitempty"`
	CompanyWebsite string `firestore:"companyWebsite,omitempty"`
}

func (r *FirestoreCheckoutRecordRepository) Insert(ctx context.Context, record domain.CheckoutRecord) error {
	key := strings.TrimSpace(record.SessionID)
	if key == "" {
		return errors.New("checkout record repository: session id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("checkout_records.client", err)
	}
	_, err = client.Collection(checkoutRecordsCollection).Doc(key).Create(ctx, encodeCheckoutRecord(record))
	return pfirestore.WrapError("checkout_records.insert", err)
}

func (r *FirestoreCheckoutRecordRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.CheckoutRecord, error) {
	key := strings.TrimSpace(sessionID)
	if key == "" {
		return domain.CheckoutRecord{}, notFoundError("checkout_records.get", key)
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CheckoutRecord{}, pfirestore.WrapError("checkout_records.client", err)
	}
	snap, err := client.Collection(checkoutRecordsCollection).Doc(key).Get(ctx)
	if err != nil {
		return domain.CheckoutRecord{}, pfirestore.WrapError("checkout_records.get", err)
	}
	var doc checkoutRecordDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.CheckoutRecord{}, pfirestore.WrapError("checkout_records.decode", err)
	}
	record := decodeCheckoutRecord(doc)
	if !record.ExpiresAt.IsZero() && !r.now().Before(record.ExpiresAt) {
		return domain.CheckoutRecord{}, notFoundError("checkout_records.get", key)
	}
	return record, nil
}

func encodeCheckoutRecord(record domain.CheckoutRecord) checkoutRecordDocument {
	doc := checkoutRecordDocument{
		ID:        record.ID,
		SessionID: strings.TrimSpace(record.SessionID),
		Provider:  record.Provider,
		VisitorID: record.VisitorID,
		Total:     record.Total,
		Currency:  record.Currency,
		Customer:  customerDataDocument(record.Customer),
		CreatedAt: record.CreatedAt.UTC(),
		ExpiresAt: record.ExpiresAt.UTC(),
	}
	for _, item := range record.LineItems {
		doc.LineItems = append(doc.LineItems, lineItemDocument{
			Category:        string(item.Category),
			Name:            item.Name,
			Tier:            item.Tier,
			Price:           item.Price,
			PriceKey:        item.PriceKey,
			FreePlatformKey: item.FreePlatformKey,
			AddOnKeys:       append([]string(nil), item.AddOnKeys...),
		})
	}
	return doc
}

func decodeCheckoutRecord(doc checkoutRecordDocument) domain.CheckoutRecord {
	record := domain.CheckoutRecord{
		ID:        doc.ID,
		SessionID: doc.SessionID,
		Provider:  doc.Provider,
		VisitorID: doc.VisitorID,
		Total:     doc.Total,
		Currency:  doc.Currency,
		Customer:  domain.CustomerData(doc.Customer),
		CreatedAt: doc.CreatedAt.UTC(),
		ExpiresAt: doc.ExpiresAt.UTC(),
	}
	for _, item := range doc.LineItems {
		record.LineItems = append(record.LineItems, domain.PlanLineItem{
			Category:        domain.Category(item.Category),
			Name:            item.Name,
			Tier:            item.Tier,
			Price:           item.Price,
			PriceKey:        item.PriceKey,
			FreePlatformKey: item.FreePlatformKey,
			AddOnKeys:       item.AddOnKeys,
		})
	}
	return record
}

package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is the Cloud Firestore backend. With FIRESTORE_EMULATOR_HOST
// set the client talks to the emulator.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreClient uses application default credentials when credentialsFile is empty.
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return client, nil
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (f *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	if !snap.Exists() {
		return nil, ErrNotFound
	}
	return Document(snap.Data()), nil
}

func (f *FirestoreStore) Set(ctx context.Context, collection, id string, data Document, opts SetOptions) error {
	ref := f.client.Collection(collection).Doc(id)
	payload := map[string]any(cloneDocument(data))
	if payload == nil {
		payload = map[string]any{}
	}

	var err error
	switch {
	case opts.Merge && len(payload) > 0:
		_, err = ref.Set(ctx, payload, firestore.MergeAll)
	case opts.Merge:
		_, err = ref.Create(ctx, payload)
		if status.Code(err) == codes.AlreadyExists {
			err = nil
		}
	default:
		_, err = ref.Set(ctx, payload)
	}
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (f *FirestoreStore) Add(ctx context.Context, collection string, data Document) (string, error) {
	ref, _, err := f.client.Collection(collection).Add(ctx, map[string]any(cloneDocument(data)))
	if err != nil {
		return "", fmt.Errorf("failed to add to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (f *FirestoreStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	q := f.client.Collection(collection).Query
	for _, flt := range filters {
		q = q.Where(flt.Field, "==", flt.Value)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	result := make([]Snapshot, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", collection, err)
		}
		result = append(result, Snapshot{ID: snap.Ref.ID, Data: Document(snap.Data())})
	}
	return result, nil
}

func (f *FirestoreStore) Close(context.Context) error {
	return f.client.Close()
}

package store

import (
	"context"
	"errors"

	"cln-nwc/internal/cln"
)

// DatastoreRPC is the slice of the node RPC surface the datastore backend
// needs.
type DatastoreRPC interface {
	Datastore(ctx context.Context, p cln.DatastoreParams) (*cln.DatastoreEntry, error)
	ListDatastore(ctx context.Context, key []string) ([]cln.DatastoreEntry, error)
	DelDatastore(ctx context.Context, key []string) (*cln.DatastoreEntry, error)
}

// Datastore persists entries in the node's own datastore, so records survive
// with the node's backup story and need no extra infrastructure.
type Datastore struct {
	rpc DatastoreRPC
}

// NewDatastore returns a backend over the node datastore.
func NewDatastore(rpc DatastoreRPC) *Datastore {
	return &Datastore{rpc: rpc}
}

func (d *Datastore) Get(ctx context.Context, key []string) (string, bool, error) {
	entries, err := d.rpc.ListDatastore(ctx, key)
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.String != nil && len(e.Key) == len(key) {
			return *e.String, true, nil
		}
	}
	return "", false, nil
}

func (d *Datastore) Put(ctx context.Context, key []string, value string) error {
	_, err := d.rpc.Datastore(ctx, cln.DatastoreParams{
		Key:    key,
		String: value,
		Mode:   cln.DatastoreCreateOrReplace,
	})
	return err
}

func (d *Datastore) PutNew(ctx context.Context, key []string, value string) error {
	_, err := d.rpc.Datastore(ctx, cln.DatastoreParams{
		Key:    key,
		String: value,
		Mode:   cln.DatastoreMustCreate,
	})
	var rpcErr *cln.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == cln.DatastoreUpdateAlreadyExists {
		return ErrExists
	}
	return err
}

func (d *Datastore) Delete(ctx context.Context, key []string) error {
	_, err := d.rpc.DelDatastore(ctx, key)
	var rpcErr *cln.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == cln.DatastoreDelDoesNotExist {
		return ErrNotFound
	}
	return err
}

func (d *Datastore) List(ctx context.Context, prefix []string) ([]Entry, error) {
	entries, err := d.rpc.ListDatastore(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.String == nil || len(e.Key) <= len(prefix) {
			continue
		}
		out = append(out, Entry{Key: e.Key, Value: *e.String})
	}
	return out, nil
}

package service

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/acbikash13/NepalPermit/model"
)

type fakeObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	deleted   []string
	uploadErr map[string]error
	getErr    error
	deleteErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:   make(map[string][]byte),
		types:     make(map[string]string),
		uploadErr: make(map[string]error),
	}
}

func (f *fakeObjectStore) EnsureBucket(ctx context.Context, bucket string) error { return nil }

func (f *fakeObjectStore) UploadFile(ctx context.Context, bucket, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr[bucket]; err != nil {
		return "", err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	f.objects[bucket+"/"+objectName] = data
	f.types[bucket+"/"+objectName] = contentType
	return f.PublicURL(bucket, objectName), nil
}

func (f *fakeObjectStore) GetFile(ctx context.Context, bucket, objectName string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[bucket+"/"+objectName]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (f *fakeObjectStore) DeleteFile(ctx context.Context, bucket, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, bucket+"/"+objectName)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, bucket+"/"+objectName)
	return nil
}

func (f *fakeObjectStore) PublicURL(bucket, objectName string) string {
	return "http://objects.test/" + bucket + "/" + objectName
}

func (f *fakeObjectStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fakeRepository struct {
	mu        sync.Mutex
	permits   []*model.Permit
	insertErr error
	findErr   error
}

func (r *fakeRepository) Insert(ctx context.Context, p *model.Permit) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	stored := *p
	stored.ID = int64(len(r.permits) + 1)
	stored.CreatedAt = time.Now()
	r.permits = append(r.permits, &stored)
	return stored.ID, nil
}

func (r *fakeRepository) FindByKey(ctx context.Context, key string) (*model.Permit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, p := range r.permits {
		if p.ConfirmationID == key || strconv.FormatInt(p.ID, 10) == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPermitNotFound
}

func (r *fakeRepository) FindByConfirmationID(ctx context.Context, code string) (*model.Permit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, p := range r.permits {
		if p.ConfirmationID == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPermitNotFound
}

func (r *fakeRepository) List(ctx context.Context) ([]model.PermitSummary, error) {
	return []model.PermitSummary{}, nil
}

func (r *fakeRepository) Stats(ctx context.Context, now time.Time) (*model.PermitStats, error) {
	return &model.PermitStats{Total: int64(len(r.permits))}, nil
}

type fakeRenderer struct {
	err   error
	calls int
}

func (r *fakeRenderer) Render(p *model.Permit) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.3 " + p.ConfirmationID), nil
}

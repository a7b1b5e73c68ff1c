package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockBlobStore implements interfaces.BlobStore for testing
type MockBlobStore struct {
	mock.Mock
	name string
}

func (m *MockBlobStore) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	args := m.Called(ctx, id, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobStore) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	args := m.Called(ctx, data, contentType)
	return args.Get(0).(interfaces.ContentID), args.Error(1)
}

func (m *MockBlobStore) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockBlobStore) Name() string {
	return m.name
}

func (m *MockBlobStore) LocationURI() string {
	return "mock:"
}

func TestMultiStorageBackend_Available(t *testing.T) {
	tests := []struct {
		name     string
		backends []bool
		expected bool
	}{
		{name: "all backends available", backends: []bool{true, true, true}, expected: true},
		{name: "some backends available", backends: []bool{false, true, false}, expected: true},
		{name: "no backends available", backends: []bool{false, false, false}, expected: false},
		{name: "no backends", backends: []bool{}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var backends []interfaces.BlobStore
			for i, available := range tt.backends {
				mockStorage := &MockBlobStore{name: fmt.Sprintf("mock-A%x", i)}
				mockStorage.On("Available", mock.Anything).Return(available).Maybe()
				backends = append(backends, mockStorage)
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			multi := NewMultiStorageBackend(backends, logger)

			assert.Equal(t, tt.expected, multi.Available(context.Background()))
			for _, backend := range backends {
				backend.(*MockBlobStore).AssertExpectations(t)
			}
		})
	}
}

func TestMultiStorageBackend_Fetch(t *testing.T) {
	testData := []byte(`{"name":"Documents"}`)
	testID := interfaces.ComputeID(testData)
	testErr := errors.New("test error")

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.BlobStore
		expectedData  []byte
		expectedError error
	}{
		{
			name: "first backend successful",
			setupMocks: func() []interfaces.BlobStore {
				mock1 := &MockBlobStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, testID, interfaces.FolderMetadataType).Return(testData, nil)

				mock2 := &MockBlobStore{name: "mock-B"}
				return []interfaces.BlobStore{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "first backend fails, second succeeds",
			setupMocks: func() []interfaces.BlobStore {
				mock1 := &MockBlobStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, testID, interfaces.FolderMetadataType).Return(nil, testErr)

				mock2 := &MockBlobStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything, testID, interfaces.FolderMetadataType).Return(testData, nil)

				return []interfaces.BlobStore{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "all backends fail",
			setupMocks: func() []interfaces.BlobStore {
				mock1 := &MockBlobStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, testID, interfaces.FolderMetadataType).Return(nil, testErr)

				mock2 := &MockBlobStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything, testID, interfaces.FolderMetadataType).Return(nil, interfaces.ErrContentNotFound)

				return []interfaces.BlobStore{mock1, mock2}
			},
			expectedError: testErr,
		},
		{
			name: "content missing everywhere",
			setupMocks: func() []interfaces.BlobStore {
				mock1 := &MockBlobStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, testID, interfaces.FolderMetadataType).Return(nil, interfaces.ErrContentNotFound)

				return []interfaces.BlobStore{mock1}
			},
			expectedError: interfaces.ErrContentNotFound,
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.BlobStore {
				mock1 := &MockBlobStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockBlobStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything, testID, interfaces.FolderMetadataType).Return(testData, nil)

				return []interfaces.BlobStore{mock1, mock2}
			},
			expectedData: testData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			multi := NewMultiStorageBackend(backends, logger)

			data, err := multi.Fetch(context.Background(), testID, interfaces.FolderMetadataType)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedData, data)

			for _, backend := range backends {
				backend.(*MockBlobStore).AssertExpectations(t)
			}
		})
	}
}

func TestMultiStorageBackend_Store(t *testing.T) {
	testData := []byte(`{"name":"Documents"}`)
	testID := interfaces.ComputeID(testData)
	testErr := errors.New("test error")

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.BlobStore
		expectedError bool
	}{
		{
			name: "all backends successful",
			setupMocks: func() []interfaces.BlobStore {
				mock1 := &MockBlobStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Store", mock.Anything, testData, interfaces.FolderMetadataType).Return(testID, nil)

				mock2 := &MockBlobStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, testData, interfaces.FolderMetadataType).Return(testID, nil)

				return []interfaces.BlobStore{mock1, mock2}
			},
		},
		{
			name: "some backends fail",
			setupMocks: func() []interfaces.BlobStore {
				mock1 := &MockBlobStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Store", mock.Anything, testData, interfaces.FolderMetadataType).Return(testID, nil)

				mock2 := &MockBlobStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, testData, interfaces.FolderMetadataType).Return(interfaces.ContentID{}, testErr)

				return []interfaces.BlobStore{mock1, mock2}
			},
		},
		{
			name: "all backends fail",
			setupMocks: func() []interfaces.BlobStore {
				mock1 := &MockBlobStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Store", mock.Anything, testData, interfaces.FolderMetadataType).Return(interfaces.ContentID{}, testErr)

				mock2 := &MockBlobStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(false)

				return []interfaces.BlobStore{mock1, mock2}
			},
			expectedError: true,
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.BlobStore {
				mock1 := &MockBlobStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockBlobStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, testData, interfaces.FolderMetadataType).Return(testID, nil)

				return []interfaces.BlobStore{mock1, mock2}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			multi := NewMultiStorageBackend(backends, logger)

			id, err := multi.Store(context.Background(), testData, interfaces.FolderMetadataType)

			if tt.expectedError {
				assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, testID, id)

			for _, backend := range backends {
				backend.(*MockBlobStore).AssertExpectations(t)
			}
		})
	}
}

func TestFileBackend_RoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := NewFileBackend(t.TempDir(), logger)
	assert.NoError(t, err)
	ctx := context.Background()

	data := []byte(`{"name":"Photos"}`)
	id, err := b.Store(ctx, data, interfaces.FolderMetadataType)
	assert.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(data), id)

	got, err := b.Fetch(ctx, id, interfaces.FolderMetadataType)
	assert.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = b.Fetch(ctx, id, interfaces.CollectionMetadataType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
	assert.True(t, b.Available(ctx))
}

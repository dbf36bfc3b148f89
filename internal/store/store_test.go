package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/printworks/photoflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func testOrder() *models.Order {
	return &models.Order{
		Products: []*models.Product{
			{
				Template:  "hardcover_210x210",
				ItemCount: 1,
				Assets: []*models.Asset{
					{Identifier: "asset1", FileIdentifier: "file1", FilePath: "/photos/1.jpg"},
					{Identifier: "asset2", FileIdentifier: "file2", FilePath: "/photos/2.jpg", UploadURL: "https://images/2"},
				},
			},
		},
		DeliveryDetails: &models.DeliveryDetails{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Line1:     "12 Analytical Row",
			City:      "London",
			Zip:       "N1 9GU",
			Country:   "GB",
			Email:     "ada@example.com",
		},
		PaymentMethod: "card",
		PaymentToken:  "tok_123",
	}
}

func TestStore_SaveLoadProcessing(t *testing.T) {
	s := newTestStore(t)

	want := testOrder()
	require.NoError(t, s.SaveProcessing(want))
	assert.True(t, s.HasProcessing())

	got, err := s.LoadProcessing()
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ClearProcessing(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveProcessing(testOrder()))
	require.NoError(t, s.ClearProcessing())

	assert.False(t, s.HasProcessing())
	_, err := s.LoadProcessing()
	assert.True(t, errors.Is(err, models.ErrDataNotFound))

	// clearing an empty slot is not an error
	require.NoError(t, s.ClearProcessing())
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadBasket()
	assert.True(t, errors.Is(err, models.ErrDataNotFound))
	_, err = s.LoadProcessing()
	assert.True(t, errors.Is(err, models.ErrDataNotFound))
}

func TestStore_CorruptFileFailsOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, processingOrderFile), []byte("not json{"), 0o600))

	_, err = s.LoadProcessing()
	assert.True(t, errors.Is(err, models.ErrDataNotFound))
}

func TestStore_UnknownVersionFailsOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, basketOrderFile), []byte(`{"version":99,"order":{}}`), 0o600))

	_, err = s.LoadBasket()
	assert.True(t, errors.Is(err, models.ErrDataNotFound))
}

func TestStore_TaskRefs(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutTaskRef("task1", "photoflow-asset-a1"))
	require.NoError(t, s.PutTaskRef("task2", "photoflow-asset-a2"))

	ref, ok := s.TakeTaskRef("task1")
	require.True(t, ok)
	assert.Equal(t, "photoflow-asset-a1", ref)

	// consumed entries are gone
	_, ok = s.TakeTaskRef("task1")
	assert.False(t, ok)

	want := map[string]string{"task2": "photoflow-asset-a2"}
	if diff := cmp.Diff(want, s.TaskRefs()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_TaskRefsSurviveRestart(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.PutTaskRef("task1", "photoflow-asset-a1"))

	// a new store over the same directory sees the pending entry
	s2, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	ref, ok := s2.TakeTaskRef("task1")
	require.True(t, ok)
	assert.Equal(t, "photoflow-asset-a1", ref)
}

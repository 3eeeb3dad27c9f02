package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campfees/installments/internal/parents"
	"github.com/campfees/installments/internal/payments"
)

func TestLoadFixturesSeedsStores(t *testing.T) {
	fx, err := LoadFixtures(filepath.Join("..", "..", "deploy", "fixtures", "memory.yml"))
	require.NoError(t, err)
	require.Len(t, fx.Parents, 2)
	require.Len(t, fx.Payments, 2)

	paymentStore := payments.NewMemoryStore()
	parentStore := parents.NewMemoryRepository()
	fx.Seed(paymentStore, parentStore)

	p, err := paymentStore.GetPayment(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(7), p.ParentID)
	require.Equal(t, int64(90000), p.TotalAmount)
	require.Equal(t, payments.StatusPending, p.Status)

	parent, err := parentStore.GetParent(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "dana.reyes@example.com", parent.Email)
}

func TestLoadFixturesRejectsInvalidFiles(t *testing.T) {
	cases := map[string]string{
		"syntax":           "parents: [",
		"duplicate parent": "parents:\n  - id: 1\n  - id: 1\n",
		"unknown parent":   "payments:\n  - id: 1\n    parent_id: 9\n",
		"negative total":   "parents:\n  - id: 1\npayments:\n  - id: 1\n    parent_id: 1\n    total_amount: -5\n",
		"zero payment id":  "parents:\n  - id: 1\npayments:\n  - id: 0\n    parent_id: 1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fixtures.yml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadFixtures(path)
			require.Error(t, err)
		})
	}

	_, err := LoadFixtures(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

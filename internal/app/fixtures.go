package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/campfees/installments/internal/parents"
	"github.com/campfees/installments/internal/payments"
)

// Fixtures seeds the memory storage driver with the parents and payments
// that installment plans are created against.
type Fixtures struct {
	Parents  []ParentFixture  `yaml:"parents"`
	Payments []PaymentFixture `yaml:"payments"`
}

// ParentFixture is one seeded parent.
type ParentFixture struct {
	ID    int64  `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
}

// PaymentFixture is one seeded payment.
type PaymentFixture struct {
	ID          int64  `yaml:"id"`
	ParentID    int64  `yaml:"parent_id"`
	TotalAmount int64  `yaml:"total_amount"`
	Currency    string `yaml:"currency"`
}

// LoadFixtures reads and checks a fixtures file.
func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("fixtures: read %s: %w", path, err)
	}
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return Fixtures{}, fmt.Errorf("fixtures: parse %s: %w", path, err)
	}
	if err := fx.validate(); err != nil {
		return Fixtures{}, fmt.Errorf("fixtures: %s: %w", path, err)
	}
	return fx, nil
}

func (fx Fixtures) validate() error {
	parentIDs := make(map[int64]struct{}, len(fx.Parents))
	for _, p := range fx.Parents {
		if p.ID <= 0 {
			return fmt.Errorf("parent id must be positive, got %d", p.ID)
		}
		if _, dup := parentIDs[p.ID]; dup {
			return fmt.Errorf("duplicate parent %d", p.ID)
		}
		parentIDs[p.ID] = struct{}{}
	}
	paymentIDs := make(map[int64]struct{}, len(fx.Payments))
	for _, p := range fx.Payments {
		if p.ID <= 0 {
			return fmt.Errorf("payment id must be positive, got %d", p.ID)
		}
		if _, dup := paymentIDs[p.ID]; dup {
			return fmt.Errorf("duplicate payment %d", p.ID)
		}
		paymentIDs[p.ID] = struct{}{}
		if _, ok := parentIDs[p.ParentID]; !ok {
			return fmt.Errorf("payment %d references unknown parent %d", p.ID, p.ParentID)
		}
		if p.TotalAmount < 0 {
			return fmt.Errorf("payment %d has a negative total", p.ID)
		}
	}
	return nil
}

// Seed loads the fixtures into memory stores.
func (fx Fixtures) Seed(paymentStore *payments.MemoryStore, parentStore *parents.MemoryRepository) {
	for _, p := range fx.Parents {
		parentStore.Put(parents.Parent{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone})
	}
	for _, p := range fx.Payments {
		paymentStore.Put(payments.Payment{ID: p.ID, ParentID: p.ParentID, TotalAmount: p.TotalAmount, Currency: p.Currency})
	}
}

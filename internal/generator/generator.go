// Package generator produces synthetic transactions and users.
package generator

import (
	"encoding/hex"
	"fmt"
	"iter"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultFraudRate is the share of labeled transactions drawn as fraud.
const DefaultFraudRate = 0.2

// biasedPool is how many merchants at each end of the weight table
// fraudulent and legitimate transactions draw from.
const biasedPool = 5

// highRiskLocationChance is the probability a fraudulent transaction
// happens somewhere high risk.
const highRiskLocationChance = 0.7

// Amount ranges by kind of transaction.
var (
	fraudAmounts      = amountRange{low: 800, high: 5000}
	legitAmounts      = amountRange{low: 10, high: 700}
	productionAmounts = amountRange{low: 10, high: 500}
)

type amountRange struct {
	low, high float64
}

// Config holds the tables a Generator draws from.
type Config struct {
	Now               func() time.Time
	Merchants         MerchantTable
	HighRiskLocations []string
	LowRiskLocations  []string
	Categories        []string
	PaymentMethods    []string
}

// DefaultConfig returns the production tables.
func DefaultConfig() Config {
	return Config{
		Now:               time.Now,
		Merchants:         DefaultMerchants(),
		HighRiskLocations: []string{"London", "Tokyo", "Dubai"},
		LowRiskLocations:  []string{"New York", "Los Angeles", "Chicago", "Miami"},
		Categories:        []string{"Shopping", "Food", "Travel", "Entertainment", "Utilities", "Other"},
		PaymentMethods:    []string{"Credit Card", "Debit Card", "Mobile Payment", "Online"},
	}
}

// Generator draws synthetic data from a single random source. It is not safe
// for concurrent use; give each goroutine its own Generator.
type Generator struct {
	rng       *rand.Rand
	now       func() time.Time
	cfg       Config
	fraudPool MerchantTable
	legitPool MerchantTable
	locations []string
}

// New creates a generator. A nil rng is replaced with a time-seeded source.
func New(cfg Config, rng *rand.Rand) (*Generator, error) {
	if len(cfg.Merchants) == 0 {
		return nil, fmt.Errorf("%w: merchant table is empty", common.ErrInvalidConfig)
	}
	for _, m := range cfg.Merchants {
		if m.Weight < 0 || m.Weight > 1 {
			return nil, fmt.Errorf("%w: merchant %s weight %v outside [0,1]", common.ErrInvalidConfig, m.Name, m.Weight)
		}
	}
	for name, list := range map[string][]string{
		"high-risk locations": cfg.HighRiskLocations,
		"low-risk locations":  cfg.LowRiskLocations,
		"categories":          cfg.Categories,
		"payment methods":     cfg.PaymentMethods,
	} {
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: %s must not be empty", common.ErrInvalidConfig, name)
		}
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // synthetic data only
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	locations := make([]string, 0, len(cfg.LowRiskLocations)+len(cfg.HighRiskLocations))
	locations = append(locations, cfg.LowRiskLocations...)
	locations = append(locations, cfg.HighRiskLocations...)

	return &Generator{
		rng:       rng,
		now:       now,
		cfg:       cfg,
		fraudPool: cfg.Merchants.Highest(biasedPool),
		legitPool: cfg.Merchants.Lowest(biasedPool),
		locations: locations,
	}, nil
}

// NewSeeded creates a generator with the default tables and a deterministic
// source.
func NewSeeded(seed int64) *Generator {
	g, err := New(DefaultConfig(), rand.New(rand.NewSource(seed))) //nolint:gosec // synthetic data only
	if err != nil {
		panic(fmt.Sprintf("default generator config is invalid: %v", err))
	}
	return g
}

// Labeled returns a lazy sequence of n transactions carrying ground truth
// labels. Each range over the sequence draws fresh values from the
// generator's source.
func (g *Generator) Labeled(n int, fraudRate float64) (iter.Seq[model.Transaction], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: count %d is negative", common.ErrInvalidInput, n)
	}
	if math.IsNaN(fraudRate) || fraudRate < 0 || fraudRate > 1 {
		return nil, fmt.Errorf("%w: fraud rate %v outside [0,1]", common.ErrInvalidInput, fraudRate)
	}

	return func(yield func(model.Transaction) bool) {
		for i := range n {
			if !yield(g.labeled(i, fraudRate)) {
				return
			}
		}
	}, nil
}

func (g *Generator) labeled(i int, fraudRate float64) model.Transaction {
	fraud := g.rng.Float64() < fraudRate

	var (
		merchant Merchant
		amount   decimal.Decimal
		location string
	)
	if fraud {
		merchant = g.fraudPool[g.rng.Intn(len(g.fraudPool))]
		amount = g.amount(fraudAmounts)
		if g.rng.Float64() < highRiskLocationChance {
			location = g.pick(g.cfg.HighRiskLocations)
		} else {
			location = g.pick(g.cfg.LowRiskLocations)
		}
	} else {
		merchant = g.legitPool[g.rng.Intn(len(g.legitPool))]
		amount = g.amount(legitAmounts)
		location = g.pick(g.cfg.LowRiskLocations)
	}

	txn := model.Transaction{
		ID:                "test_txn_" + g.hex(10),
		UserID:            fmt.Sprintf("test_user_%d", i),
		Amount:            amount,
		Timestamp:         g.now().UTC(),
		Merchant:          merchant.Name,
		Category:          g.pick(g.cfg.Categories),
		PaymentMethod:     g.pick(g.cfg.PaymentMethods),
		Location:          location,
		BaseRiskIndicator: merchant.Weight,
		Status:            model.StatusPending,
	}
	return txn.WithLabel(fraud)
}

// Transaction returns one unlabeled production-style transaction. Merchant
// and location are uniform over the whole tables.
func (g *Generator) Transaction() model.Transaction {
	merchant := g.cfg.Merchants[g.rng.Intn(len(g.cfg.Merchants))]

	return model.Transaction{
		ID:                "txn_" + g.hex(10),
		UserID:            "user_" + g.hex(8),
		Amount:            g.amount(productionAmounts),
		Timestamp:         g.now().UTC(),
		Merchant:          merchant.Name,
		Category:          g.pick(g.cfg.Categories),
		PaymentMethod:     g.pick(g.cfg.PaymentMethods),
		Location:          g.pick(g.locations),
		BaseRiskIndicator: merchant.Weight,
		Status:            model.StatusPending,
	}
}

// ForUser returns a production-style transaction attributed to userID.
func (g *Generator) ForUser(userID string) model.Transaction {
	txn := g.Transaction()
	txn.UserID = userID
	return txn
}

// NewUserRequest carries the caller-supplied fields of a new user.
type NewUserRequest struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Location  string
}

// NewUser builds an active user with travel mode disabled.
func (g *Generator) NewUser(req NewUserRequest) (model.User, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)

	var missing []string
	if req.FirstName == "" {
		missing = append(missing, "first name")
	}
	if req.LastName == "" {
		missing = append(missing, "last name")
	}
	if req.Email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return model.User{}, fmt.Errorf("%w: missing %s", common.ErrInvalidInput, strings.Join(missing, ", "))
	}

	location := strings.TrimSpace(req.Location)
	if location == "" {
		location = model.UnknownValue
	}

	return model.User{
		ID:        "user_" + g.hex(8),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     strings.TrimSpace(req.Phone),
		Location:  location,
		CreatedAt: g.now().UTC(),
		Status:    model.UserActive,
		Travel: model.TravelSettings{
			TrustedLocations:  []string{},
			TravelModeEnabled: false,
		},
	}, nil
}

func (g *Generator) pick(values []string) string {
	return values[g.rng.Intn(len(values))]
}

func (g *Generator) amount(r amountRange) decimal.Decimal {
	v := r.low + g.rng.Float64()*(r.high-r.low)
	return decimal.NewFromFloat(v).Round(2)
}

// hex returns n lowercase hex digits of a random UUID drawn from the
// generator's source.
func (g *Generator) hex(n int) string {
	id := uuid.Must(uuid.NewRandomFromReader(g.rng))
	return hex.EncodeToString(id[:])[:n]
}
